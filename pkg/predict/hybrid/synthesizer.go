// Package hybrid blends the provider consensus, an optional learned
// model, and the statistical ensemble into one calibrated per-match
// prediction.
package hybrid

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/consensus"
	"github.com/junhopark/slatepick/pkg/predict/ensemble"
)

// LearnedModel is the optional trained-classifier tier.
type LearnedModel interface {
	Predict(ctx context.Context, mc *predict.MatchContext) (predict.Distribution, float64, error)
	Available() bool
}

// Config tunes the synthesizer.
type Config struct {
	TierWeights   map[predict.TierKind]float64
	MaxConcurrent int
}

// DefaultConfig returns the standard tier weighting.
func DefaultConfig() Config {
	return Config{
		TierWeights: map[predict.TierKind]float64{
			predict.TierProvider:    0.50,
			predict.TierLearned:     0.25,
			predict.TierStatistical: 0.25,
		},
		MaxConcurrent: 5,
	}
}

// Synthesizer merges the prediction tiers. Tier availability is
// probed once at construction; the effective weights are recomputed
// per call from the immutable target weights.
type Synthesizer struct {
	aggregator *consensus.Aggregator
	model      LearnedModel
	engine     *ensemble.Engine
	cfg        Config
	available  map[predict.TierKind]bool
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a synthesizer. Any tier may be nil; its weight is
// redistributed among the rest.
func New(agg *consensus.Aggregator, model LearnedModel, engine *ensemble.Engine, cfg Config, log zerolog.Logger) *Synthesizer {
	if len(cfg.TierWeights) == 0 {
		cfg.TierWeights = DefaultConfig().TierWeights
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}

	available := map[predict.TierKind]bool{
		predict.TierProvider:    agg != nil && agg.ProviderCount() > 0,
		predict.TierLearned:     model != nil && model.Available(),
		predict.TierStatistical: engine != nil,
	}

	s := &Synthesizer{
		aggregator: agg,
		model:      model,
		engine:     engine,
		cfg:        cfg,
		available:  available,
		log:        log.With().Str("component", "hybrid").Logger(),
		now:        time.Now,
	}

	s.log.Info().
		Bool("provider", available[predict.TierProvider]).
		Bool("learned", available[predict.TierLearned]).
		Bool("statistical", available[predict.TierStatistical]).
		Msg("tier availability probed")

	return s
}

// AvailableTiers returns the construction-time availability mask.
func (s *Synthesizer) AvailableTiers() map[predict.TierKind]bool {
	out := make(map[predict.TierKind]bool, len(s.available))
	for k, v := range s.available {
		out[k] = v
	}
	return out
}

// Analyze produces the hybrid prediction for one match. Tier failures
// degrade; only a missing match identifier is an error.
func (s *Synthesizer) Analyze(ctx context.Context, mc *predict.MatchContext) (*predict.HybridPrediction, error) {
	if err := mc.Validate(); err != nil {
		return nil, err
	}

	start := s.now()
	weights := Redistribute(s.cfg.TierWeights, s.available)
	tiers := s.runTiers(ctx, mc, weights)
	pred := s.synthesize(tiers)

	pred.MatchID = mc.MatchID
	pred.HomeTeam = mc.HomeTeam
	pred.AwayTeam = mc.AwayTeam
	pred.Timestamp = s.now()
	pred.Elapsed = s.now().Sub(start)
	return pred, nil
}

// AnalyzeBatch analyzes a slate with bounded concurrency, returning
// results in input order.
func (s *Synthesizer) AnalyzeBatch(ctx context.Context, matches []*predict.MatchContext) ([]*predict.HybridPrediction, error) {
	results := make([]*predict.HybridPrediction, len(matches))
	errs := make([]error, len(matches))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for i, mc := range matches {
		wg.Add(1)
		go func(i int, mc *predict.MatchContext) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], errs[i] = s.Analyze(ctx, mc)
		}(i, mc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// runTiers evaluates every available tier. The provider tier is the
// only one doing network I/O; the others are closed-form.
func (s *Synthesizer) runTiers(ctx context.Context, mc *predict.MatchContext, weights map[predict.TierKind]float64) []predict.TierResult {
	tiers := make([]predict.TierResult, 0, 3)

	if s.available[predict.TierProvider] {
		if cr, err := s.aggregator.Analyze(ctx, mc); err == nil {
			tiers = append(tiers, predict.TierResult{
				Tier:          predict.TierProvider,
				Probabilities: cr.Probabilities,
				Confidence:    cr.Confidence / 100,
				Weight:        weights[predict.TierProvider],
			})
		} else {
			s.log.Warn().Err(err).Str("match", mc.MatchID).Msg("provider tier failed")
		}
	}

	if s.available[predict.TierLearned] {
		if dist, conf, err := s.model.Predict(ctx, mc); err == nil && len(dist) > 0 {
			if conf > 1 {
				conf /= 100
			}
			tiers = append(tiers, predict.TierResult{
				Tier:          predict.TierLearned,
				Probabilities: dist,
				Confidence:    conf,
				Weight:        weights[predict.TierLearned],
			})
		} else if err != nil {
			s.log.Warn().Err(err).Str("match", mc.MatchID).Msg("learned tier failed")
		}
	}

	if s.available[predict.TierStatistical] {
		er := s.engine.Predict(mc.HomeStats, mc.AwayStats, mc.H2H)
		tiers = append(tiers, predict.TierResult{
			Tier:          predict.TierStatistical,
			Probabilities: er.Probabilities,
			Confidence:    er.Confidence / 100,
			Weight:        weights[predict.TierStatistical],
		})
	}

	return tiers
}

// synthesize folds the tier results into one distribution.
func (s *Synthesizer) synthesize(tiers []predict.TierResult) *predict.HybridPrediction {
	pred := &predict.HybridPrediction{Tiers: tiers}

	if len(tiers) == 0 {
		pred.Probabilities = predict.UniformDistribution()
		pred.Winner = predict.OutcomeDraw
		pred.Confidence = 0.5
		pred.ConsensusScore = 0.5
		return pred
	}

	dist := predict.Distribution{}
	effectiveTotal := 0.0
	confWeighted := 0.0
	weightTotal := 0.0
	for _, tr := range tiers {
		effective := tr.Weight * tr.Confidence
		for _, o := range predict.Outcomes {
			dist[o] += tr.Probabilities[o] * effective
		}
		effectiveTotal += effective
		confWeighted += tr.Confidence * tr.Weight
		weightTotal += tr.Weight
	}

	if effectiveTotal <= 0 {
		// Every tier reported zero confidence: average the raw
		// distributions with equal shares instead of weighting.
		dist = predict.Distribution{}
		for _, tr := range tiers {
			for _, o := range predict.Outcomes {
				dist[o] += tr.Probabilities[o] / float64(len(tiers))
			}
		}
	}
	dist.Normalize()

	confidence := 0.0
	if weightTotal > 0 {
		confidence = confWeighted / weightTotal
	}
	confidence = math.Max(0, math.Min(1, confidence))

	pred.Probabilities = dist
	pred.Winner, _ = dist.Top()
	pred.Confidence = confidence
	pred.ConsensusScore = consensusScore(tiers)
	return pred
}

// consensusScore measures cross-tier agreement from the spread of the
// home-outcome probabilities.
func consensusScore(tiers []predict.TierResult) float64 {
	if len(tiers) < 2 {
		return 0.7
	}

	mean := 0.0
	for _, tr := range tiers {
		mean += tr.Probabilities[predict.OutcomeHome]
	}
	mean /= float64(len(tiers))

	variance := 0.0
	for _, tr := range tiers {
		d := tr.Probabilities[predict.OutcomeHome] - mean
		variance += d * d
	}
	variance /= float64(len(tiers))

	return math.Max(0, 1-3*math.Sqrt(variance))
}
