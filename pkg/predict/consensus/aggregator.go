// Package consensus aggregates independent provider opinions into one
// weighted prediction per match, with partial-failure tolerance and a
// day-scoped result cache.
package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/cache"
	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/providers"
)

// Config tunes the aggregator.
type Config struct {
	ProviderTimeout time.Duration // per provider call
	CacheTTL        time.Duration
	KeepOpinions    bool // retain individual opinions in results
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout: 45 * time.Second,
		CacheTTL:        6 * time.Hour,
		KeepOpinions:    true,
	}
}

// Aggregator fans out to all available providers and combines their
// opinions. It is safe for concurrent use; the cache is the only
// shared mutable state.
type Aggregator struct {
	regs  []providers.Registration
	cfg   Config
	store cache.Store
	log   zerolog.Logger
	now   func() time.Time
}

// New creates an aggregator over the given provider registrations.
// A nil store disables caching.
func New(regs []providers.Registration, store cache.Store, cfg Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		regs:  regs,
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "consensus").Logger(),
		now:   time.Now,
	}
}

// ProviderCount returns how many providers are currently available.
func (a *Aggregator) ProviderCount() int {
	n := 0
	for _, reg := range a.regs {
		if reg.Provider.Available() {
			n++
		}
	}
	return n
}

// ProviderNames lists the available providers by name.
func (a *Aggregator) ProviderNames() []string {
	names := make([]string, 0, len(a.regs))
	for _, reg := range a.regs {
		if reg.Provider.Available() {
			names = append(names, reg.Provider.Name())
		}
	}
	return names
}

// Analyze produces the consensus result for one match. Provider
// failures and zero-confidence opinions are dropped; when nothing
// survives the neutral fallback is returned, never an error. The only
// error case is a match without an identifier.
func (a *Aggregator) Analyze(ctx context.Context, mc *predict.MatchContext) (*predict.ConsensusResult, error) {
	if err := mc.Validate(); err != nil {
		return nil, err
	}

	key := cache.DayKey(mc.MatchID, mc.HomeTeam, mc.AwayTeam, a.now())
	if a.store != nil {
		if data, ok := a.store.Get(ctx, key); ok {
			var cached predict.ConsensusResult
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.Cached = true
				return &cached, nil
			}
			a.store.Evict(ctx, key)
		}
	}

	opinions := a.collectOpinions(ctx, mc)
	result := a.combine(mc, opinions)

	if a.store != nil && len(opinions) > 0 {
		if data, err := json.Marshal(result); err == nil {
			a.store.Set(ctx, key, data, a.cfg.CacheTTL)
		}
	}

	return result, nil
}

// AnalyzeBatch analyzes a slate with at most maxConcurrent matches in
// flight. Results are returned in input order.
func (a *Aggregator) AnalyzeBatch(ctx context.Context, matches []*predict.MatchContext, maxConcurrent int) ([]*predict.ConsensusResult, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	results := make([]*predict.ConsensusResult, len(matches))
	errs := make([]error, len(matches))
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	for i, mc := range matches {
		wg.Add(1)
		go func(i int, mc *predict.MatchContext) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], errs[i] = a.Analyze(ctx, mc)
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

type opinionOutcome struct {
	opinion *predict.Opinion
	weight  float64
	err     error
	name    string
}

// collectOpinions fans out one bounded call per available provider.
// When the caller's context expires, still-pending calls are abandoned
// rather than awaited.
func (a *Aggregator) collectOpinions(ctx context.Context, mc *predict.MatchContext) []weightedOpinion {
	inFlight := 0
	ch := make(chan opinionOutcome, len(a.regs))

	for _, reg := range a.regs {
		if !reg.Provider.Available() {
			continue
		}
		inFlight++
		go func(reg providers.Registration) {
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
			defer cancel()

			op, err := reg.Provider.AnalyzeMatch(callCtx, mc)
			ch <- opinionOutcome{opinion: op, weight: reg.Weight, err: err, name: reg.Provider.Name()}
		}(reg)
	}

	opinions := make([]weightedOpinion, 0, inFlight)
	for i := 0; i < inFlight; i++ {
		select {
		case out := <-ch:
			if out.err != nil {
				a.log.Warn().Err(out.err).Str("provider", out.name).Str("match", mc.MatchID).
					Msg("provider opinion dropped")
				continue
			}
			if out.opinion.Confidence <= 0 {
				continue
			}
			opinions = append(opinions, weightedOpinion{opinion: out.opinion, weight: out.weight})
		case <-ctx.Done():
			a.log.Warn().Str("match", mc.MatchID).Int("pending", inFlight-i).
				Msg("analysis deadline reached, abandoning pending providers")
			return opinions
		}
	}
	return opinions
}

type weightedOpinion struct {
	opinion *predict.Opinion
	weight  float64
}

// combine folds surviving opinions into the consensus result.
func (a *Aggregator) combine(mc *predict.MatchContext, opinions []weightedOpinion) *predict.ConsensusResult {
	result := &predict.ConsensusResult{
		MatchID:   mc.MatchID,
		Timestamp: a.now(),
	}

	if len(opinions) == 0 {
		return neutral(result)
	}

	dist := predict.Distribution{}
	weightSum := 0.0
	confWeighted := 0.0
	for _, wo := range opinions {
		effective := wo.weight * wo.opinion.Confidence / 100
		for _, o := range predict.Outcomes {
			dist[o] += wo.opinion.Probabilities[o] * effective
		}
		weightSum += wo.weight
		confWeighted += wo.opinion.Confidence * wo.weight
	}
	// Every surviving opinion can carry weight zero if the operator
	// misconfigures the weight map. Fall back rather than divide by it.
	if weightSum <= 0 {
		return neutral(result)
	}
	dist.Normalize()

	winner, _ := dist.Top()

	matching := 0
	for _, wo := range opinions {
		if wo.opinion.Winner == winner {
			matching++
		}
	}
	agreement := float64(matching) / float64(len(opinions))

	confidence := confWeighted / weightSum
	switch {
	case agreement == 1.0:
		confidence += 10
	case agreement < 0.5:
		confidence -= 10
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	result.Winner = winner
	result.Confidence = confidence
	result.Tier = predict.TierForConfidence(confidence)
	result.Probabilities = dist
	result.Agreement = agreement
	result.Recommendation = recommendation(winner, confidence, agreement)

	if a.cfg.KeepOpinions {
		result.Opinions = make([]predict.Opinion, 0, len(opinions))
		for _, wo := range opinions {
			result.Opinions = append(result.Opinions, *wo.opinion)
		}
	}

	return result
}

// neutral fills the fallback shape used when no weighted opinion
// survives.
func neutral(result *predict.ConsensusResult) *predict.ConsensusResult {
	result.Winner = predict.OutcomeDraw
	result.Confidence = 0
	result.Tier = predict.TierUncertain
	result.Probabilities = predict.UniformDistribution()
	result.Agreement = 0
	result.Recommendation = "uncertain: no provider opinions available"
	return result
}

// recommendation renders the deterministic advice line.
func recommendation(winner predict.Outcome, confidence, agreement float64) string {
	label := map[predict.Outcome]string{
		predict.OutcomeHome: "home win",
		predict.OutcomeDraw: "draw",
		predict.OutcomeAway: "away win",
	}[winner]

	switch {
	case agreement == 1.0 && confidence >= 70:
		return "strong: all providers back " + label
	case agreement >= 0.5 && confidence >= 60:
		return "recommended: majority back " + label
	case confidence >= 50:
		return "reference only: lean " + label
	default:
		return "uncertain: no reliable signal"
	}
}
