// Package slate coordinates the full per-slate pipeline: provider
// consensus, hybrid synthesis, upset scanning, and selection planning.
package slate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/metrics"
	"github.com/junhopark/slatepick/pkg/plan"
	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/anomaly"
	"github.com/junhopark/slatepick/pkg/predict/consensus"
	"github.com/junhopark/slatepick/pkg/predict/hybrid"
)

// Stage identifies one pipeline phase.
type Stage string

const (
	StageConsensus Stage = "consensus"
	StageSynthesis Stage = "synthesis"
	StageUpsetScan Stage = "upset_scan"
	StagePlanning  Stage = "planning"
)

// StageResult records one stage execution.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Run is the complete output of one slate analysis.
type Run struct {
	RunID       string                      `json:"run_id"`
	Matches     []*predict.MatchContext     `json:"matches"`
	Consensus   []*predict.ConsensusResult  `json:"consensus,omitempty"`
	Predictions []*predict.HybridPrediction `json:"predictions"`
	Anomalies   []*anomaly.Analysis         `json:"anomalies,omitempty"`
	UpsetScores map[string]float64          `json:"upset_scores,omitempty"`
	Plan        *plan.SlatePlan             `json:"plan"`
	Stages      []StageResult               `json:"stages"`
	StartedAt   time.Time                   `json:"started_at"`
	Elapsed     time.Duration               `json:"elapsed"`
}

// MatchSource supplies the slate to analyze.
type MatchSource interface {
	UpcomingSlate(ctx context.Context) ([]*predict.MatchContext, error)
}

// Store persists completed runs. The engine never blocks on it; save
// failures are logged and dropped.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
}

// Publisher broadcasts pipeline events to stream subscribers.
type Publisher interface {
	Publish(event string, payload interface{})
}

// Config tunes the engine.
type Config struct {
	RunInterval time.Duration `yaml:"run_interval"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RunInterval: 30 * time.Minute,
		RunTimeout:  5 * time.Minute,
	}
}

// Engine drives the pipeline. Collaborators other than the
// synthesizer and planner are optional.
type Engine struct {
	cfg        Config
	aggregator *consensus.Aggregator
	synth      *hybrid.Synthesizer
	detector   *anomaly.Detector
	planner    *plan.Planner
	source     MatchSource
	store      Store
	pub        Publisher
	met        *metrics.Metrics
	log        zerolog.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	lastRun *Run

	onStageComplete func(*StageResult)
	onRunComplete   func(*Run)
	onError         func(error)
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithAggregator lets the engine reuse the consensus aggregator for
// opinion-level upset signals. The synthesizer's provider tier serves
// from the same day cache, so matches are not analyzed twice.
func WithAggregator(agg *consensus.Aggregator) Option {
	return func(e *Engine) { e.aggregator = agg }
}

// WithSource sets the slate source used by the background loop.
func WithSource(src MatchSource) Option {
	return func(e *Engine) { e.source = src }
}

// WithStore persists completed runs.
func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithPublisher broadcasts completed runs to stream subscribers.
// Per-item events are the run-complete callback's job.
func WithPublisher(pub Publisher) Option {
	return func(e *Engine) { e.pub = pub }
}

// WithMetrics records pipeline metrics.
func WithMetrics(met *metrics.Metrics) Option {
	return func(e *Engine) { e.met = met }
}

// NewEngine wires the pipeline together.
func NewEngine(cfg Config, synth *hybrid.Synthesizer, detector *anomaly.Detector, planner *plan.Planner, log zerolog.Logger, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.RunInterval == 0 {
		cfg.RunInterval = def.RunInterval
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = def.RunTimeout
	}

	e := &Engine{
		cfg:      cfg,
		synth:    synth,
		detector: detector,
		planner:  planner,
		log:      log.With().Str("component", "engine").Logger(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnStageComplete sets a stage callback.
func (e *Engine) OnStageComplete(fn func(*StageResult)) { e.onStageComplete = fn }

// OnRunComplete sets a run callback.
func (e *Engine) OnRunComplete(fn func(*Run)) { e.onRunComplete = fn }

// OnError sets an error callback.
func (e *Engine) OnError(fn func(error)) { e.onError = fn }

// RunSlate executes the full pipeline for one slate.
func (e *Engine) RunSlate(ctx context.Context, matches []*predict.MatchContext) (*Run, error) {
	for _, mc := range matches {
		if err := mc.Validate(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	run := &Run{
		RunID:     uuid.NewString(),
		Matches:   matches,
		StartedAt: time.Now(),
	}
	e.log.Info().Str("run", run.RunID).Int("matches", len(matches)).Msg("slate run started")

	// Consensus first so the synthesizer's provider tier is served
	// from the day cache instead of re-calling the vendors.
	if e.aggregator != nil {
		e.stage(run, StageConsensus, func() error {
			results, err := e.aggregator.AnalyzeBatch(ctx, matches, 0)
			run.Consensus = results
			if e.met != nil {
				names := e.aggregator.ProviderNames()
				for _, cr := range results {
					e.met.RecordConsensus(string(cr.Tier), cr.Agreement)
					e.met.RecordCacheRequest(cr.Cached)
					seen := make(map[string]bool, len(cr.Opinions))
					for _, op := range cr.Opinions {
						seen[op.Provider] = true
						e.met.RecordProviderCall(op.Provider, "ok",
							time.Duration(op.LatencyMs)*time.Millisecond, op.Confidence)
					}
					// A fresh result missing a registered provider means
					// that provider's opinion was dropped or timed out.
					if !cr.Cached && len(cr.Opinions) > 0 {
						for _, name := range names {
							if !seen[name] {
								e.met.RecordProviderError(name, "no_opinion")
							}
						}
					}
				}
			}
			return err
		})
	}

	if err := e.stage(run, StageSynthesis, func() error {
		preds, err := e.synth.AnalyzeBatch(ctx, matches)
		run.Predictions = preds
		return err
	}); err != nil {
		return nil, err
	}

	e.stage(run, StageUpsetScan, func() error {
		run.UpsetScores = e.scoreUpsets(run)
		run.Anomalies = e.detector.FindAll(run.Predictions, marketsByID(matches))
		return nil
	})

	e.stage(run, StagePlanning, func() error {
		run.Plan = e.planner.Plan(run.Predictions, marketsByID(matches), run.UpsetScores)
		return nil
	})

	run.Elapsed = time.Since(run.StartedAt)
	e.finishRun(ctx, run)
	return run, nil
}

// RunOnce pulls the slate from the source and analyzes it.
func (e *Engine) RunOnce(ctx context.Context) (*Run, error) {
	if e.source == nil {
		return nil, fmt.Errorf("no match source configured")
	}
	matches, err := e.source.UpcomingSlate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching slate: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return e.RunSlate(ctx, matches)
}

// Start launches the background loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	go e.runLoop(ctx)
	return nil
}

// Stop halts the background loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// IsRunning reports loop state.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastRun returns the most recent completed run.
func (e *Engine) LastRun() (*Run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun, e.lastRun != nil
}

func (e *Engine) runLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RunInterval)
	defer ticker.Stop()

	if _, err := e.RunOnce(ctx); err != nil {
		e.handleError(fmt.Errorf("initial run failed: %w", err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.handleError(fmt.Errorf("scheduled run failed: %w", err))
			}
		}
	}
}

// stage times one phase and reports through the callback and metrics.
func (e *Engine) stage(run *Run, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()

	sr := StageResult{
		Stage:     stage,
		Success:   err == nil,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		sr.Error = err.Error()
		e.handleError(fmt.Errorf("stage %s: %w", stage, err))
	}
	run.Stages = append(run.Stages, sr)

	if e.met != nil {
		e.met.ObserveStage(string(stage), sr.Duration, err == nil)
	}
	if e.onStageComplete != nil {
		e.onStageComplete(&sr)
	}
	return err
}

// scoreUpsets pairs each prediction with its consensus result.
func (e *Engine) scoreUpsets(run *Run) map[string]float64 {
	consensusByID := make(map[string]*predict.ConsensusResult, len(run.Consensus))
	for _, cr := range run.Consensus {
		consensusByID[cr.MatchID] = cr
	}
	matchByID := make(map[string]*predict.MatchContext, len(run.Matches))
	for _, mc := range run.Matches {
		matchByID[mc.MatchID] = mc
	}

	scores := make(map[string]float64, len(run.Predictions))
	for _, pred := range run.Predictions {
		score, _ := anomaly.UpsetScore(matchByID[pred.MatchID], pred, consensusByID[pred.MatchID])
		scores[pred.MatchID] = score
	}
	return scores
}

func (e *Engine) finishRun(ctx context.Context, run *Run) {
	e.mu.Lock()
	e.lastRun = run
	e.mu.Unlock()

	if e.met != nil {
		e.met.ObserveRun(run.Elapsed, len(run.Predictions))
		for _, a := range run.Anomalies {
			e.met.RecordAnomaly(string(a.Kind), string(a.Risk), math.Abs(a.Divergence))
		}
		for _, score := range run.UpsetScores {
			e.met.RecordUpsetScore(score)
		}
		if run.Plan != nil {
			e.met.RecordPlan(len(run.Plan.Combinations), run.Plan.TotalCost, run.Plan.ExpectedProbability)
		}
	}

	if e.store != nil {
		if err := e.store.SaveRun(ctx, run); err != nil {
			e.log.Warn().Err(err).Str("run", run.RunID).Msg("run not persisted")
		}
	}

	if e.pub != nil {
		e.pub.Publish("run_complete", run)
	}

	if e.onRunComplete != nil {
		e.onRunComplete(run)
	}

	combos := 0
	if run.Plan != nil {
		combos = len(run.Plan.Combinations)
	}
	e.log.Info().Str("run", run.RunID).Dur("elapsed", run.Elapsed).
		Int("anomalies", len(run.Anomalies)).
		Int("combinations", combos).
		Msg("slate run complete")
}

func (e *Engine) handleError(err error) {
	e.log.Error().Err(err).Msg("pipeline error")
	if e.onError != nil {
		e.onError(err)
	}
}

func marketsByID(matches []*predict.MatchContext) map[string]*predict.MarketOdds {
	markets := make(map[string]*predict.MarketOdds, len(matches))
	for _, mc := range matches {
		if mc.Market != nil {
			markets[mc.MatchID] = mc.Market
		}
	}
	return markets
}
