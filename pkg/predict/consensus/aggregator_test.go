package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/cache"
	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/providers"
)

type stubProvider struct {
	name      string
	opinion   *predict.Opinion
	err       error
	available bool
	delay     time.Duration
	calls     atomic.Int64
}

func (s *stubProvider) AnalyzeMatch(ctx context.Context, mc *predict.MatchContext) (*predict.Opinion, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	op := *s.opinion
	op.Provider = s.name
	return &op, nil
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Available() bool { return s.available }

func opinionOf(winner predict.Outcome, conf, home, draw, away float64) *predict.Opinion {
	return &predict.Opinion{
		Winner:     winner,
		Confidence: conf,
		Probabilities: predict.Distribution{
			predict.OutcomeHome: home,
			predict.OutcomeDraw: draw,
			predict.OutcomeAway: away,
		},
	}
}

func testMatch(id string) *predict.MatchContext {
	return &predict.MatchContext{MatchID: id, HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
}

func newTestAggregator(store cache.Store, regs ...providers.Registration) *Aggregator {
	cfg := DefaultConfig()
	cfg.ProviderTimeout = time.Second
	return New(regs, store, cfg, zerolog.Nop())
}

func TestAnalyzeWeightedConsensus(t *testing.T) {
	regs := []providers.Registration{
		{Provider: &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.60, 0.25, 0.15)}, Weight: 0.25},
		{Provider: &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeHome, 70, 0.55, 0.30, 0.15)}, Weight: 0.25},
		{Provider: &stubProvider{name: "gemini", available: true, opinion: opinionOf(predict.OutcomeDraw, 60, 0.35, 0.40, 0.25)}, Weight: 0.20},
	}
	agg := newTestAggregator(nil, regs...)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if sum := result.Probabilities.Sum(); math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("distribution sums to %v, want 1", sum)
	}
	if result.Winner != predict.OutcomeHome {
		t.Errorf("winner = %s, want home", result.Winner)
	}

	// Two of three opinions back the consensus winner.
	if math.Abs(result.Agreement-2.0/3.0) > 1e-9 {
		t.Errorf("agreement = %v, want 2/3", result.Agreement)
	}

	// Weighted confidence: (80*.25 + 70*.25 + 60*.20) / 0.70, no bonus.
	wantConf := (80*0.25 + 70*0.25 + 60*0.20) / 0.70
	if math.Abs(result.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v", result.Confidence, wantConf)
	}
	if len(result.Opinions) != 3 {
		t.Errorf("retained %d opinions, want 3", len(result.Opinions))
	}
}

func TestAnalyzeNoProvidersNeutralFallback(t *testing.T) {
	agg := newTestAggregator(nil)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Confidence)
	}
	if result.Tier != predict.TierUncertain {
		t.Errorf("tier = %s, want uncertain", result.Tier)
	}
	want := predict.UniformDistribution()
	for _, o := range predict.Outcomes {
		if math.Abs(result.Probabilities[o]-want[o]) > 1e-9 {
			t.Errorf("probabilities[%s] = %v, want uniform %v", o, result.Probabilities[o], want[o])
		}
	}
}

func TestAnalyzeAllFailuresNeutralFallback(t *testing.T) {
	regs := []providers.Registration{
		{Provider: &stubProvider{name: "gpt", available: true, err: errors.New("boom")}, Weight: 0.5},
		{Provider: &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeHome, 0, 0.5, 0.3, 0.2)}, Weight: 0.5},
	}
	agg := newTestAggregator(nil, regs...)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("provider failures must not surface: %v", err)
	}
	if result.Confidence != 0 || result.Agreement != 0 {
		t.Errorf("confidence = %v agreement = %v, want 0/0", result.Confidence, result.Agreement)
	}
}

func TestAnalyzeAllZeroWeightsNeutralFallback(t *testing.T) {
	regs := []providers.Registration{
		{Provider: &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}, Weight: 0},
		{Provider: &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeHome, 70, 0.55, 0.30, 0.15)}, Weight: 0},
	}
	agg := newTestAggregator(nil, regs...)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.IsNaN(result.Confidence) {
		t.Fatal("confidence is NaN with all-zero weights")
	}
	if result.Confidence != 0 || result.Tier != predict.TierUncertain {
		t.Errorf("confidence = %v tier = %s, want neutral fallback", result.Confidence, result.Tier)
	}
	for _, o := range predict.Outcomes {
		if math.IsNaN(result.Probabilities[o]) {
			t.Errorf("probabilities[%s] is NaN", o)
		}
	}
}

func TestProviderNames(t *testing.T) {
	agg := newTestAggregator(nil,
		providers.Registration{Provider: &stubProvider{name: "gpt", available: true}, Weight: 0.5},
		providers.Registration{Provider: &stubProvider{name: "claude", available: false}, Weight: 0.5},
	)
	names := agg.ProviderNames()
	if len(names) != 1 || names[0] != "gpt" {
		t.Errorf("names = %v, want [gpt]", names)
	}
}

func TestAnalyzeUnanimityBonusCapped(t *testing.T) {
	regs := []providers.Registration{
		{Provider: &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 95, 0.70, 0.20, 0.10)}, Weight: 0.5},
		{Provider: &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeHome, 97, 0.72, 0.18, 0.10)}, Weight: 0.5},
	}
	agg := newTestAggregator(nil, regs...)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Agreement != 1.0 {
		t.Fatalf("agreement = %v, want 1", result.Agreement)
	}
	if result.Confidence > 100 {
		t.Errorf("confidence = %v, exceeds 100 after unanimity bonus", result.Confidence)
	}
	if result.Confidence != 100 {
		t.Errorf("confidence = %v, want capped at 100", result.Confidence)
	}
}

func TestAnalyzeMajorityPenalty(t *testing.T) {
	// Three-way split: winner backed by 1 of 3 opinions, agreement < 0.5.
	regs := []providers.Registration{
		{Provider: &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 60, 0.50, 0.30, 0.20)}, Weight: 0.4},
		{Provider: &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeDraw, 60, 0.30, 0.45, 0.25)}, Weight: 0.3},
		{Provider: &stubProvider{name: "gemini", available: true, opinion: opinionOf(predict.OutcomeAway, 60, 0.25, 0.30, 0.45)}, Weight: 0.3},
	}
	agg := newTestAggregator(nil, regs...)

	result, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Agreement >= 0.5 {
		t.Fatalf("agreement = %v, want < 0.5", result.Agreement)
	}
	if math.Abs(result.Confidence-50) > 1e-9 {
		t.Errorf("confidence = %v, want 60 - 10 penalty", result.Confidence)
	}
}

func TestAnalyzeMissingMatchID(t *testing.T) {
	agg := newTestAggregator(nil)
	if _, err := agg.Analyze(context.Background(), &predict.MatchContext{}); !errors.Is(err, predict.ErrMissingMatchID) {
		t.Errorf("err = %v, want ErrMissingMatchID", err)
	}
}

func TestAnalyzeUnavailableProviderSkipped(t *testing.T) {
	off := &stubProvider{name: "gpt", available: false, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	on := &stubProvider{name: "claude", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	agg := newTestAggregator(nil,
		providers.Registration{Provider: off, Weight: 0.5},
		providers.Registration{Provider: on, Weight: 0.5},
	)

	if _, err := agg.Analyze(context.Background(), testMatch("m1")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if off.calls.Load() != 0 {
		t.Error("unavailable provider was called")
	}
	if on.calls.Load() != 1 {
		t.Error("available provider was not called")
	}
}

func TestAnalyzeCacheShortCircuits(t *testing.T) {
	p := &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	agg := newTestAggregator(cache.NewMemory(), providers.Registration{Provider: p, Weight: 1})

	first, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.Cached {
		t.Error("first result marked cached")
	}

	second, err := agg.Analyze(context.Background(), testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !second.Cached {
		t.Error("second result not served from cache")
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", p.calls.Load())
	}
	if second.Winner != first.Winner || math.Abs(second.Confidence-first.Confidence) > 1e-9 {
		t.Error("cached result differs from original")
	}
}

func TestAnalyzeCallerTimeoutAbandonsPending(t *testing.T) {
	fast := &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	slow := &stubProvider{name: "claude", available: true, delay: 5 * time.Second, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	agg := newTestAggregator(nil,
		providers.Registration{Provider: fast, Weight: 0.5},
		providers.Registration{Provider: slow, Weight: 0.5},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := agg.Analyze(ctx, testMatch("m1"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Analyze blocked on the slow provider for %v", elapsed)
	}
	if len(result.Opinions) != 1 {
		t.Errorf("surviving opinions = %d, want 1 from the fast provider", len(result.Opinions))
	}
}

func TestAnalyzeBatchPreservesOrder(t *testing.T) {
	p := &stubProvider{name: "gpt", available: true, opinion: opinionOf(predict.OutcomeHome, 80, 0.6, 0.25, 0.15)}
	agg := newTestAggregator(nil, providers.Registration{Provider: p, Weight: 1})

	matches := make([]*predict.MatchContext, 14)
	for i := range matches {
		matches[i] = testMatch(fmt.Sprintf("m%02d", i))
	}

	results, err := agg.AnalyzeBatch(context.Background(), matches, 5)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if len(results) != len(matches) {
		t.Fatalf("got %d results, want %d", len(results), len(matches))
	}
	for i, r := range results {
		if r.MatchID != matches[i].MatchID {
			t.Errorf("results[%d].MatchID = %s, want %s", i, r.MatchID, matches[i].MatchID)
		}
	}
}

func TestRecommendationThresholds(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		agreement  float64
		wantPrefix string
	}{
		{"unanimous high confidence", 75, 1.0, "strong"},
		{"majority medium confidence", 65, 0.6, "recommended"},
		{"low agreement decent confidence", 55, 0.4, "reference only"},
		{"weak everything", 45, 0.4, "uncertain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recommendation(predict.OutcomeHome, tt.confidence, tt.agreement)
			if !hasPrefix(got, tt.wantPrefix) {
				t.Errorf("recommendation = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
