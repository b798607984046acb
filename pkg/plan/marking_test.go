package plan

import (
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
)

func predWith(id string, conf, home, draw, away float64) *predict.HybridPrediction {
	dist := predict.Distribution{
		predict.OutcomeHome: home,
		predict.OutcomeDraw: draw,
		predict.OutcomeAway: away,
	}
	winner, _ := dist.Top()
	return &predict.HybridPrediction{
		MatchID:       id,
		Probabilities: dist,
		Winner:        winner,
		Confidence:    conf,
	}
}

func TestMarkMatchCardinality(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		conf     float64 // 0-1
		home     float64
		draw     float64
		away     float64
		wantCard int
	}{
		{"confident favourite", 0.75, 0.60, 0.25, 0.15, 1},
		{"dominant top pair", 0.60, 0.42, 0.38, 0.20, 2},
		{"three way coin flip", 0.60, 0.36, 0.34, 0.30, 3},
		{"high probability low confidence", 0.50, 0.60, 0.25, 0.15, 2}, // falls to the double rule: 0.85 >= 0.75
		{"high confidence low probability", 0.80, 0.50, 0.30, 0.20, 2}, // 0.50 < 0.55, top two 0.80 >= 0.75
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MarkMatch(predWith("m", tt.conf, tt.home, tt.draw, tt.away), cfg)
			if m.Cardinality() != tt.wantCard {
				t.Errorf("cardinality = %d, want %d", m.Cardinality(), tt.wantCard)
			}
		})
	}
}

func TestMarkMatchProbabilities(t *testing.T) {
	cfg := DefaultConfig()

	single := MarkMatch(predWith("m", 0.75, 0.60, 0.25, 0.15), cfg)
	if single.Outcomes[0] != predict.OutcomeHome {
		t.Errorf("single marked %s, want home", single.Outcomes[0])
	}
	if math.Abs(single.Probability-0.60) > 1e-9 {
		t.Errorf("single probability = %v, want 0.60", single.Probability)
	}

	double := MarkMatch(predWith("m", 0.60, 0.42, 0.38, 0.20), cfg)
	if math.Abs(double.Probability-0.80) > 1e-9 {
		t.Errorf("double probability = %v, want 0.80", double.Probability)
	}

	triple := MarkMatch(predWith("m", 0.60, 0.36, 0.34, 0.30), cfg)
	if math.Abs(triple.Probability-1.0) > 1e-9 {
		t.Errorf("cover-all probability = %v, want 1.0", triple.Probability)
	}
}

func TestReduceToBudget(t *testing.T) {
	// Two triples and four doubles: 3^2 * 2^4 = 144 combinations.
	// At unit cost 1000 and budget 5000 only 5 combinations fit.
	preds := map[string]*predict.HybridPrediction{}
	markings := make([]Marking, 0, 6)

	mk := func(id string, conf float64, card int) {
		var pred *predict.HybridPrediction
		switch card {
		case 3:
			pred = predWith(id, conf, 0.36, 0.34, 0.30)
		default:
			pred = predWith(id, conf, 0.42, 0.38, 0.20)
		}
		preds[id] = pred
		markings = append(markings, MarkMatch(pred, DefaultConfig()))
	}

	mk("t1", 0.45, 3)
	mk("t2", 0.62, 3)
	mk("d1", 0.55, 2)
	mk("d2", 0.70, 2)
	mk("d3", 0.50, 2)
	mk("d4", 0.65, 2)

	if got := TotalCombinations(markings); got != 144 {
		t.Fatalf("initial combinations = %d, want 144", got)
	}

	budget := decimal.NewFromInt(5000)
	unitCost := decimal.NewFromInt(1000)
	reduced := ReduceToBudget(markings, preds, budget, unitCost)

	total := TotalCombinations(reduced)
	if int64(total)*1000 > 5000 {
		t.Errorf("reduced slate costs %d, exceeds budget 5000", total*1000)
	}

	// The lowest-confidence triple must be narrowed before the
	// higher-confidence one keeps all three outcomes.
	byID := map[string]Marking{}
	for _, m := range reduced {
		byID[m.MatchID] = m
	}
	if byID["t1"].Cardinality() > byID["t2"].Cardinality() {
		t.Error("lower-confidence triple survived while the higher-confidence one was cut")
	}

	// Every marking still covers at least its top outcome.
	for _, m := range reduced {
		if m.Cardinality() < 1 {
			t.Errorf("match %s lost all outcomes", m.MatchID)
		}
		top, _ := preds[m.MatchID].Probabilities.Top()
		if m.Outcomes[0] != top {
			t.Errorf("match %s no longer leads with its top outcome", m.MatchID)
		}
	}
}

func TestReduceToBudgetNoopWhenAffordable(t *testing.T) {
	preds := map[string]*predict.HybridPrediction{
		"m1": predWith("m1", 0.6, 0.36, 0.34, 0.30),
	}
	markings := []Marking{MarkMatch(preds["m1"], DefaultConfig())}

	reduced := ReduceToBudget(markings, preds, decimal.NewFromInt(100000), decimal.NewFromInt(1000))
	if reduced[0].Cardinality() != 3 {
		t.Errorf("affordable slate was narrowed to %d outcomes", reduced[0].Cardinality())
	}
}

func TestPlanCoverAllSlate(t *testing.T) {
	// Fourteen uniform matches with no market data: everything covers
	// all outcomes and the cover-all slate is a guaranteed hit.
	preds := make([]*predict.HybridPrediction, 14)
	for i := range preds {
		preds[i] = predWith(fmt.Sprintf("m%02d", i), 0.5, 0.33, 0.33, 0.34)
	}

	cfg := DefaultConfig()
	cfg.Budget = decimal.NewFromInt(10_000_000_000)
	p := NewPlanner(cfg, testLogger())

	sp := p.Plan(preds, nil, nil)

	for _, m := range sp.Markings {
		if m.Cardinality() != 3 {
			t.Errorf("match %s marked %d outcomes, want cover-all", m.MatchID, m.Cardinality())
		}
	}
	if math.Abs(sp.ExpectedProbability-1.0) > 1e-9 {
		t.Errorf("expected probability = %v, want 1.0 for a full cover", sp.ExpectedProbability)
	}
	if sp.Summary.Triples != 14 || sp.Summary.Singles != 0 {
		t.Errorf("summary = %+v, want 14 triples", sp.Summary)
	}
}

func TestUpsetCoverWidensSingles(t *testing.T) {
	preds := []*predict.HybridPrediction{
		predWith("steady", 0.80, 0.60, 0.25, 0.15),
		predWith("shaky", 0.80, 0.60, 0.25, 0.15),
	}
	upsets := map[string]float64{"steady": 10, "shaky": 70}

	p := NewPlanner(DefaultConfig(), testLogger())
	sp := p.Plan(preds, nil, upsets)

	byID := map[string]Marking{}
	for _, m := range sp.Markings {
		byID[m.MatchID] = m
	}
	if byID["steady"].Cardinality() != 1 {
		t.Errorf("steady match widened to %d outcomes", byID["steady"].Cardinality())
	}
	if byID["shaky"].Cardinality() != 2 {
		t.Errorf("upset-prone single not widened: %d outcomes", byID["shaky"].Cardinality())
	}
}
