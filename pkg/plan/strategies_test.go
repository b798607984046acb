package plan

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func marketFor(home, draw, away string) *predict.MarketOdds {
	return &predict.MarketOdds{
		Home: decimal.RequireFromString(home),
		Draw: decimal.RequireFromString(draw),
		Away: decimal.RequireFromString(away),
	}
}

func TestBuildCombinationsStrategies(t *testing.T) {
	preds := []*predict.HybridPrediction{
		predWith("m1", 0.90, 0.62, 0.23, 0.15), // high confidence favourite
		predWith("m2", 0.85, 0.58, 0.27, 0.15), // high confidence favourite
		predWith("m3", 0.60, 0.45, 0.35, 0.20), // live second outcome
		predWith("m4", 0.50, 0.40, 0.32, 0.28), // weak everything
	}
	markets := map[string]*predict.MarketOdds{
		"m1": marketFor("1.80", "3.60", "5.00"), // value on home: 0.62*1.8-1 = 0.116
		"m2": marketFor("1.70", "3.80", "5.50"), // value on home: 0.58*1.7-1 < 0.10
		"m3": marketFor("2.10", "3.30", "3.90"),
		"m4": marketFor("2.40", "3.20", "2.90"),
	}

	cands := buildCandidates(preds, markets, nil, 0.05)
	combos := buildCombinations(cands, 0.05)

	if len(combos) == 0 {
		t.Fatal("no combinations built")
	}

	byStrategy := map[Strategy]Combination{}
	for _, c := range combos {
		byStrategy[c.Strategy] = c
	}

	if bg, ok := byStrategy[StrategyBestGuess]; ok {
		if len(bg.Selections) != 4 {
			t.Errorf("best guess has %d legs, want all 4", len(bg.Selections))
		}
	} else {
		t.Error("best guess strategy missing")
	}

	if hc, ok := byStrategy[StrategyHighConfidence]; ok {
		if len(hc.Selections) != 2 {
			t.Errorf("high confidence has %d legs, want 2", len(hc.Selections))
		}
		for _, s := range hc.Selections {
			if s.Confidence < 0.80 {
				t.Errorf("high confidence leg with confidence %v", s.Confidence)
			}
		}
	} else {
		t.Error("high confidence strategy missing")
	}

	if hv, ok := byStrategy[StrategyHighValue]; ok {
		for _, s := range hv.Selections {
			if s.Value < 0.10 {
				t.Errorf("high value leg with value %v", s.Value)
			}
		}
		if len(hv.Selections) != 1 || hv.Selections[0].MatchID != "m1" {
			t.Errorf("high value legs = %+v, want only m1", hv.Selections)
		}
	} else {
		t.Error("high value strategy missing")
	}

	for _, c := range combos {
		if c.WinProbability <= 0 || c.WinProbability > 1 {
			t.Errorf("%s win probability = %v", c.Strategy, c.WinProbability)
		}
		price, _ := c.TotalPrice.Float64()
		wantROI := price*c.WinProbability - 1
		if math.Abs(c.ExpectedROI-wantROI) > 0.02 {
			t.Errorf("%s ROI = %v, want about %v", c.Strategy, c.ExpectedROI, wantROI)
		}
		stake, _ := c.StakeFraction.Float64()
		if stake <= 0 || stake > 0.05 {
			t.Errorf("%s stake fraction = %v, want in (0, 0.05]", c.Strategy, stake)
		}
	}
}

func TestCombinationsSortedByROI(t *testing.T) {
	preds := []*predict.HybridPrediction{
		predWith("m1", 0.90, 0.62, 0.23, 0.15),
		predWith("m2", 0.85, 0.58, 0.27, 0.15),
		predWith("m3", 0.82, 0.56, 0.28, 0.16),
	}

	cands := buildCandidates(preds, nil, nil, 0.05)
	combos := buildCombinations(cands, 0.05)

	for i := 1; i < len(combos); i++ {
		if combos[i-1].ExpectedROI < combos[i].ExpectedROI {
			t.Errorf("combinations not sorted by ROI: %v before %v",
				combos[i-1].ExpectedROI, combos[i].ExpectedROI)
		}
	}
	if len(combos) > 6 {
		t.Errorf("got %d combinations, want at most one per strategy", len(combos))
	}
}

func TestScoreCombinationRiskAndStake(t *testing.T) {
	highConf := []Selection{
		{Probability: 0.60, Confidence: 0.85, Price: decimal.RequireFromString("1.80")},
		{Probability: 0.55, Confidence: 0.85, Price: decimal.RequireFromString("1.90")},
	}
	c := scoreCombination(StrategyHighConfidence, highConf, 0.05)
	if c.Risk != RiskLevelLow {
		t.Errorf("risk = %s, want low for 0.85 confidence and 0.33 win prob", c.Risk)
	}

	longshot := []Selection{
		{Probability: 0.20, Confidence: 0.50, Price: decimal.RequireFromString("5.00")},
		{Probability: 0.25, Confidence: 0.55, Price: decimal.RequireFromString("4.00")},
	}
	c = scoreCombination(StrategyAggressive, longshot, 0.05)
	if c.Risk != RiskLevelHigh {
		t.Errorf("risk = %s, want high", c.Risk)
	}
	stake, _ := c.StakeFraction.Float64()
	if stake != 0.01 {
		t.Errorf("stake = %v, want the 0.01 floor for high risk", stake)
	}
}

func TestBuildCandidatesQuotesWithoutMarket(t *testing.T) {
	preds := []*predict.HybridPrediction{predWith("m1", 0.80, 0.50, 0.30, 0.20)}

	cands := buildCandidates(preds, nil, nil, 0.05)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	c := cands[0]
	if c.hasMarket {
		t.Error("candidate claims a market it does not have")
	}
	// 1/(0.5*1.05) rounded: 1.90.
	if !c.top.Price.Equal(decimal.RequireFromString("1.9")) {
		t.Errorf("quoted price = %s, want 1.9", c.top.Price)
	}
	if c.top.Value != 0 {
		t.Errorf("value = %v without a market, want 0", c.top.Value)
	}
}
