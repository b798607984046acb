package plan

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/odds"
	"github.com/junhopark/slatepick/pkg/predict"
)

// Strategy names a portfolio construction rule.
type Strategy string

const (
	StrategyBestGuess      Strategy = "best_guess"
	StrategyHighConfidence Strategy = "high_confidence"
	StrategyHighValue      Strategy = "high_value"
	StrategyBalanced       Strategy = "balanced"
	StrategySafe           Strategy = "safe"
	StrategyAggressive     Strategy = "aggressive"
)

// RiskLevel buckets a combination's risk.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Selection is one match's pick inside a combination.
type Selection struct {
	MatchID     string          `json:"match_id"`
	Outcome     predict.Outcome `json:"outcome"`
	Probability float64         `json:"probability"`
	Confidence  float64         `json:"confidence"` // 0-1
	Price       decimal.Decimal `json:"price"`
	Value       float64         `json:"value,omitempty"` // edge vs reference price
}

// Combination is a named strategy's set of selections with its
// expected-value metrics.
type Combination struct {
	Strategy       Strategy        `json:"strategy"`
	Selections     []Selection     `json:"selections"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	WinProbability float64         `json:"win_probability"`
	ExpectedROI    float64         `json:"expected_roi"`
	Risk           RiskLevel       `json:"risk"`
	StakeFraction  decimal.Decimal `json:"stake_fraction"`
}

// candidate carries the per-match numbers every strategy filters on.
type candidate struct {
	matchID    string
	conf       float64 // 0-1
	top        Selection
	second     Selection
	hasSecond  bool
	hasMarket  bool
	upsetScore float64
}

// buildCandidates prices every match's top two outcomes. Without a
// reference market the model's own distribution is quoted with the
// configured margin; value is only meaningful against a real market.
func buildCandidates(preds []*predict.HybridPrediction, markets map[string]*predict.MarketOdds, upsets map[string]float64, margin float64) []candidate {
	cands := make([]candidate, 0, len(preds))
	for _, pred := range preds {
		market, hasMarket := markets[pred.MatchID]
		book := market
		if !hasMarket || book == nil {
			book = odds.QuoteBook(pred.Probabilities, margin)
			hasMarket = false
		}

		pair, _ := pred.Probabilities.TopTwo()
		c := candidate{
			matchID:    pred.MatchID,
			conf:       pred.Confidence,
			hasMarket:  hasMarket,
			upsetScore: upsets[pred.MatchID],
		}
		c.top = selectionFor(pred, pair[0], book, hasMarket)
		if pred.Probabilities[pair[1]] > 0 {
			c.second = selectionFor(pred, pair[1], book, hasMarket)
			c.hasSecond = true
		}
		cands = append(cands, c)
	}
	return cands
}

func selectionFor(pred *predict.HybridPrediction, o predict.Outcome, book *predict.MarketOdds, hasMarket bool) Selection {
	s := Selection{
		MatchID:     pred.MatchID,
		Outcome:     o,
		Probability: pred.Probabilities[o],
		Confidence:  pred.Confidence,
		Price:       book.Price(o),
	}
	if hasMarket {
		s.Value = odds.Value(s.Probability, s.Price)
	}
	return s
}

// buildCombinations runs every strategy, most profitable first.
func buildCombinations(cands []candidate, maxStake float64) []Combination {
	combos := make([]Combination, 0, 6)

	add := func(strategy Strategy, sels []Selection) {
		if len(sels) == 0 {
			return
		}
		combos = append(combos, scoreCombination(strategy, sels, maxStake))
	}

	add(StrategyBestGuess, pickBestGuess(cands))
	add(StrategyHighConfidence, pickHighConfidence(cands))
	add(StrategyHighValue, pickHighValue(cands))
	add(StrategyBalanced, pickBalanced(cands))
	add(StrategySafe, pickSafe(cands))
	add(StrategyAggressive, pickAggressive(cands))

	sort.SliceStable(combos, func(i, j int) bool {
		return combos[i].ExpectedROI > combos[j].ExpectedROI
	})
	return combos
}

// pickBestGuess takes the top outcome of every match.
func pickBestGuess(cands []candidate) []Selection {
	sels := make([]Selection, 0, len(cands))
	for _, c := range cands {
		sels = append(sels, c.top)
	}
	return sels
}

// pickHighConfidence keeps only strongly-held picks.
func pickHighConfidence(cands []candidate) []Selection {
	var sels []Selection
	for _, c := range cands {
		if c.conf >= 0.80 {
			sels = append(sels, c.top)
		}
	}
	return sels
}

// pickHighValue keeps picks with a clear edge over the market.
func pickHighValue(cands []candidate) []Selection {
	var sels []Selection
	for _, c := range cands {
		if c.hasMarket && c.top.Value >= 0.10 {
			sels = append(sels, c.top)
		}
	}
	sort.SliceStable(sels, func(i, j int) bool { return sels[i].Value > sels[j].Value })
	return sels
}

// pickBalanced trades confidence against probability, capped at seven
// legs.
func pickBalanced(cands []candidate) []Selection {
	var sels []Selection
	for _, c := range cands {
		if c.conf >= 0.65 && c.top.Probability >= 0.40 && c.conf*c.top.Probability >= 0.30 {
			sels = append(sels, c.top)
		}
	}
	sort.SliceStable(sels, func(i, j int) bool {
		return sels[i].Confidence*sels[i].Probability > sels[j].Confidence*sels[j].Probability
	})
	if len(sels) > 7 {
		sels = sels[:7]
	}
	return sels
}

// pickSafe keeps short-priced probable picks, capped at five legs.
func pickSafe(cands []candidate) []Selection {
	limit := decimal.NewFromFloat(2.5)
	var sels []Selection
	for _, c := range cands {
		if c.top.Probability >= 0.55 && c.conf >= 0.70 && c.top.Price.LessThanOrEqual(limit) {
			sels = append(sels, c.top)
		}
	}
	sort.SliceStable(sels, func(i, j int) bool { return sels[i].Probability > sels[j].Probability })
	if len(sels) > 5 {
		sels = sels[:5]
	}
	return sels
}

// pickAggressive backs live second outcomes at longer prices, capped
// at four legs.
func pickAggressive(cands []candidate) []Selection {
	floor := decimal.NewFromFloat(2.0)
	var sels []Selection
	for _, c := range cands {
		if !c.hasSecond || c.conf < 0.55 {
			continue
		}
		if c.second.Probability >= 0.25 && c.second.Price.GreaterThanOrEqual(floor) {
			sels = append(sels, c.second)
		}
	}
	sort.SliceStable(sels, func(i, j int) bool { return sels[i].Probability > sels[j].Probability })
	if len(sels) > 4 {
		sels = sels[:4]
	}
	return sels
}

// scoreCombination computes the aggregate metrics and stake advice.
func scoreCombination(strategy Strategy, sels []Selection, maxStake float64) Combination {
	total := decimal.NewFromInt(1)
	winProb := 1.0
	confSum := 0.0
	for _, s := range sels {
		total = total.Mul(s.Price)
		winProb *= s.Probability
		confSum += s.Confidence
	}
	avgConf := confSum / float64(len(sels))

	price, _ := total.Float64()
	roi := price*winProb - 1

	risk := RiskLevelHigh
	switch {
	case avgConf >= 0.80 && winProb >= 0.15:
		risk = RiskLevelLow
	case avgConf >= 0.70 && winProb >= 0.05:
		risk = RiskLevelMedium
	}

	stake := 0.02
	switch {
	case risk == RiskLevelHigh || roi < 0:
		stake = 0.01
	case roi > 0.5 && risk == RiskLevelLow:
		stake = 0.04
	case roi > 0.2 && risk != RiskLevelHigh:
		stake = 0.03
	}
	if stake > maxStake {
		stake = maxStake
	}

	return Combination{
		Strategy:       strategy,
		Selections:     sels,
		TotalPrice:     total.Round(2),
		WinProbability: winProb,
		ExpectedROI:    roi,
		Risk:           risk,
		StakeFraction:  decimal.NewFromFloat(stake),
	}
}
