// Package plan turns per-match hybrid predictions into slate markings
// and budget-bounded bet portfolios.
package plan

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/anomaly"
)

// Config holds the marking thresholds and the budget policy.
type Config struct {
	SingleConfidence  float64         `yaml:"single_confidence"`  // 0-100
	SingleProbability float64         `yaml:"single_probability"` // top outcome
	DoubleProbability float64         `yaml:"double_probability"` // top-two sum
	Budget            decimal.Decimal `yaml:"budget"`
	UnitCost          decimal.Decimal `yaml:"unit_cost"` // per combination
	PriceMargin       float64         `yaml:"price_margin"`
	MaxStakeFraction  float64         `yaml:"max_stake_fraction"`
	UpsetCover        bool            `yaml:"upset_cover"` // widen singles on upset-prone matches
}

// DefaultConfig returns the standard marking policy.
func DefaultConfig() Config {
	return Config{
		SingleConfidence:  70,
		SingleProbability: 0.55,
		DoubleProbability: 0.75,
		Budget:            decimal.NewFromInt(100000),
		UnitCost:          decimal.NewFromInt(1000),
		PriceMargin:       0.05,
		MaxStakeFraction:  0.05,
		UpsetCover:        true,
	}
}

// AggressiveConfig marks singles earlier, buying more combinations.
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SingleConfidence = 65
	cfg.SingleProbability = 0.50
	return cfg
}

// ConservativeConfig demands more certainty before narrowing.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.SingleConfidence = 75
	cfg.SingleProbability = 0.60
	return cfg
}

// Marking is the set of outcomes bet for one match.
type Marking struct {
	MatchID     string            `json:"match_id"`
	Outcomes    []predict.Outcome `json:"outcomes"` // ranked, most probable first
	Probability float64           `json:"probability"`
	Confidence  float64           `json:"confidence"` // 0-100
	UpsetScore  float64           `json:"upset_score,omitempty"`
}

// Cardinality returns how many outcomes are marked.
func (m Marking) Cardinality() int { return len(m.Outcomes) }

// MarkMatch decides single, double, or cover-all for one match. The
// three rules are evaluated in order: a confident clear favourite gets
// a single; a dominant top pair gets a double; everything else covers
// all outcomes.
func MarkMatch(pred *predict.HybridPrediction, cfg Config) Marking {
	conf := pred.Confidence * 100
	top, topProb := pred.Probabilities.Top()
	pair, pairProb := pred.Probabilities.TopTwo()

	m := Marking{MatchID: pred.MatchID, Confidence: conf}

	switch {
	case conf >= cfg.SingleConfidence && topProb >= cfg.SingleProbability:
		m.Outcomes = []predict.Outcome{top}
		m.Probability = topProb
	case pairProb >= cfg.DoubleProbability:
		m.Outcomes = []predict.Outcome{pair[0], pair[1]}
		m.Probability = pairProb
	default:
		m.Outcomes = rankedOutcomes(pred.Probabilities)
		m.Probability = 1.0
	}
	return m
}

// widen extends the marking to cover one more outcome.
func (m *Marking) widen(dist predict.Distribution) {
	if len(m.Outcomes) >= len(predict.Outcomes) {
		return
	}
	for _, o := range rankedOutcomes(dist) {
		if !m.contains(o) {
			m.Outcomes = append(m.Outcomes, o)
			m.Probability += dist[o]
			return
		}
	}
}

// narrow drops the least probable marked outcome.
func (m *Marking) narrow(dist predict.Distribution) {
	if len(m.Outcomes) <= 1 {
		return
	}
	last := m.Outcomes[len(m.Outcomes)-1]
	m.Outcomes = m.Outcomes[:len(m.Outcomes)-1]
	m.Probability -= dist[last]
}

func (m *Marking) contains(o predict.Outcome) bool {
	for _, x := range m.Outcomes {
		if x == o {
			return true
		}
	}
	return false
}

func rankedOutcomes(dist predict.Distribution) []predict.Outcome {
	ranked := append([]predict.Outcome(nil), predict.Outcomes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return dist[ranked[i]] > dist[ranked[j]]
	})
	return ranked
}

// TotalCombinations is the product of per-match cardinalities.
func TotalCombinations(markings []Marking) int {
	total := 1
	for i := range markings {
		total *= markings[i].Cardinality()
	}
	return total
}

// SlateCost prices the marked combinations.
func SlateCost(markings []Marking, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(TotalCombinations(markings))))
}

// ExpectedProbability is the chance every match lands inside its
// marking: the product of per-match marked-probability sums.
func ExpectedProbability(markings []Marking) float64 {
	p := 1.0
	for i := range markings {
		p *= markings[i].Probability
	}
	return p
}

// applyUpsetCover widens confident singles on structurally upset-prone
// matches before the budget pass.
func applyUpsetCover(markings []Marking, preds map[string]*predict.HybridPrediction, scores map[string]float64) {
	for i := range markings {
		m := &markings[i]
		m.UpsetScore = scores[m.MatchID]
		if m.UpsetScore >= anomaly.UpsetThreshold && m.Cardinality() == 1 {
			if pred, ok := preds[m.MatchID]; ok {
				m.widen(pred.Probabilities)
			}
		}
	}
}

// ReduceToBudget narrows markings until the combination cost fits the
// budget. Reductions hit the lowest-confidence matches first, taking
// triples to doubles across the slate before any double becomes a
// single. The final slate is always affordable as long as the budget
// covers one combination.
func ReduceToBudget(markings []Marking, preds map[string]*predict.HybridPrediction, budget, unitCost decimal.Decimal) []Marking {
	affordable := func() bool {
		return SlateCost(markings, unitCost).LessThanOrEqual(budget)
	}
	if affordable() {
		return markings
	}

	order := make([]int, len(markings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return markings[order[a]].Confidence < markings[order[b]].Confidence
	})

	for _, wantCard := range []int{3, 2} {
		for _, idx := range order {
			if affordable() {
				return markings
			}
			m := &markings[idx]
			if m.Cardinality() != wantCard {
				continue
			}
			if pred, ok := preds[m.MatchID]; ok {
				m.narrow(pred.Probabilities)
			} else {
				m.Outcomes = m.Outcomes[:len(m.Outcomes)-1]
			}
		}
	}
	return markings
}
