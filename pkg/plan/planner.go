package plan

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
)

// SlatePlan is the planner's output for one slate.
type SlatePlan struct {
	PlanID              string          `json:"plan_id"`
	Markings            []Marking       `json:"markings"`
	TotalCombinations   int             `json:"total_combinations"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	ExpectedProbability float64         `json:"expected_probability"`
	Combinations        []Combination   `json:"combinations"`
	Summary             Summary         `json:"summary"`
	Timestamp           time.Time       `json:"timestamp"`
}

// Planner assembles markings and strategy portfolios for a slate.
type Planner struct {
	cfg Config
	log zerolog.Logger
}

// NewPlanner creates a planner. Zero config fields take defaults.
func NewPlanner(cfg Config, log zerolog.Logger) *Planner {
	def := DefaultConfig()
	if cfg.SingleConfidence == 0 {
		cfg.SingleConfidence = def.SingleConfidence
	}
	if cfg.SingleProbability == 0 {
		cfg.SingleProbability = def.SingleProbability
	}
	if cfg.DoubleProbability == 0 {
		cfg.DoubleProbability = def.DoubleProbability
	}
	if cfg.Budget.IsZero() {
		cfg.Budget = def.Budget
	}
	if cfg.UnitCost.IsZero() {
		cfg.UnitCost = def.UnitCost
	}
	if cfg.PriceMargin == 0 {
		cfg.PriceMargin = def.PriceMargin
	}
	if cfg.MaxStakeFraction == 0 {
		cfg.MaxStakeFraction = def.MaxStakeFraction
	}
	return &Planner{cfg: cfg, log: log.With().Str("component", "planner").Logger()}
}

// Plan marks every match, enforces the budget, and builds the strategy
// portfolios. markets and upsetScores may be nil or partial; matches
// without reference prices are quoted from the model distribution.
func (p *Planner) Plan(preds []*predict.HybridPrediction, markets map[string]*predict.MarketOdds, upsetScores map[string]float64) *SlatePlan {
	byID := make(map[string]*predict.HybridPrediction, len(preds))
	markings := make([]Marking, 0, len(preds))
	for _, pred := range preds {
		byID[pred.MatchID] = pred
		markings = append(markings, MarkMatch(pred, p.cfg))
	}

	if p.cfg.UpsetCover && len(upsetScores) > 0 {
		applyUpsetCover(markings, byID, upsetScores)
	}

	before := TotalCombinations(markings)
	markings = ReduceToBudget(markings, byID, p.cfg.Budget, p.cfg.UnitCost)
	after := TotalCombinations(markings)
	if after < before {
		p.log.Info().Int("before", before).Int("after", after).
			Str("budget", p.cfg.Budget.String()).Msg("reduced markings to fit budget")
	}

	cands := buildCandidates(preds, markets, upsetScores, p.cfg.PriceMargin)

	return &SlatePlan{
		PlanID:              uuid.NewString(),
		Markings:            markings,
		TotalCombinations:   after,
		TotalCost:           SlateCost(markings, p.cfg.UnitCost),
		ExpectedProbability: ExpectedProbability(markings),
		Combinations:        buildCombinations(cands, p.cfg.MaxStakeFraction),
		Summary:             summarize(markings),
		Timestamp:           time.Now(),
	}
}
