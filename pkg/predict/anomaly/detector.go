// Package anomaly flags matches where the synthesized probabilities
// diverge from the reference market, and scores structural upset
// signals across the slate.
package anomaly

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/odds"
	"github.com/junhopark/slatepick/pkg/predict"
)

// Classification of the divergence direction.
type Classification string

const (
	ClassNone           Classification = "none"
	ClassUnderestimated Classification = "underestimated" // market underrates the outcome
	ClassOverestimated  Classification = "overestimated"  // market overrates the outcome
)

// RiskTier buckets how safe acting on the anomaly is.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Analysis is the verdict for one match.
type Analysis struct {
	MatchID    string               `json:"match_id"`
	Candidate  bool                 `json:"candidate"`
	Kind       Classification       `json:"kind"`
	Outcome    predict.Outcome      `json:"outcome,omitempty"` // the diverging outcome
	Bet        predict.Outcome      `json:"bet,omitempty"`     // recommended outcome to back
	Divergence float64              `json:"divergence"`        // signed, model minus market
	Risk       RiskTier             `json:"risk,omitempty"`
	Implied    predict.Distribution `json:"implied,omitempty"`
}

// Config holds the detection thresholds.
type Config struct {
	MinDivergence float64 `yaml:"min_divergence"`
	MinConfidence float64 `yaml:"min_confidence"` // 0-1
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinDivergence: 0.15, MinConfidence: 0.70}
}

// Detector compares hybrid predictions against market prices.
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// New creates a detector, filling zero thresholds with defaults.
func New(cfg Config, log zerolog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.MinDivergence == 0 {
		cfg.MinDivergence = def.MinDivergence
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	return &Detector{cfg: cfg, log: log.With().Str("component", "anomaly").Logger()}
}

// Detect flags a candidate only when the largest divergence clears the
// threshold and the prediction is confident. A nil market yields a
// non-candidate verdict.
func (d *Detector) Detect(pred *predict.HybridPrediction, market *predict.MarketOdds) *Analysis {
	analysis := &Analysis{MatchID: pred.MatchID, Kind: ClassNone}
	if market == nil {
		return analysis
	}

	implied := odds.ImpliedDistribution(market)
	analysis.Implied = implied

	var worst predict.Outcome
	worstDiv := 0.0
	for _, o := range predict.Outcomes {
		div := pred.Probabilities[o] - implied[o]
		if math.Abs(div) > math.Abs(worstDiv) {
			worst, worstDiv = o, div
		}
	}
	analysis.Outcome = worst
	analysis.Divergence = worstDiv

	if math.Abs(worstDiv) < d.cfg.MinDivergence || pred.Confidence < d.cfg.MinConfidence {
		return analysis
	}

	analysis.Candidate = true
	if worstDiv > 0 {
		analysis.Kind = ClassUnderestimated
		analysis.Bet = worst
	} else {
		analysis.Kind = ClassOverestimated
		analysis.Bet = worst.Complement()
	}
	analysis.Risk = riskTier(worstDiv, pred.Confidence)

	d.log.Info().Str("match", pred.MatchID).Str("kind", string(analysis.Kind)).
		Float64("divergence", worstDiv).Str("bet", string(analysis.Bet)).
		Msg("anomaly candidate")

	return analysis
}

// FindAll scans a slate and returns the candidates ordered by
// divergence magnitude, largest first.
func (d *Detector) FindAll(preds []*predict.HybridPrediction, markets map[string]*predict.MarketOdds) []*Analysis {
	candidates := make([]*Analysis, 0, len(preds))
	for _, pred := range preds {
		if a := d.Detect(pred, markets[pred.MatchID]); a.Candidate {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].Divergence) > math.Abs(candidates[j].Divergence)
	})
	return candidates
}

// riskTier is monotone in 2|divergence| + 0.5*confidence: a stronger
// signal at higher confidence is the safer play.
func riskTier(divergence, confidence float64) RiskTier {
	score := 2*math.Abs(divergence) + 0.5*confidence
	switch {
	case score >= 0.60:
		return RiskLow
	case score >= 0.35:
		return RiskMedium
	default:
		return RiskHigh
	}
}
