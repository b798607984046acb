// Package predict defines the shared domain types for the slate
// prediction pipeline: match inputs, provider opinions, and the
// probability distributions that flow between stages.
package predict

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one of the fixed match result categories.
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

// Outcomes lists the categories in display order (1/X/2).
var Outcomes = []Outcome{OutcomeHome, OutcomeDraw, OutcomeAway}

// Complement returns the outcome to back when the market overestimates o.
// For the draw the complement is the draw itself.
func (o Outcome) Complement() Outcome {
	switch o {
	case OutcomeHome:
		return OutcomeAway
	case OutcomeAway:
		return OutcomeHome
	default:
		return OutcomeDraw
	}
}

// ErrMissingMatchID is returned when an analysis request has no match
// identifier. It is the only input defect that surfaces as an error;
// everything else degrades to a low-confidence result.
var ErrMissingMatchID = errors.New("match context missing identifier")

// Distribution maps each outcome to its probability. A well-formed
// distribution is non-negative and sums to 1 within rounding tolerance.
type Distribution map[Outcome]float64

// UniformDistribution is the maximally uncertain three-way split.
func UniformDistribution() Distribution {
	return Distribution{OutcomeHome: 0.33, OutcomeDraw: 0.34, OutcomeAway: 0.33}
}

// Normalize scales the distribution in place so its values sum to 1.
// A zero-mass distribution becomes uniform.
func (d Distribution) Normalize() {
	total := d.Sum()
	if total <= 0 {
		for k, v := range UniformDistribution() {
			d[k] = v
		}
		return
	}
	for k, v := range d {
		d[k] = v / total
	}
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	total := 0.0
	for _, v := range d {
		total += v
	}
	return total
}

// Top returns the most probable outcome and its probability.
func (d Distribution) Top() (Outcome, float64) {
	best := OutcomeDraw
	bestP := -1.0
	for _, o := range Outcomes {
		if p := d[o]; p > bestP {
			best, bestP = o, p
		}
	}
	return best, bestP
}

// TopTwo returns the two most probable outcomes, highest first.
func (d Distribution) TopTwo() ([2]Outcome, float64) {
	ranked := append([]Outcome(nil), Outcomes...)
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if d[ranked[j]] > d[ranked[i]] {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}
	pair := [2]Outcome{ranked[0], ranked[1]}
	return pair, d[ranked[0]] + d[ranked[1]]
}

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Entropy returns the Shannon entropy of the distribution in bits.
func (d Distribution) Entropy() float64 {
	h := 0.0
	for _, p := range d {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// TeamStats carries the numeric features a statistics source supplies
// for one side of a match. All fields are optional; sub-models that
// need a missing field are skipped during blending.
type TeamStats struct {
	GoalsForAvg     float64 `json:"goals_for_avg"`     // scored per match
	GoalsAgainstAvg float64 `json:"goals_against_avg"` // conceded per match
	Rating          float64 `json:"rating"`            // Elo-style rating
	FormDelta       float64 `json:"form_delta"`        // recent rating drift
	Form            string  `json:"form"`              // e.g. "WWDLW", most recent first
	VenueForm       string  `json:"venue_form"`        // home form for the home side, away for the away side
	LeaguePosition  int     `json:"league_position"`
}

// HeadToHead summarizes prior meetings between the two sides, from the
// home team's perspective.
type HeadToHead struct {
	HomeWins int       `json:"home_wins"`
	Draws    int       `json:"draws"`
	AwayWins int       `json:"away_wins"`
	Recent   []Outcome `json:"recent,omitempty"` // most recent first
}

// Total returns the number of recorded meetings.
func (h *HeadToHead) Total() int {
	return h.HomeWins + h.Draws + h.AwayWins
}

// MarketOdds holds the reference bookmaker prices for a match.
type MarketOdds struct {
	Home decimal.Decimal `json:"home"`
	Draw decimal.Decimal `json:"draw"`
	Away decimal.Decimal `json:"away"`
}

// Price returns the quoted price for an outcome.
func (m *MarketOdds) Price(o Outcome) decimal.Decimal {
	switch o {
	case OutcomeHome:
		return m.Home
	case OutcomeAway:
		return m.Away
	default:
		return m.Draw
	}
}

// MatchContext is the immutable input for one match analysis.
type MatchContext struct {
	MatchID     string      `json:"match_id"`
	HomeTeam    string      `json:"home_team"`
	AwayTeam    string      `json:"away_team"`
	Competition string      `json:"competition,omitempty"`
	KickoffTime time.Time   `json:"kickoff_time,omitempty"`
	HomeStats   *TeamStats  `json:"home_stats,omitempty"`
	AwayStats   *TeamStats  `json:"away_stats,omitempty"`
	H2H         *HeadToHead `json:"h2h,omitempty"`
	Market      *MarketOdds `json:"market,omitempty"`
}

// Validate checks the minimal input shape.
func (m *MatchContext) Validate() error {
	if m == nil || m.MatchID == "" {
		return ErrMissingMatchID
	}
	return nil
}

// Opinion is one provider's structured view of a match.
type Opinion struct {
	Provider      string          `json:"provider"`
	Winner        Outcome         `json:"winner"`
	Confidence    float64         `json:"confidence"` // 0-100
	Probabilities Distribution    `json:"probabilities"`
	Rationale     string          `json:"rationale,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	LatencyMs     int64           `json:"latency_ms"`
}

// ConfidenceTier buckets a 0-100 confidence score.
type ConfidenceTier string

const (
	TierHigh      ConfidenceTier = "high"
	TierMedium    ConfidenceTier = "medium"
	TierLow       ConfidenceTier = "low"
	TierUncertain ConfidenceTier = "uncertain"
)

// TierForConfidence maps a 0-100 confidence to its tier.
func TierForConfidence(conf float64) ConfidenceTier {
	switch {
	case conf >= 80:
		return TierHigh
	case conf >= 60:
		return TierMedium
	case conf >= 40:
		return TierLow
	default:
		return TierUncertain
	}
}

// ConsensusResult is the weighted aggregate of all surviving provider
// opinions for one match.
type ConsensusResult struct {
	MatchID        string         `json:"match_id"`
	Winner         Outcome        `json:"winner"`
	Confidence     float64        `json:"confidence"` // 0-100
	Tier           ConfidenceTier `json:"tier"`
	Probabilities  Distribution   `json:"probabilities"`
	Agreement      float64        `json:"agreement"` // fraction of opinions matching Winner
	Recommendation string         `json:"recommendation"`
	Opinions       []Opinion      `json:"opinions,omitempty"`
	Cached         bool           `json:"cached"`
	Timestamp      time.Time      `json:"timestamp"`
}

// TierKind identifies one of the synthesizer's prediction tiers.
type TierKind string

const (
	TierProvider    TierKind = "provider"
	TierLearned     TierKind = "learned"
	TierStatistical TierKind = "statistical"
)

// TierResult is one tier's contribution to a hybrid prediction.
type TierResult struct {
	Tier          TierKind     `json:"tier"`
	Probabilities Distribution `json:"probabilities"`
	Confidence    float64      `json:"confidence"` // 0-1
	Weight        float64      `json:"weight"`     // renormalized share
}

// HybridPrediction is the final calibrated distribution for one match.
type HybridPrediction struct {
	MatchID        string        `json:"match_id"`
	HomeTeam       string        `json:"home_team,omitempty"`
	AwayTeam       string        `json:"away_team,omitempty"`
	Probabilities  Distribution  `json:"probabilities"`
	Winner         Outcome       `json:"winner"`
	Confidence     float64       `json:"confidence"`      // 0-1
	ConsensusScore float64       `json:"consensus_score"` // 0-1, cross-tier agreement
	Tiers          []TierResult  `json:"tiers,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	Elapsed        time.Duration `json:"elapsed"`
}
