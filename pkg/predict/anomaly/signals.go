package anomaly

import (
	"math"

	"github.com/junhopark/slatepick/pkg/predict"
)

// Signal weights for the structural upset score.
const (
	weightProbClose    = 0.35
	weightDisagreement = 0.30
	weightFormConflict = 0.20
	weightRankMismatch = 0.15

	probCloseThreshold   = 0.15 // top-two gap in probability
	disagreementStdLimit = 20.0 // provider confidence spread
)

// UpsetThreshold is the score at which a match should be covered with
// an extra marked outcome.
const UpsetThreshold = 55.0

// SignalBreakdown itemizes the four weighted signals plus adjustments.
type SignalBreakdown struct {
	ProbClose        float64 `json:"prob_close"`
	Disagreement     float64 `json:"disagreement"`
	FormConflict     float64 `json:"form_conflict"`
	RankMismatch     float64 `json:"rank_mismatch"`
	EntropyBonus     float64 `json:"entropy_bonus"`
	ConsensusPenalty float64 `json:"consensus_penalty"`
}

// UpsetScore rates 0-100 how structurally upset-prone a match is,
// independent of market prices. Four weighted signals: the top two
// outcomes being nearly tied, providers disagreeing, the favourite
// carrying worse form than the underdog, and a league-position
// inversion.
func UpsetScore(mc *predict.MatchContext, pred *predict.HybridPrediction, cr *predict.ConsensusResult) (float64, SignalBreakdown) {
	var b SignalBreakdown

	pair, _ := pred.Probabilities.TopTwo()
	gap := pred.Probabilities[pair[0]] - pred.Probabilities[pair[1]]
	if gap < probCloseThreshold {
		b.ProbClose = (1 - gap/probCloseThreshold) * 100
	}

	if cr != nil && len(cr.Opinions) > 1 {
		if std := confidenceStddev(cr.Opinions); std > 0 {
			b.Disagreement = math.Min(1, std/disagreementStdLimit) * 100
		}
	}

	if mc != nil && mc.HomeStats != nil && mc.AwayStats != nil {
		favHome := pred.Winner == predict.OutcomeHome
		b.FormConflict = formConflict(mc.HomeStats, mc.AwayStats, favHome)
		b.RankMismatch = rankMismatch(mc.HomeStats, mc.AwayStats, favHome)
	}

	score := weightProbClose*b.ProbClose +
		weightDisagreement*b.Disagreement +
		weightFormConflict*b.FormConflict +
		weightRankMismatch*b.RankMismatch

	// A flat distribution is inherently harder to call.
	maxEntropy := math.Log2(3)
	b.EntropyBonus = pred.Probabilities.Entropy() / maxEntropy * 10
	score += b.EntropyBonus

	// Cross-tier disagreement compounds the uncertainty.
	b.ConsensusPenalty = (1 - pred.ConsensusScore) * 20
	score += b.ConsensusPenalty

	return math.Max(0, math.Min(100, score)), b
}

func confidenceStddev(opinions []predict.Opinion) float64 {
	mean := 0.0
	for _, op := range opinions {
		mean += op.Confidence
	}
	mean /= float64(len(opinions))

	variance := 0.0
	for _, op := range opinions {
		d := op.Confidence - mean
		variance += d * d
	}
	variance /= float64(len(opinions))
	return math.Sqrt(variance)
}

// formConflict fires when the predicted favourite's recent form trails
// the underdog's.
func formConflict(home, away *predict.TeamStats, favHome bool) float64 {
	homePts := letterPoints(home.Form)
	awayPts := letterPoints(away.Form)

	var favPts, dogPts float64
	if favHome {
		favPts, dogPts = homePts, awayPts
	} else {
		favPts, dogPts = awayPts, homePts
	}
	if dogPts <= favPts {
		return 0
	}
	// Max plausible gap over five matches is 15 points.
	return math.Min(1, (dogPts-favPts)/15) * 100
}

// rankMismatch fires when the favourite sits below the underdog in the
// table.
func rankMismatch(home, away *predict.TeamStats, favHome bool) float64 {
	if home.LeaguePosition == 0 || away.LeaguePosition == 0 {
		return 0
	}

	var favPos, dogPos int
	if favHome {
		favPos, dogPos = home.LeaguePosition, away.LeaguePosition
	} else {
		favPos, dogPos = away.LeaguePosition, home.LeaguePosition
	}
	if favPos <= dogPos {
		return 0
	}
	return math.Min(1, float64(favPos-dogPos)/10) * 100
}

func letterPoints(form string) float64 {
	pts := 0.0
	for i, r := range form {
		if i >= 5 {
			break
		}
		switch r {
		case 'W', 'w':
			pts += 3
		case 'D', 'd':
			pts++
		}
	}
	return pts
}
