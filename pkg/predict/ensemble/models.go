package ensemble

import (
	"math"

	"github.com/junhopark/slatepick/pkg/predict"
)

// poissonModel enumerates joint scorelines from expected goals derived
// via attack/defense ratios against the league average.
func (e *Engine) poissonModel(home, away *predict.TeamStats) (SubResult, bool) {
	if home == nil || away == nil {
		return SubResult{}, false
	}
	if home.GoalsForAvg <= 0 || home.GoalsAgainstAvg <= 0 ||
		away.GoalsForAvg <= 0 || away.GoalsAgainstAvg <= 0 {
		return SubResult{}, false
	}

	avg := e.cfg.LeagueAvgGoals
	homeAttack := home.GoalsForAvg / avg
	homeDefense := home.GoalsAgainstAvg / avg
	awayAttack := away.GoalsForAvg / avg
	awayDefense := away.GoalsAgainstAvg / avg

	homeExp := homeAttack * awayDefense * (avg / 2) * e.cfg.HomeAdvantage
	awayExp := awayAttack * homeDefense * (avg / 2)

	dist := predict.Distribution{}
	for h := 0; h <= e.cfg.MaxGoals; h++ {
		for a := 0; a <= e.cfg.MaxGoals; a++ {
			p := poissonPMF(h, homeExp) * poissonPMF(a, awayExp)
			switch {
			case h > a:
				dist[predict.OutcomeHome] += p
			case h == a:
				dist[predict.OutcomeDraw] += p
			default:
				dist[predict.OutcomeAway] += p
			}
		}
	}
	dist.Normalize()

	conf := math.Min(90, 50+math.Abs(homeExp-awayExp)*10)

	return SubResult{
		Model:         ModelPoisson,
		Probabilities: dist,
		Confidence:    conf,
		Weight:        e.cfg.ModelWeights[ModelPoisson],
	}, true
}

func poissonPMF(k int, lambda float64) float64 {
	fact := 1.0
	for i := 2; i <= k; i++ {
		fact *= float64(i)
	}
	return math.Pow(lambda, float64(k)) * math.Exp(-lambda) / fact
}

// ratingModel applies the logistic expectancy of the rating gap with a
// home bonus, allocating a draw share inverse to the gap.
func (e *Engine) ratingModel(home, away *predict.TeamStats) (SubResult, bool) {
	if home == nil || away == nil || home.Rating <= 0 || away.Rating <= 0 {
		return SubResult{}, false
	}

	diff := (home.Rating + e.cfg.HomeRatingBonus + home.FormDelta) - (away.Rating + away.FormDelta)
	expectancy := 1 / (1 + math.Pow(10, -diff/400))

	draw := 0.25 + math.Max(0, 1-math.Abs(diff)/400)*0.15

	dist := predict.Distribution{
		predict.OutcomeHome: expectancy * (1 - draw),
		predict.OutcomeDraw: draw,
		predict.OutcomeAway: (1 - expectancy) * (1 - draw),
	}
	dist.Normalize()

	conf := math.Min(90, 50+math.Abs(diff)/10)

	return SubResult{
		Model:         ModelRating,
		Probabilities: dist,
		Confidence:    conf,
		Weight:        e.cfg.ModelWeights[ModelRating],
	}, true
}

// formWeights favour the most recent results.
var formWeights = []float64{1.5, 1.3, 1.1, 0.9, 0.7}

// formModel converts recent result letters into recency-weighted point
// totals, blending overall with venue-specific form.
func (e *Engine) formModel(home, away *predict.TeamStats) (SubResult, bool) {
	if home == nil || away == nil || (home.Form == "" && away.Form == "") {
		return SubResult{}, false
	}

	homePts := blendedFormPoints(home) * e.cfg.HomeAdvantage
	awayPts := blendedFormPoints(away)
	total := homePts + awayPts
	if total <= 0 {
		return SubResult{}, false
	}

	gap := math.Abs(homePts - awayPts)
	similarity := 1 - gap/total
	draw := 0.2 + similarity*0.15

	dist := predict.Distribution{
		predict.OutcomeHome: (homePts / total) * (1 - draw),
		predict.OutcomeDraw: draw,
		predict.OutcomeAway: (awayPts / total) * (1 - draw),
	}
	dist.Normalize()

	conf := math.Min(85, 45+gap*5)

	return SubResult{
		Model:         ModelForm,
		Probabilities: dist,
		Confidence:    conf,
		Weight:        e.cfg.ModelWeights[ModelForm],
	}, true
}

func blendedFormPoints(ts *predict.TeamStats) float64 {
	overall := formPoints(ts.Form)
	if ts.VenueForm == "" {
		return overall
	}
	return 0.6*overall + 0.4*formPoints(ts.VenueForm)
}

// formPoints scores a result string like "WWDLW", most recent first.
// An empty string scores a neutral 5 points.
func formPoints(form string) float64 {
	if form == "" {
		return 5
	}
	pts := 0.0
	for i, r := range form {
		if i >= len(formWeights) {
			break
		}
		switch r {
		case 'W', 'w':
			pts += 3 * formWeights[i]
		case 'D', 'd':
			pts += 1 * formWeights[i]
		}
	}
	return pts
}

// h2hModel turns historical meeting counts into probabilities with a
// recent-trend nudge and a home rebalance.
func (e *Engine) h2hModel(h2h *predict.HeadToHead) (SubResult, bool) {
	if h2h == nil || h2h.Total() == 0 {
		return SubResult{}, false
	}

	total := float64(h2h.Total())
	dist := predict.Distribution{
		predict.OutcomeHome: float64(h2h.HomeWins) / total,
		predict.OutcomeDraw: float64(h2h.Draws) / total,
		predict.OutcomeAway: float64(h2h.AwayWins) / total,
	}

	// Trend: shift toward whichever side dominates the recent meetings
	// relative to the full history.
	if len(h2h.Recent) >= 2 {
		recentHome := 0
		for _, o := range h2h.Recent {
			if o == predict.OutcomeHome {
				recentHome++
			}
		}
		recentRate := float64(recentHome) / float64(len(h2h.Recent))
		overallRate := float64(h2h.HomeWins) / total
		if recentRate > overallRate {
			dist[predict.OutcomeHome] += 0.05
			dist[predict.OutcomeAway] = math.Max(0, dist[predict.OutcomeAway]-0.05)
		} else if recentRate < overallRate {
			dist[predict.OutcomeAway] += 0.05
			dist[predict.OutcomeHome] = math.Max(0, dist[predict.OutcomeHome]-0.05)
		}
	}

	dist[predict.OutcomeHome] *= 1.05
	dist[predict.OutcomeAway] *= 0.95
	dist.Normalize()

	conf := math.Min(80, 30+total*5)

	return SubResult{
		Model:         ModelH2H,
		Probabilities: dist,
		Confidence:    conf,
		Weight:        e.cfg.ModelWeights[ModelH2H],
	}, true
}
