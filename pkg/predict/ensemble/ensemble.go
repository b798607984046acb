// Package ensemble combines four closed-form statistical sub-models
// (Poisson scoreline, rating differential, recent form, head-to-head)
// into one blended match distribution.
package ensemble

import (
	"github.com/junhopark/slatepick/pkg/predict"
)

// Sub-model identifiers.
const (
	ModelPoisson = "poisson"
	ModelRating  = "rating"
	ModelForm    = "form"
	ModelH2H     = "h2h"
)

// Config holds the ensemble parameters. All values are policy
// constants that can be overridden from configuration.
type Config struct {
	ModelWeights    map[string]float64 `yaml:"model_weights"`
	LeagueAvgGoals  float64            `yaml:"league_avg_goals"`
	HomeAdvantage   float64            `yaml:"home_advantage"`
	HomeRatingBonus float64            `yaml:"home_rating_bonus"`
	MaxGoals        int                `yaml:"max_goals"`
}

// DefaultConfig returns the standard parameterization.
func DefaultConfig() Config {
	return Config{
		ModelWeights: map[string]float64{
			ModelPoisson: 0.30,
			ModelRating:  0.25,
			ModelForm:    0.25,
			ModelH2H:     0.20,
		},
		LeagueAvgGoals:  2.5,
		HomeAdvantage:   1.1,
		HomeRatingBonus: 100,
		MaxGoals:        5,
	}
}

// SubResult is one sub-model's output.
type SubResult struct {
	Model         string               `json:"model"`
	Probabilities predict.Distribution `json:"probabilities"`
	Confidence    float64              `json:"confidence"` // 0-100
	Weight        float64              `json:"weight"`
}

// Result is the blended ensemble prediction.
type Result struct {
	Probabilities predict.Distribution `json:"probabilities"`
	Winner        predict.Outcome      `json:"winner"`
	Confidence    float64              `json:"confidence"` // 0-100
	Agreement     float64              `json:"agreement"`  // 0-1, plurality share
	SubResults    []SubResult          `json:"sub_results"`
}

// Engine evaluates the sub-models and blends them. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an engine, filling zero config fields with defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if len(cfg.ModelWeights) == 0 {
		cfg.ModelWeights = def.ModelWeights
	}
	if cfg.LeagueAvgGoals == 0 {
		cfg.LeagueAvgGoals = def.LeagueAvgGoals
	}
	if cfg.HomeAdvantage == 0 {
		cfg.HomeAdvantage = def.HomeAdvantage
	}
	if cfg.HomeRatingBonus == 0 {
		cfg.HomeRatingBonus = def.HomeRatingBonus
	}
	if cfg.MaxGoals == 0 {
		cfg.MaxGoals = def.MaxGoals
	}
	return &Engine{cfg: cfg}
}

// Predict runs every sub-model whose inputs are present and blends
// them. With no usable inputs at all the result is uniform with
// confidence 0.
func (e *Engine) Predict(home, away *predict.TeamStats, h2h *predict.HeadToHead) *Result {
	subs := make([]SubResult, 0, 4)

	if sr, ok := e.poissonModel(home, away); ok {
		subs = append(subs, sr)
	}
	if sr, ok := e.ratingModel(home, away); ok {
		subs = append(subs, sr)
	}
	if sr, ok := e.formModel(home, away); ok {
		subs = append(subs, sr)
	}
	if sr, ok := e.h2hModel(h2h); ok {
		subs = append(subs, sr)
	}

	return e.blend(subs)
}

// blend folds sub-model outputs with weight x confidence scaling.
// Absent sub-models drop out of the normalizer, which redistributes
// their share proportionally among the rest.
func (e *Engine) blend(subs []SubResult) *Result {
	result := &Result{SubResults: subs}

	if len(subs) == 0 {
		result.Probabilities = predict.UniformDistribution()
		result.Winner = predict.OutcomeDraw
		result.Confidence = 0
		result.Agreement = 0
		return result
	}

	dist := predict.Distribution{}
	confSum := 0.0
	for _, sr := range subs {
		effective := sr.Weight * sr.Confidence
		for _, o := range predict.Outcomes {
			dist[o] += sr.Probabilities[o] * effective
		}
		confSum += sr.Confidence
	}
	dist.Normalize()

	winner, _ := dist.Top()

	// Plurality agreement across sub-model picks.
	votes := map[predict.Outcome]int{}
	for _, sr := range subs {
		top, _ := sr.Probabilities.Top()
		votes[top]++
	}
	plurality := 0
	for _, n := range votes {
		if n > plurality {
			plurality = n
		}
	}
	agreement := float64(plurality) / float64(len(subs))

	avgConf := confSum / float64(len(subs))

	result.Probabilities = dist
	result.Winner = winner
	result.Confidence = avgConf * (0.7 + 0.3*agreement)
	result.Agreement = agreement
	return result
}
