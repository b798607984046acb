package ensemble

import (
	"math"
	"testing"

	"github.com/junhopark/slatepick/pkg/predict"
)

func strongHome() *predict.TeamStats {
	return &predict.TeamStats{
		GoalsForAvg:     2.4,
		GoalsAgainstAvg: 0.8,
		Rating:          1850,
		Form:            "WWWWD",
		VenueForm:       "WWWWW",
	}
}

func weakAway() *predict.TeamStats {
	return &predict.TeamStats{
		GoalsForAvg:     0.9,
		GoalsAgainstAvg: 2.1,
		Rating:          1500,
		Form:            "LLDLL",
		VenueForm:       "LLLDL",
	}
}

func TestPredictAllModelsPresent(t *testing.T) {
	e := New(DefaultConfig())
	h2h := &predict.HeadToHead{HomeWins: 6, Draws: 2, AwayWins: 2}

	result := e.Predict(strongHome(), weakAway(), h2h)

	if len(result.SubResults) != 4 {
		t.Fatalf("got %d sub-models, want 4", len(result.SubResults))
	}
	if sum := result.Probabilities.Sum(); math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("blended distribution sums to %v, want 1", sum)
	}
	if result.Winner != predict.OutcomeHome {
		t.Errorf("winner = %s, want home for a dominant home side", result.Winner)
	}
	if result.Probabilities[predict.OutcomeHome] <= result.Probabilities[predict.OutcomeAway] {
		t.Errorf("home prob %v should exceed away prob %v",
			result.Probabilities[predict.OutcomeHome], result.Probabilities[predict.OutcomeAway])
	}
	if result.Agreement != 1.0 {
		t.Errorf("agreement = %v, want 1.0 when every model picks home", result.Agreement)
	}
	if result.Confidence <= 0 || result.Confidence > 100 {
		t.Errorf("confidence = %v, want in (0,100]", result.Confidence)
	}
}

func TestPredictMissingInputsSkipModels(t *testing.T) {
	e := New(DefaultConfig())

	// No goal averages: Poisson drops. No h2h: h2h drops.
	home := &predict.TeamStats{Rating: 1700, Form: "WWDWW"}
	away := &predict.TeamStats{Rating: 1600, Form: "LDLWL"}

	result := e.Predict(home, away, nil)

	if len(result.SubResults) != 2 {
		t.Fatalf("got %d sub-models, want 2 (rating, form)", len(result.SubResults))
	}
	for _, sr := range result.SubResults {
		if sr.Model == ModelPoisson || sr.Model == ModelH2H {
			t.Errorf("model %s should have been skipped", sr.Model)
		}
	}
	if sum := result.Probabilities.Sum(); math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("distribution sums to %v, want 1", sum)
	}
}

func TestPredictNoInputsUniform(t *testing.T) {
	e := New(DefaultConfig())

	result := e.Predict(nil, nil, nil)

	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Confidence)
	}
	want := predict.UniformDistribution()
	for _, o := range predict.Outcomes {
		if math.Abs(result.Probabilities[o]-want[o]) > 1e-9 {
			t.Errorf("probabilities[%s] = %v, want %v", o, result.Probabilities[o], want[o])
		}
	}
}

func TestPoissonModelFavoursStrongAttack(t *testing.T) {
	e := New(DefaultConfig())

	sr, ok := e.poissonModel(strongHome(), weakAway())
	if !ok {
		t.Fatal("poisson model skipped with full inputs")
	}
	if sr.Probabilities[predict.OutcomeHome] < 0.6 {
		t.Errorf("home prob = %v, want >= 0.6 for 2.4 vs 0.9 attacks", sr.Probabilities[predict.OutcomeHome])
	}
	if sr.Confidence < 50 || sr.Confidence > 90 {
		t.Errorf("confidence = %v, want within [50,90]", sr.Confidence)
	}
}

func TestRatingModelDrawShrinksWithGap(t *testing.T) {
	e := New(DefaultConfig())

	close1, _ := e.ratingModel(
		&predict.TeamStats{Rating: 1600},
		&predict.TeamStats{Rating: 1700}, // home bonus cancels the gap
	)
	wide, _ := e.ratingModel(
		&predict.TeamStats{Rating: 1900},
		&predict.TeamStats{Rating: 1400},
	)

	if close1.Probabilities[predict.OutcomeDraw] <= wide.Probabilities[predict.OutcomeDraw] {
		t.Errorf("draw prob should shrink as the rating gap widens: close %v, wide %v",
			close1.Probabilities[predict.OutcomeDraw], wide.Probabilities[predict.OutcomeDraw])
	}
	if wide.Probabilities[predict.OutcomeHome] < 0.7 {
		t.Errorf("home prob = %v, want >= 0.7 for a 600-point effective gap", wide.Probabilities[predict.OutcomeHome])
	}
	if wide.Confidence != 90 {
		t.Errorf("confidence = %v, want capped at 90", wide.Confidence)
	}
}

func TestFormPoints(t *testing.T) {
	tests := []struct {
		form string
		want float64
	}{
		{"", 5},
		{"WWWWW", 3 * (1.5 + 1.3 + 1.1 + 0.9 + 0.7)},
		{"LLLLL", 0},
		{"WDLLL", 3*1.5 + 1*1.3},
		{"WWWWWWW", 3 * (1.5 + 1.3 + 1.1 + 0.9 + 0.7)}, // extra results ignored
	}

	for _, tt := range tests {
		if got := formPoints(tt.form); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("formPoints(%q) = %v, want %v", tt.form, got, tt.want)
		}
	}
}

func TestFormModelRecencyMatters(t *testing.T) {
	e := New(DefaultConfig())

	recentGood := &predict.TeamStats{Form: "WWLLL"}
	recentBad := &predict.TeamStats{Form: "LLLWW"}

	sr, ok := e.formModel(recentGood, recentBad)
	if !ok {
		t.Fatal("form model skipped")
	}
	if sr.Probabilities[predict.OutcomeHome] <= sr.Probabilities[predict.OutcomeAway] {
		t.Errorf("recent wins should outweigh older wins: %v", sr.Probabilities)
	}
}

func TestH2HModel(t *testing.T) {
	e := New(DefaultConfig())

	sr, ok := e.h2hModel(&predict.HeadToHead{HomeWins: 7, Draws: 2, AwayWins: 1})
	if !ok {
		t.Fatal("h2h model skipped")
	}
	if sum := sr.Probabilities.Sum(); math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("distribution sums to %v, want 1", sum)
	}
	if sr.Probabilities[predict.OutcomeHome] < 0.6 {
		t.Errorf("home prob = %v, want >= 0.6 with 7/10 home wins", sr.Probabilities[predict.OutcomeHome])
	}
	// 10 meetings: confidence 30 + 10*5 = 80, at the cap.
	if sr.Confidence != 80 {
		t.Errorf("confidence = %v, want 80", sr.Confidence)
	}

	if _, ok := e.h2hModel(&predict.HeadToHead{}); ok {
		t.Error("h2h model ran with zero meetings")
	}
}

func TestH2HTrendShiftsProbability(t *testing.T) {
	e := New(DefaultConfig())

	base := &predict.HeadToHead{HomeWins: 5, Draws: 0, AwayWins: 5}
	trending := &predict.HeadToHead{
		HomeWins: 5, Draws: 0, AwayWins: 5,
		Recent: []predict.Outcome{predict.OutcomeHome, predict.OutcomeHome, predict.OutcomeHome},
	}

	flat, _ := e.h2hModel(base)
	shifted, _ := e.h2hModel(trending)

	if shifted.Probabilities[predict.OutcomeHome] <= flat.Probabilities[predict.OutcomeHome] {
		t.Errorf("recent home dominance should raise home prob: flat %v, shifted %v",
			flat.Probabilities[predict.OutcomeHome], shifted.Probabilities[predict.OutcomeHome])
	}
}
