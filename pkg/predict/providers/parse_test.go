package providers

import (
	"math"
	"testing"

	"github.com/junhopark/slatepick/pkg/predict"
)

func TestParseOpinion(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantWinner predict.Outcome
		wantConf   float64
		wantErr    bool
	}{
		{
			name:       "plain json",
			response:   `{"winner": "home", "confidence": 75, "probabilities": {"home": 0.55, "draw": 0.25, "away": 0.20}, "rationale": "stronger squad"}`,
			wantWinner: predict.OutcomeHome,
			wantConf:   75,
		},
		{
			name: "markdown fenced",
			response: "```json\n" +
				`{"winner": "away", "confidence": 60, "probabilities": {"home": 0.20, "draw": 0.30, "away": 0.50}}` +
				"\n```",
			wantWinner: predict.OutcomeAway,
			wantConf:   60,
		},
		{
			name:       "nested under prediction",
			response:   `{"prediction": {"winner": "draw", "confidence": 55, "probabilities": {"home": 0.30, "draw": 0.40, "away": 0.30}}}`,
			wantWinner: predict.OutcomeDraw,
			wantConf:   55,
		},
		{
			name:       "percentage probabilities",
			response:   `{"winner": "home", "confidence": 80, "probabilities": {"home": 55, "draw": 25, "away": 20}}`,
			wantWinner: predict.OutcomeHome,
			wantConf:   80,
		},
		{
			name:       "fractional confidence",
			response:   `{"winner": "home", "confidence": 0.8, "probabilities": {"home": 0.5, "draw": 0.3, "away": 0.2}}`,
			wantWinner: predict.OutcomeHome,
			wantConf:   80,
		},
		{
			name:       "winner inferred from distribution",
			response:   `{"confidence": 65, "probabilities": {"home": 0.25, "draw": 0.30, "away": 0.45}}`,
			wantWinner: predict.OutcomeAway,
			wantConf:   65,
		},
		{
			name:       "missing confidence defaults",
			response:   `{"winner": "home", "probabilities": {"home": 0.5, "draw": 0.3, "away": 0.2}}`,
			wantWinner: predict.OutcomeHome,
			wantConf:   70,
		},
		{
			name:     "no json",
			response: "I cannot make a prediction for this match.",
			wantErr:  true,
		},
		{
			name:     "no probabilities",
			response: `{"winner": "home", "confidence": 75}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := parseOpinion(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOpinion: %v", err)
			}
			if op.Winner != tt.wantWinner {
				t.Errorf("winner = %s, want %s", op.Winner, tt.wantWinner)
			}
			if math.Abs(op.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence = %v, want %v", op.Confidence, tt.wantConf)
			}
			if sum := op.Probabilities.Sum(); math.Abs(sum-1.0) > 1e-6 {
				t.Errorf("probabilities sum to %v, want 1", sum)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{`no json here`, ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
