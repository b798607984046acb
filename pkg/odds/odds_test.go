package odds

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
)

func TestPriceFromProb(t *testing.T) {
	tests := []struct {
		name   string
		prob   float64
		margin float64
		want   string
	}{
		{"even money no margin", 0.50, 0, "2"},
		{"even money with margin", 0.50, 0.05, "1.9"},
		{"heavy favourite floors", 0.99, 0.05, "1.01"},
		{"longshot", 0.10, 0, "10"},
		{"zero probability capped", 0, 0.05, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriceFromProb(tt.prob, tt.margin)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("PriceFromProb(%v, %v) = %s, want %s", tt.prob, tt.margin, got, tt.want)
			}
		})
	}
}

func TestPriceImpliedProbRoundTrip(t *testing.T) {
	for _, price := range []string{"1.25", "1.80", "2.00", "2.50", "3.40", "8.00"} {
		p := decimal.RequireFromString(price)
		prob := ImpliedProb(p)
		back := PriceFromProb(prob, 0)
		diff := back.Sub(p).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(0.01)) {
			t.Errorf("round trip %s -> %v -> %s, diff %s", price, prob, back, diff)
		}
	}
}

func TestImpliedDistributionRemovesMargin(t *testing.T) {
	m := &predict.MarketOdds{
		Home: decimal.RequireFromString("1.90"),
		Draw: decimal.RequireFromString("3.40"),
		Away: decimal.RequireFromString("4.20"),
	}

	if over := Overround(m); over <= 1.0 {
		t.Fatalf("Overround = %v, want > 1", over)
	}

	dist := ImpliedDistribution(m)
	if sum := dist.Sum(); math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("implied distribution sums to %v, want 1", sum)
	}
	if dist[predict.OutcomeHome] <= dist[predict.OutcomeAway] {
		t.Errorf("shorter price should imply higher probability: %v", dist)
	}
}

func TestValue(t *testing.T) {
	tests := []struct {
		name  string
		prob  float64
		price string
		want  float64
	}{
		{"fair price", 0.50, "2.00", 0},
		{"positive edge", 0.50, "2.40", 0.20},
		{"negative edge", 0.40, "2.00", -0.20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Value(tt.prob, decimal.RequireFromString(tt.price))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Value(%v, %s) = %v, want %v", tt.prob, tt.price, got, tt.want)
			}
		})
	}
}

func TestBestValue(t *testing.T) {
	dist := predict.Distribution{
		predict.OutcomeHome: 0.50,
		predict.OutcomeDraw: 0.25,
		predict.OutcomeAway: 0.25,
	}
	m := &predict.MarketOdds{
		Home: decimal.RequireFromString("1.90"), // value -0.05
		Draw: decimal.RequireFromString("3.60"), // value -0.10
		Away: decimal.RequireFromString("5.00"), // value +0.25
	}

	outcome, value := BestValue(dist, m)
	if outcome != predict.OutcomeAway {
		t.Errorf("BestValue outcome = %s, want away", outcome)
	}
	if math.Abs(value-0.25) > 1e-9 {
		t.Errorf("BestValue = %v, want 0.25", value)
	}
}
