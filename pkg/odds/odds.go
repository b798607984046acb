// Package odds converts between probabilities and fixed-odds prices
// and scores selections against reference market prices.
package odds

import (
	"github.com/shopspring/decimal"

	"github.com/junhopark/slatepick/pkg/predict"
)

// DefaultMargin is the bookmaker markup applied when quoting a price
// from a model probability.
const DefaultMargin = 0.05

// PriceFloor avoids division degeneracy on near-certain outcomes.
var PriceFloor = decimal.NewFromFloat(1.01)

var one = decimal.NewFromInt(1)

// PriceFromProb converts a probability to a decimal price with the
// given margin baked in. Prices are floored at PriceFloor and rounded
// to two places.
func PriceFromProb(prob, margin float64) decimal.Decimal {
	if prob <= 0 {
		return decimal.NewFromInt(100)
	}
	adjusted := prob * (1 + margin)
	if adjusted > 0.99 {
		adjusted = 0.99
	}
	price := one.Div(decimal.NewFromFloat(adjusted)).Round(2)
	if price.LessThan(PriceFloor) {
		return PriceFloor
	}
	return price
}

// ImpliedProb returns the raw implied probability of a price, margin
// included.
func ImpliedProb(price decimal.Decimal) float64 {
	if price.LessThan(PriceFloor) {
		price = PriceFloor
	}
	p, _ := one.Div(price).Float64()
	return p
}

// Overround returns the total implied probability across the three
// quoted prices. A fair book sums to 1; bookmakers quote above it.
func Overround(m *predict.MarketOdds) float64 {
	return ImpliedProb(m.Home) + ImpliedProb(m.Draw) + ImpliedProb(m.Away)
}

// ImpliedDistribution converts market prices into a margin-free
// probability distribution by normalizing the reciprocals.
func ImpliedDistribution(m *predict.MarketOdds) predict.Distribution {
	dist := predict.Distribution{
		predict.OutcomeHome: ImpliedProb(m.Home),
		predict.OutcomeDraw: ImpliedProb(m.Draw),
		predict.OutcomeAway: ImpliedProb(m.Away),
	}
	dist.Normalize()
	return dist
}

// Value is the expected edge of backing an outcome at the given price
// with the model's probability: prob*price - 1. Positive means the
// price overpays relative to the model.
func Value(prob float64, price decimal.Decimal) float64 {
	v, _ := decimal.NewFromFloat(prob).Mul(price).Sub(one).Float64()
	return v
}

// BestValue returns the outcome with the highest value against the
// market, along with that value.
func BestValue(dist predict.Distribution, m *predict.MarketOdds) (predict.Outcome, float64) {
	best := predict.OutcomeHome
	bestVal := Value(dist[predict.OutcomeHome], m.Home)
	for _, o := range []predict.Outcome{predict.OutcomeDraw, predict.OutcomeAway} {
		if v := Value(dist[o], m.Price(o)); v > bestVal {
			best, bestVal = o, v
		}
	}
	return best, bestVal
}

// QuoteBook prices a full distribution with the given margin.
func QuoteBook(dist predict.Distribution, margin float64) *predict.MarketOdds {
	return &predict.MarketOdds{
		Home: PriceFromProb(dist[predict.OutcomeHome], margin),
		Draw: PriceFromProb(dist[predict.OutcomeDraw], margin),
		Away: PriceFromProb(dist[predict.OutcomeAway], margin),
	}
}
