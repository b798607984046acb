package hybrid

import "github.com/junhopark/slatepick/pkg/predict"

// Redistribute renormalizes the target tier weights over the available
// subset so they always sum to 1. It is a pure function, computed
// fresh per call; no shared state is mutated.
func Redistribute(target map[predict.TierKind]float64, available map[predict.TierKind]bool) map[predict.TierKind]float64 {
	total := 0.0
	for tier, w := range target {
		if available[tier] {
			total += w
		}
	}

	out := make(map[predict.TierKind]float64, len(target))
	if total <= 0 {
		// Degenerate masks fall back to an equal split.
		n := 0
		for tier := range target {
			if available[tier] {
				n++
			}
		}
		for tier := range target {
			if available[tier] {
				out[tier] = 1 / float64(n)
			}
		}
		return out
	}

	for tier, w := range target {
		if available[tier] {
			out[tier] = w / total
		}
	}
	return out
}
