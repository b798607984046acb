package plan

import (
	"github.com/junhopark/slatepick/pkg/predict"
	"github.com/junhopark/slatepick/pkg/predict/anomaly"
)

// Summary aggregates a slate's marking profile for reporting.
type Summary struct {
	Singles          int     `json:"singles"`
	Doubles          int     `json:"doubles"`
	Triples          int     `json:"triples"`
	UpsetCandidates  int     `json:"upset_candidates"`
	AvgConfidence    float64 `json:"avg_confidence"` // 0-100
	HighConfidence   int     `json:"high_confidence"`
	MediumConfidence int     `json:"medium_confidence"`
	LowConfidence    int     `json:"low_confidence"`
}

func summarize(markings []Marking) Summary {
	var s Summary
	if len(markings) == 0 {
		return s
	}

	confSum := 0.0
	for i := range markings {
		m := &markings[i]
		switch m.Cardinality() {
		case 1:
			s.Singles++
		case 2:
			s.Doubles++
		default:
			s.Triples++
		}
		if m.UpsetScore >= anomaly.UpsetThreshold {
			s.UpsetCandidates++
		}
		confSum += m.Confidence

		switch tier := predict.TierForConfidence(m.Confidence); tier {
		case predict.TierHigh:
			s.HighConfidence++
		case predict.TierMedium:
			s.MediumConfidence++
		default:
			s.LowConfidence++
		}
	}
	s.AvgConfidence = confSum / float64(len(markings))
	return s
}
