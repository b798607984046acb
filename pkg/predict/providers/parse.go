package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/junhopark/slatepick/pkg/predict"
)

// parseOpinion extracts a structured opinion from a raw model reply.
// Vendors wrap JSON in markdown fences, nest it, or answer in
// percentages; all of those are tolerated.
func parseOpinion(response string) (*predict.Opinion, error) {
	response = stripMarkdownCodeBlocks(response)

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	// Some vendors nest the payload under "prediction" or "analysis".
	for _, wrapper := range []string{"prediction", "analysis", "forecast"} {
		if inner, ok := raw[wrapper].(map[string]interface{}); ok {
			raw = inner
			break
		}
	}

	dist := extractDistribution(raw)
	if dist == nil {
		return nil, fmt.Errorf("no probabilities in response")
	}
	dist.Normalize()

	conf := extractFloat(raw, "confidence")
	if conf > 0 && conf <= 1 {
		conf *= 100
	}
	if conf <= 0 || conf > 100 {
		conf = 70
	}

	winner := predict.Outcome(strings.ToLower(extractString(raw, "winner")))
	switch winner {
	case predict.OutcomeHome, predict.OutcomeDraw, predict.OutcomeAway:
	default:
		winner, _ = dist.Top()
	}

	rationale := extractString(raw, "rationale")
	if rationale == "" {
		rationale = extractString(raw, "reasoning")
	}

	return &predict.Opinion{
		Winner:        winner,
		Confidence:    conf,
		Probabilities: dist,
		Rationale:     rationale,
		Raw:           json.RawMessage(jsonStr),
	}, nil
}

// extractDistribution reads the three outcome probabilities, accepting
// percentage-scaled values and a few common key spellings.
func extractDistribution(raw map[string]interface{}) predict.Distribution {
	probs, ok := raw["probabilities"].(map[string]interface{})
	if !ok {
		probs, ok = raw["probability"].(map[string]interface{})
	}
	if !ok {
		return nil
	}

	dist := predict.Distribution{}
	keys := map[predict.Outcome][]string{
		predict.OutcomeHome: {"home", "home_win", "1"},
		predict.OutcomeDraw: {"draw", "tie", "x"},
		predict.OutcomeAway: {"away", "away_win", "2"},
	}
	for outcome, variants := range keys {
		for _, k := range variants {
			if v := extractFloat(probs, k); v > 0 {
				dist[outcome] = v
				break
			}
		}
	}
	if len(dist) == 0 {
		return nil
	}

	// Percent scale if the entries sum well past 1.
	if dist.Sum() > 3 {
		for k, v := range dist {
			dist[k] = v / 100
		}
	}
	return dist
}

// stripMarkdownCodeBlocks removes ```json ... ``` wrappers.
func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractJSON finds the first complete JSON object in a string.
func extractJSON(s string) string {
	start := -1
	braceCount := 0

	for i, c := range s {
		if c == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if c == '}' {
			braceCount--
			if braceCount == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractFloat(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
