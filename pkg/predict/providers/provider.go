// Package providers wraps each independent prediction vendor behind a
// uniform capability so the aggregator can treat them interchangeably.
package providers

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/predict"
)

// Provider is the uniform capability over one prediction vendor. A
// provider whose credential is absent reports Available() == false and
// is skipped during aggregation, never called.
type Provider interface {
	AnalyzeMatch(ctx context.Context, mc *predict.MatchContext) (*predict.Opinion, error)
	Name() string
	Available() bool
}

// Registration pairs a provider with its aggregation weight.
type Registration struct {
	Provider Provider
	Weight   float64
}

// DefaultWeights are the per-provider aggregation weights.
var DefaultWeights = map[string]float64{
	"gpt":      0.25,
	"claude":   0.25,
	"gemini":   0.20,
	"deepseek": 0.15,
	"kimi":     0.15,
}

// vendorEndpoint describes one chat-completion vendor.
type vendorEndpoint struct {
	name    string
	baseURL string
	model   string
	envKey  string
}

var vendorEndpoints = []vendorEndpoint{
	{"gpt", "https://api.openai.com/v1", "gpt-4o", "OPENAI_API_KEY"},
	{"claude", "https://api.anthropic.com/v1", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai", "gemini-2.0-flash", "GEMINI_API_KEY"},
	{"deepseek", "https://api.deepseek.com/v1", "deepseek-chat", "DEEPSEEK_API_KEY"},
	{"kimi", "https://api.moonshot.cn/v1", "moonshot-v1-8k", "MOONSHOT_API_KEY"},
}

// FromEnv builds registrations for every vendor whose API key is set.
// Missing keys simply exclude that vendor. An empty result is valid;
// the aggregator degrades to its neutral fallback.
func FromEnv(log zerolog.Logger) []Registration {
	regs := make([]Registration, 0, len(vendorEndpoints))
	for _, v := range vendorEndpoints {
		key := os.Getenv(v.envKey)
		if key == "" {
			log.Debug().Str("provider", v.name).Msg("provider not configured, skipping")
			continue
		}

		client := NewChatClient(ChatConfig{
			Name:    v.name,
			BaseURL: v.baseURL,
			Model:   v.model,
			APIKey:  key,
		}, log)

		weight := DefaultWeights[v.name]
		if weight == 0 {
			weight = 1.0 / float64(len(vendorEndpoints))
		}
		regs = append(regs, Registration{Provider: client, Weight: weight})
	}
	return regs
}
