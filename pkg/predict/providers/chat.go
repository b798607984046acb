package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/junhopark/slatepick/pkg/predict"
)

// ChatConfig configures one chat-completion vendor client.
type ChatConfig struct {
	Name        string
	BaseURL     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RateLimit   rate.Limit // requests per second
	MaxRetries  uint64
}

// ChatClient calls an OpenAI-compatible chat-completions endpoint and
// parses the response into a structured Opinion.
type ChatClient struct {
	cfg        ChatConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

const systemPrompt = `You are an expert football match analyst. Estimate the outcome
probabilities for the match described by the user.

Output format (JSON only):
{
  "winner": "home|draw|away",
  "confidence": 0-100,
  "probabilities": {"home": 0.XX, "draw": 0.XX, "away": 0.XX},
  "rationale": "brief reasoning"
}

The three probabilities must sum to 1. Only output valid JSON.`

// NewChatClient creates a vendor client with rate limiting and retry
// defaults applied.
func NewChatClient(cfg ChatConfig, log zerolog.Logger) *ChatClient {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = rate.Limit(2)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}

	return &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, 1),
		log:        log.With().Str("component", "provider").Str("provider", cfg.Name).Logger(),
	}
}

// Name returns the vendor identifier.
func (c *ChatClient) Name() string { return c.cfg.Name }

// Available reports whether the vendor has a credential.
func (c *ChatClient) Available() bool { return c.cfg.APIKey != "" }

// AnalyzeMatch asks the vendor for a match opinion.
func (c *ChatClient) AnalyzeMatch(ctx context.Context, mc *predict.MatchContext) (*predict.Opinion, error) {
	if err := mc.Validate(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := c.complete(ctx, buildPrompt(mc))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	opinion, err := parseOpinion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", c.cfg.Name, err)
	}

	opinion.Provider = c.cfg.Name
	opinion.LatencyMs = latency
	return opinion, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}

	var content string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
		}

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty choices"))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return content, nil
}

func buildPrompt(mc *predict.MatchContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match: %s vs %s\n", mc.HomeTeam, mc.AwayTeam)
	if mc.Competition != "" {
		fmt.Fprintf(&b, "Competition: %s\n", mc.Competition)
	}
	if !mc.KickoffTime.IsZero() {
		fmt.Fprintf(&b, "Kickoff: %s\n", mc.KickoffTime.Format("2006-01-02 15:04"))
	}

	if mc.HomeStats != nil {
		fmt.Fprintf(&b, "\nHome side: %.2f goals scored / %.2f conceded per match, rating %.0f, form %s\n",
			mc.HomeStats.GoalsForAvg, mc.HomeStats.GoalsAgainstAvg, mc.HomeStats.Rating, mc.HomeStats.Form)
	}
	if mc.AwayStats != nil {
		fmt.Fprintf(&b, "Away side: %.2f goals scored / %.2f conceded per match, rating %.0f, form %s\n",
			mc.AwayStats.GoalsForAvg, mc.AwayStats.GoalsAgainstAvg, mc.AwayStats.Rating, mc.AwayStats.Form)
	}
	if mc.H2H != nil && mc.H2H.Total() > 0 {
		fmt.Fprintf(&b, "Head to head: %d home wins, %d draws, %d away wins\n",
			mc.H2H.HomeWins, mc.H2H.Draws, mc.H2H.AwayWins)
	}
	if mc.Market != nil {
		fmt.Fprintf(&b, "Market prices: home %s, draw %s, away %s\n",
			mc.Market.Home, mc.Market.Draw, mc.Market.Away)
	}

	b.WriteString("\nEstimate the outcome probabilities in JSON format.")
	return b.String()
}
