// Package anthropic implements the Generator port over the Anthropic
// messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/port/outbound"
)

const (
	defaultHost      = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

// systemPrompt frames every generation. Tone and persona are fixed here;
// per-request detail comes from the user message.
const systemPrompt = "You are Celestine, a warm, insightful astrologer. " +
	"Write flowing prose grounded in the chart data you are given. " +
	"Never mention that you are an AI or that the data was provided to you."

// Config configures the Anthropic client.
type Config struct {
	// APIKey is the raw Anthropic API key.
	APIKey string
	// Host overrides the API host, mainly for tests.
	Host string
	// Model is the model identifier to request.
	Model string
	// MaxTokens bounds the response length.
	MaxTokens int
}

// Client calls the Anthropic messages endpoint. Latency and failure modes
// are out of this core's control; callers bound every Generate with a
// context deadline.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates an Anthropic-backed generator.
// The HTTP client carries no timeout of its own: the caller's context
// deadline is the only bound, so orchestration owns cancellation.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type apiResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

// Generate produces content text for the request.
func (c *Client) Generate(ctx context.Context, req *content.GenerationRequest) (string, error) {
	body, err := json.Marshal(apiRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: buildPrompt(req)}},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: response contained no text")
	}
	return text.String(), nil
}

// buildPrompt renders the user message for a request. Prompt shape per
// content type lives entirely in this adapter; the core treats it as
// opaque.
func buildPrompt(req *content.GenerationRequest) string {
	var b strings.Builder

	switch req.Type {
	case content.TypeDeepDive:
		fmt.Fprintf(&b, "Write an in-depth astrological reading on the topic %q.\n", req.Topic)
	case content.TypeDailyForecast:
		b.WriteString("Write today's horoscope for this person.\n")
	case content.TypeWeeklyForecast:
		b.WriteString("Write this week's horoscope for this person.\n")
	case content.TypeMonthlyForecast:
		b.WriteString("Write this month's horoscope for this person.\n")
	case content.TypeSynastryReport:
		if req.Mode == content.SynastryFull {
			b.WriteString("Write a full compatibility report for these two charts, covering emotional, intellectual, and long-term dynamics.\n")
		} else {
			b.WriteString("Write a brief compatibility summary for these two charts.\n")
		}
	}

	if len(req.Profile) > 0 {
		fmt.Fprintf(&b, "\nProfile:\n%s\n", req.Profile)
	}
	if len(req.ChartData) > 0 {
		fmt.Fprintf(&b, "\nChart data:\n%s\n", req.ChartData)
	}
	if len(req.PartnerChart) > 0 {
		fmt.Fprintf(&b, "\nPartner chart data:\n%s\n", req.PartnerChart)
	}

	return b.String()
}

// Compile-time interface verification.
var _ outbound.Generator = (*Client)(nil)
