// Package analyst wraps the external language-model endpoint used for pair
// classification, shock parsing, and narrative generation. The endpoint
// speaks the OpenAI chat-completions wire format.
package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vantagegraph/vantage/internal/domain"
)

const (
	defaultTimeout = 90 * time.Second

	// rateLimitKey is the shared limiter key so classifier and scenario
	// traffic draw from the same budget.
	rateLimitKey = "analyst"

	// maxErrorBody caps how much of a failing response is carried into the
	// error message.
	maxErrorBody = 512
)

// Waiter blocks until a request under key is permitted.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Config holds endpoint parameters for the analyst client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client calls a chat-completions endpoint with a system and user message and
// returns the assistant text.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	httpc    *http.Client
	limiter  Waiter
}

// New creates a Client. limiter may be nil, in which case calls are not
// throttled beyond the caller's own concurrency bound.
func New(cfg Config, limiter Waiter) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpc:    &http.Client{Timeout: timeout},
		limiter:  limiter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the assistant's text.
// Transport failures and non-2xx statuses wrap domain.ErrAnalystUnavailable;
// an empty choice list wraps domain.ErrMalformedResponse.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return "", fmt.Errorf("analyst: rate limit: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("analyst: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("analyst: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyst: send request: %w: %w", domain.ErrAnalystUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("analyst: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", fmt.Errorf("analyst: status %d: %s: %w", resp.StatusCode, snippet, domain.ErrAnalystUnavailable)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("analyst: decode response: %w: %w", domain.ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("analyst: api error: %s: %w", parsed.Error.Message, domain.ErrAnalystUnavailable)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("analyst: empty choices: %w", domain.ErrMalformedResponse)
	}

	return parsed.Choices[0].Message.Content, nil
}
