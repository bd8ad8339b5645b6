// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analysis generates the technical analysis of a paper by sending its
// metadata and extracted text to an OpenAI-compatible chat completions
// endpoint.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// ErrMissingAPIKey is returned by New when no credential is configured.
var ErrMissingAPIKey = errors.New("llm api key is required")

// TruncationMarker is appended to content cut to the configured length.
const TruncationMarker = "\n\n[Content truncated...]"

const op = "llm completion"

// Result is the generated analysis for one paper.
type Result struct {
	Text string

	// TokensUsed is the provider-reported total, or 0 when absent.
	TokensUsed int
}

// Client calls the completion endpoint under the shared retry policy and an
// optional circuit breaker.
type Client struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	UserAgent   string

	// MaxContentLength caps the paper text in characters; <= 0 disables it.
	MaxContentLength int

	HTTP   *http.Client
	Retry  httputil.Policy
	Logger zerolog.Logger

	breaker *gobreaker.CircuitBreaker[Result]
}

// New builds a Client from cfg. The retry policy is used as given. When
// cfg.BreakerFailures is positive, that many consecutive failed papers open a
// breaker that rejects further calls until cfg.BreakerTimeout elapses.
func New(cfg types.LLMConfig, retry httputil.Policy, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		Endpoint:         cfg.APIEndpoint,
		APIKey:           cfg.APIKey,
		Model:            cfg.Model,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		UserAgent:        cfg.UserAgent,
		MaxContentLength: cfg.MaxContentLength,
		HTTP:             httputil.NewClient(cfg.Timeout),
		Retry:            retry,
		Logger:           logger,
	}

	if cfg.BreakerFailures > 0 {
		threshold := cfg.BreakerFailures
		c.breaker = gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
			Name:        op,
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				// A malformed reply says nothing about endpoint health.
				return err == nil || httputil.KindOf(err) == httputil.KindMalformed
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		})
	}

	c.Logger.Info().
		Str("model", c.Model).
		Int("max_tokens", c.MaxTokens).
		Float64("temperature", c.Temperature).
		Int("max_content_length", c.MaxContentLength).
		Msg("analysis client ready")
	return c, nil
}

// Analyze renders the prompt for p and text and returns the model's analysis.
// Timeouts, transport failures, 429 and 5xx are retried; a reply with no
// completion content is a malformed error and is returned at once.
func (c *Client) Analyze(ctx context.Context, p types.Paper, text string) (Result, error) {
	content, truncated := Truncate(text, c.MaxContentLength)
	if truncated {
		c.Logger.Warn().
			Str("paper_id", p.ID).
			Int("original_chars", len([]rune(text))).
			Int("limit", c.MaxContentLength).
			Msg("paper content truncated")
	}

	prompt, err := BuildPrompt(p, content)
	if err != nil {
		return Result{}, fmt.Errorf("rendering prompt: %w", err)
	}

	call := func() (Result, error) {
		return httputil.Do(ctx, c.Retry, op, func(ctx context.Context) (Result, error) {
			return c.complete(ctx, prompt)
		})
	}

	start := time.Now()
	var res Result
	if c.breaker != nil {
		res, err = c.breaker.Execute(call)
	} else {
		res, err = call()
	}
	if err != nil {
		return Result{}, fmt.Errorf("analyzing %s: %w", p.ID, err)
	}

	c.Logger.Info().
		Str("paper_id", p.ID).
		Int("chars", len(res.Text)).
		Int("tokens", res.TokensUsed).
		Dur("elapsed", time.Since(start)).
		Msg("analysis generated")
	return res, nil
}

// Truncate cuts text to limit characters and appends TruncationMarker. A
// non-positive limit or text within the limit is returned unchanged.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]) + TruncationMarker, true
}

// chatRequest is the request body for an OpenAI-compatible chat completion.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// chatMessage is a single message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the completion response the client reads.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// complete performs one completion request.
func (c *Client) complete(ctx context.Context, prompt string) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.Send(client, req, op)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, httputil.Malformed(op, fmt.Errorf("decoding response: %w", err))
	}
	if len(cr.Choices) == 0 {
		return Result{}, httputil.Malformed(op, errors.New("response has no choices"))
	}
	text := cr.Choices[0].Message.Content
	if text == "" {
		return Result{}, httputil.Malformed(op, errors.New("response has empty content"))
	}

	res := Result{Text: text}
	if cr.Usage != nil {
		res.TokensUsed = cr.Usage.TotalTokens
	}
	return res, nil
}
