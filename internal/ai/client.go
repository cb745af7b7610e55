// Package ai calls a Gemini-backed, OpenAI-compatible chat completions
// endpoint for all text generation features.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"
)

// ErrEmptyContent is returned when the provider answered 200 but produced no
// usable text.
var ErrEmptyContent = errors.New("ai returned no content")

// Client is an OpenAI-wire-format chat completions client. Outbound calls go
// through Limiter so a burst of handler traffic cannot trip provider quotas.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewFromEnv builds a client from GEMINI_API_KEY (and optional GEMINI_API_URL).
func NewFromEnv() *Client {
	base := os.Getenv("GEMINI_API_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		BaseURL: base,
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Model:   DefaultModel,
		Client:  &http.Client{Timeout: 60 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest mirrors the OpenAI chat completions request body.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the messages and returns the trimmed completion text.
func (c *Client) Complete(ctx context.Context, temperature float64, maxTokens int, messages ...Message) (string, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	payload, _ := json.Marshal(CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("ai_non_2xx status=%d body=%s", res.StatusCode, truncate(string(body), 300))
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyContent
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
