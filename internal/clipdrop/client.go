// Package clipdrop wraps the Clipdrop text-to-image API.
package clipdrop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://clipdrop-api.co"

// APIError carries the provider's HTTP status so handlers can pass billing
// failures (402) through instead of flattening them to 500.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clipdrop_non_2xx status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewFromEnv builds a client from CLIPDROP_API_KEY (and optional CLIPDROP_API_URL).
func NewFromEnv() *Client {
	base := os.Getenv("CLIPDROP_API_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		BaseURL: base,
		APIKey:  os.Getenv("CLIPDROP_API_KEY"),
		Client:  &http.Client{Timeout: 60 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// TextToImage submits the prompt and returns the raw PNG bytes of the
// generated image.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("prompt", prompt); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/text-to-image/v1", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{StatusCode: res.StatusCode, Body: truncate(string(body), 300)}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("clipdrop: empty image response")
	}
	return body, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
