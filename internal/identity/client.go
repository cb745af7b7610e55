// Package identity talks to the hosted identity provider's backend API.
// The provider owns authentication, plan tier and the free-usage counter;
// this service only reads and writes user metadata through it.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://api.identhub.dev"

// Client is a thin HTTP client for the identity provider backend API.
type Client struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

// NewFromEnv builds a client from IDENTITY_API_URL / IDENTITY_SECRET_KEY.
func NewFromEnv() *Client {
	base := os.Getenv("IDENTITY_API_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		BaseURL:   base,
		SecretKey: os.Getenv("IDENTITY_SECRET_KEY"),
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// User is the provider's user record. PrivateMetadata carries unstructured
// per-user fields; this service only cares about "plan" and "free_usage" but
// must preserve everything else when writing back.
type User struct {
	ID              string         `json:"id"`
	PrivateMetadata map[string]any `json:"private_metadata"`
}

// Plan returns the user's plan tier, defaulting to "free".
func (u User) Plan() string {
	if p, ok := u.PrivateMetadata["plan"].(string); ok && p == "premium" {
		return "premium"
	}
	return "free"
}

// FreeUsage returns the free-usage counter, defaulting to 0. The provider
// stores metadata as JSON so numbers come back as float64; older records may
// hold strings.
func (u User) FreeUsage() int {
	switch v := u.PrivateMetadata["free_usage"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID string `json:"user_id"`
}

// VerifyToken asks the provider to verify a bearer session token and returns
// the verified subject id.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	body, _ := json.Marshal(verifyRequest{Token: token})
	res, err := c.do(ctx, http.MethodPost, "/v1/tokens/verify", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var out verifyResponse
	if err := json.Unmarshal(res, &out); err != nil {
		return "", fmt.Errorf("identity verify: decode response: %w", err)
	}
	if out.UserID == "" {
		return "", fmt.Errorf("identity verify: empty user_id in response")
	}
	return out.UserID, nil
}

// GetUser fetches a user record including private metadata.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/users/"+userID, nil)
	if err != nil {
		return User{}, err
	}
	var u User
	if err := json.Unmarshal(res, &u); err != nil {
		return User{}, fmt.Errorf("identity get user: decode response: %w", err)
	}
	if u.PrivateMetadata == nil {
		u.PrivateMetadata = map[string]any{}
	}
	return u, nil
}

// SetFreeUsage writes the free-usage counter back. The provider has no
// partial-field update, so the full metadata map is merged client-side and
// replaced wholesale.
func (c *Client) SetFreeUsage(ctx context.Context, u User, usage int) error {
	meta := make(map[string]any, len(u.PrivateMetadata)+1)
	for k, v := range u.PrivateMetadata {
		meta[k] = v
	}
	meta["free_usage"] = usage

	body, _ := json.Marshal(map[string]any{"private_metadata": meta})
	_, err := c.do(ctx, http.MethodPatch, "/v1/users/"+u.ID+"/metadata", bytes.NewReader(body))
	return err
}

// ListUsers pages through the provider's user list. Used by the premium
// usage-reset worker.
func (c *Client) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	path := fmt.Sprintf("/v1/users?limit=%d&offset=%d", limit, offset)
	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(res, &users); err != nil {
		return nil, fmt.Errorf("identity list users: decode response: %w", err)
	}
	for i := range users {
		if users[i].PrivateMetadata == nil {
			users[i].PrivateMetadata = map[string]any{}
		}
	}
	return users, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("identity_non_2xx status=%d path=%s body=%s", res.StatusCode, path, truncate(string(raw), 300))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
