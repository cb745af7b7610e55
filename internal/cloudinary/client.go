// Package cloudinary implements signed uploads and delivery-URL building for
// the Cloudinary image store.
package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	// UploadBaseURL defaults to the Cloudinary API host; tests point it at a
	// local server.
	UploadBaseURL string
	Client        *http.Client
	// now is swapped in tests for deterministic signatures.
	now func() time.Time
}

// NewFromEnv builds a client from the CLOUDINARY_* environment variables.
func NewFromEnv() *Client {
	return &Client{
		CloudName:     os.Getenv("CLOUDINARY_CLOUD_NAME"),
		APIKey:        os.Getenv("CLOUDINARY_API_KEY"),
		APISecret:     os.Getenv("CLOUDINARY_API_SECRET"),
		UploadBaseURL: "https://api.cloudinary.com",
		Client:        &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadOptions are the subset of upload parameters this service uses.
type UploadOptions struct {
	Folder string
	Format string
	// Eager requests a transformation to be generated at upload time, e.g.
	// "e_background_removal".
	Eager string
}

type EagerResult struct {
	SecureURL string `json:"secure_url"`
}

type UploadResult struct {
	PublicID  string        `json:"public_id"`
	SecureURL string        `json:"secure_url"`
	Eager     []EagerResult `json:"eager"`
}

// Upload sends the file to Cloudinary with a signed request and returns the
// stored asset's identifiers.
func (c *Client) Upload(ctx context.Context, file io.Reader, filename string, opts UploadOptions) (UploadResult, error) {
	params := map[string]string{
		"timestamp": fmt.Sprintf("%d", c.timeNow().Unix()),
	}
	if opts.Folder != "" {
		params["folder"] = opts.Folder
	}
	if opts.Format != "" {
		params["format"] = opts.Format
	}
	if opts.Eager != "" {
		params["eager"] = opts.Eager
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return UploadResult{}, err
		}
	}
	if err := mw.WriteField("api_key", c.APIKey); err != nil {
		return UploadResult{}, err
	}
	if err := mw.WriteField("signature", c.sign(params)); err != nil {
		return UploadResult{}, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return UploadResult{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	base := c.UploadBaseURL
	if base == "" {
		base = "https://api.cloudinary.com"
	}
	u := fmt.Sprintf("%s/v1_1/%s/image/upload", base, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return UploadResult{}, fmt.Errorf("cloudinary_non_2xx status=%d body=%s", res.StatusCode, truncate(string(body), 300))
	}

	var out UploadResult
	if err := json.Unmarshal(body, &out); err != nil {
		return UploadResult{}, fmt.Errorf("cloudinary: decode response: %w", err)
	}
	if out.SecureURL == "" {
		return UploadResult{}, fmt.Errorf("cloudinary: missing secure_url in response")
	}
	return out, nil
}

// URL builds a delivery URL applying the given transformation to an uploaded
// asset. No network call is involved.
func (c *Client) URL(publicID string, transformation string) string {
	if transformation != "" {
		return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s/%s", c.CloudName, transformation, publicID)
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s", c.CloudName, publicID)
}

// sign computes the upload signature: SHA-1 over the alphabetically sorted
// parameter string with the API secret appended.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.APISecret))
	return hex.EncodeToString(sum[:])
}

func (c *Client) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
