package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PersonaCollector/internal/ports"
)

const maxResponseBytes = 1 << 20

// Client talks to an external ML service that tags review text.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.TextClassifier = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Classify sends the text for tagging and returns the labels the service assigned.
func (c *Client) Classify(ctx context.Context, text string) ([]string, error) {
	var resp struct {
		Tags []string `json:"tags"`
	}

	if err := c.post(ctx, "/classify", map[string]any{"text": text}, &resp); err != nil {
		return nil, err
	}

	return resp.Tags, nil
}

func (c *Client) post(ctx context.Context, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ml %s: encode: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ml %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ml %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("ml %s: status %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(v); err != nil {
		return fmt.Errorf("ml %s: decode: %w", path, err)
	}
	return nil
}
