// Package recognition talks to the external face recognition service.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP client for the recognition service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL, or nil when baseURL is empty so
// callers can treat the service as not configured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type rebuildRequest struct {
	Reason      string `json:"reason"`
	RequestedAt int64  `json:"requested_at"`
}

// RebuildIndex asks the service to rebuild its match index from the current
// descriptors. Any non-2xx response is an error.
func (c *Client) RebuildIndex(ctx context.Context) error {
	body, err := json.Marshal(rebuildRequest{Reason: "consistency", RequestedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to encode rebuild request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/index/rebuild", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create rebuild request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call recognition service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("recognition service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
