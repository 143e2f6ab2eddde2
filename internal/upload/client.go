package upload

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

// ingestResult mirrors the server's ingest response without importing the
// server package.
type ingestResult struct {
	SamplesInserted       int64 `json:"samples_inserted"`
	SleepSessionsInserted int64 `json:"sleep_sessions_inserted"`
}

// Client sends observations to the healthbridge server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the healthbridge server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// SendPayload POSTs a payload to the server's ingest endpoint and returns the
// number of newly stored samples and sleep sessions.
// Retries up to 3 times with exponential backoff on failure. Client errors
// (4xx) are not retried.
func (c *Client) SendPayload(ctx context.Context, payload Payload) (samples, sessions int64, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("marshaling payload: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/ingest", bytes.NewReader(data))
		if err != nil {
			return 0, 0, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			var result ingestResult
			if err := json.Unmarshal(body, &result); err != nil {
				return 0, 0, fmt.Errorf("decoding ingest response: %w", err)
			}
			return result.SamplesInserted, result.SleepSessionsInserted, nil
		}
		lastErr = fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return 0, 0, lastErr
		}
	}

	return 0, 0, fmt.Errorf("after 3 attempts: %w", lastErr)
}
