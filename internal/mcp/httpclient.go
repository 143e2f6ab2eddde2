package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/healthbridge/internal/healthdata"
	"github.com/claude/healthbridge/internal/models"
	"github.com/claude/healthbridge/internal/reader"
)

// HTTPClient implements DataSource by calling the healthbridge REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// seriesResponse mirrors the REST series envelope.
type seriesResponse struct {
	Kind    models.Kind           `json:"kind"`
	Days    int                   `json:"days"`
	Records []models.MetricRecord `json:"records"`
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func daysParams(days int) url.Values {
	v := url.Values{}
	v.Set("days", strconv.Itoa(days))
	return v
}

func (c *HTTPClient) series(ctx context.Context, path string, days int) ([]models.MetricRecord, error) {
	body, err := c.get(ctx, path, daysParams(days))
	if err != nil {
		return nil, err
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	if resp.Records == nil {
		resp.Records = []models.MetricRecord{}
	}
	return resp.Records, nil
}

func (c *HTTPClient) ReadSeries(ctx context.Context, kind models.Kind, days int) ([]models.MetricRecord, error) {
	return c.series(ctx, "/api/v1/series/"+url.PathEscape(kind.String()), days)
}

func (c *HTTPClient) ReadSleep(ctx context.Context, days int) ([]models.MetricRecord, error) {
	return c.series(ctx, "/api/v1/sleep", days)
}

func (c *HTTPClient) Summary(ctx context.Context, days int) (*reader.Summary, error) {
	body, err := c.get(ctx, "/api/v1/summary", daysParams(days))
	if err != nil {
		return nil, err
	}

	var summary reader.Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("httpclient: decode summary: %w", err)
	}
	return &summary, nil
}

// Status reports the remote source state. An unreachable server or an
// undecodable reply is reported as unavailable with nothing granted.
func (c *HTTPClient) Status(ctx context.Context) healthdata.Status {
	body, err := c.get(ctx, "/api/v1/status", nil)
	if err != nil {
		return healthdata.NewStatus(healthdata.Unavailable, nil)
	}

	var st healthdata.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return healthdata.NewStatus(healthdata.Unavailable, nil)
	}
	return healthdata.NewStatus(st.Availability, st.Granted)
}
