// Package tycho provides a Go SDK for interacting with the tycho-server API.
package tycho

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
)

// Client is an HTTP client for the tycho-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tycho API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RunSummary is one entry in the runs listing.
type RunSummary struct {
	ID          string  `json:"id"`
	Strategy    string  `json:"strategy"`
	CreatedAt   string  `json:"created_at"`
	State       string  `json:"state"`
	FailReason  string  `json:"fail_reason,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	FinalEquity float64 `json:"final_equity"`
}

// RunDetail is a single run with its full result payload.
type RunDetail struct {
	RunSummary
	Result json.RawMessage `json:"result"`
}

// EquityPoint is one point of a run's equity curve.
type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
	Cash   float64 `json:"cash"`
}

// ListRuns retrieves up to limit run summaries, newest first. A non-positive
// limit uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Runs []RunSummary `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun retrieves a single run by ID, including its result payload.
func (c *Client) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	var detail RunDetail
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetEquity retrieves a run's equity curve.
func (c *Client) GetEquity(ctx context.Context, id string) ([]EquityPoint, error) {
	var resp struct {
		Equity []EquityPoint `json:"equity"`
	}
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/equity", &resp); err != nil {
		return nil, err
	}
	return resp.Equity, nil
}

// DeleteRun removes a run by ID.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/runs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

// ListStrategies retrieves the names of the server's registered strategies.
func (c *Client) ListStrategies(ctx context.Context) ([]string, error) {
	var resp struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.get(ctx, "/api/strategies", &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
