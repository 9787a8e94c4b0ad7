package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}
	return nil
}

func (c *Client) StoreRecord(ctx context.Context, req StoreRequest) (*Record, error) {
	var rec Record
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/records", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) GetRecord(ctx context.Context, id string, scope string) (*Record, error) {
	var rec Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/records/"+id+scopeQuery(scope), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ForgetRecord(ctx context.Context, id string, scope string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/records/"+id+scopeQuery(scope), nil, nil)
}

func (c *Client) Recall(ctx context.Context, req RecallRequest) (*RecallResponse, error) {
	var resp RecallResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/records/recall", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Fused(ctx context.Context, req FusedRequest) (*FusedResponse, error) {
	var resp FusedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/records/fused", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) PromoteRecord(ctx context.Context, id string, req PromoteRequest) (*PromoteResult, error) {
	var result PromoteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/records/"+id+"/promote", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RelatedRecords(ctx context.Context, id string) ([]Edge, error) {
	var resp struct {
		Edges []Edge `json:"edges"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/records/"+id+"/related", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}

func (c *Client) RecordHistory(ctx context.Context, id string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/records/"+id+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

func (c *Client) Feedback(ctx context.Context, retrievalID string, useful bool) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/retrievals/"+retrievalID+"/feedback", FeedbackRequest{Useful: useful}, nil)
}

func (c *Client) Consolidate(ctx context.Context, req ConsolidateRequest) (*ConsolidateReport, error) {
	var report ConsolidateReport
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/consolidate", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) Evolve(ctx context.Context, req EvolveRequest) (*EvolveOutcome, error) {
	var outcome EvolveOutcome
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/evolve", req, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *Client) Peek(ctx context.Context, scope string, limit int) ([]Peeked, error) {
	path := "/api/v1/peek/" + url.PathEscape(scope)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp PeekResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) Stats(ctx context.Context) (map[string]ScopeStats, error) {
	var stats map[string]ScopeStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) Tuning(ctx context.Context) (*TuningState, error) {
	var state TuningState
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/tuning", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func scopeQuery(scope string) string {
	if scope == "" {
		return ""
	}
	return "?scope=" + url.QueryEscape(scope)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error %s: %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
