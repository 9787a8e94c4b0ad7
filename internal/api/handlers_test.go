package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/config"
	"github.com/keremavci/engram/internal/engine"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/store"
)

func newServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(context.Background(), store.NewMemStore(), nil, config.Default().Engine)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	srv := httptest.NewServer(NewRouter(eng))
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestStoreRecallForgetRoundTrip(t *testing.T) {
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/records", map[string]any{
		"content": "nginx fronts the api on port 8430",
		"kind":    "semantic",
		"scope":   "project",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("store status = %d, want 201", resp.StatusCode)
	}
	var created record.Record
	decode(t, resp, &created)
	if created.ID == uuid.Nil || created.Status != record.StatusCreated {
		t.Fatalf("created record malformed: %+v", created)
	}

	resp = postJSON(t, srv.URL+"/api/v1/records/recall", map[string]any{
		"query": "nginx port",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recall status = %d, want 200", resp.StatusCode)
	}
	var recalled struct {
		Results []struct {
			Record record.Record `json:"record"`
			Score  float64       `json:"score"`
		} `json:"results"`
		Strategy string `json:"strategy"`
		LogID    string `json:"log_id"`
	}
	decode(t, resp, &recalled)
	if len(recalled.Results) != 1 {
		t.Fatalf("recall returned %d results, want 1", len(recalled.Results))
	}
	if recalled.Strategy != "textonly" {
		t.Fatalf("strategy = %q, want textonly without an embedder", recalled.Strategy)
	}

	// Feedback against the logged retrieval.
	resp = postJSON(t, srv.URL+"/api/v1/retrievals/"+recalled.LogID+"/feedback", map[string]any{
		"useful": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feedback status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/records/"+created.ID.String(), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("forget status = %d, want 200", delResp.StatusCode)
	}
	var forgotten map[string]string
	decode(t, delResp, &forgotten)
	if forgotten["status"] != "forgotten" {
		t.Fatalf("forget result = %v", forgotten)
	}

	resp, err = http.Get(srv.URL + "/api/v1/records/" + created.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var fetched record.Record
	decode(t, resp, &fetched)
	if fetched.Content != record.Tombstone {
		t.Fatalf("content = %q, want tombstone after forget", fetched.Content)
	}
}

func TestStoreAcceptsCallerImportance(t *testing.T) {
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/records", map[string]any{
		"content":    "the billing cron runs at 02:00 utc",
		"kind":       "semantic",
		"scope":      "project",
		"importance": 0.8,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("store status = %d, want 201", resp.StatusCode)
	}
	var created record.Record
	decode(t, resp, &created)
	if created.Importance != 0.8 {
		t.Fatalf("importance = %v, want the caller's 0.8", created.Importance)
	}

	resp = postJSON(t, srv.URL+"/api/v1/records", map[string]any{
		"content":    "out of range",
		"kind":       "semantic",
		"scope":      "project",
		"importance": 1.5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range importance status = %d, want 400", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newServer(t)

	// Validation failure -> 400.
	resp := postJSON(t, srv.URL+"/api/v1/records", map[string]any{
		"content": "", "kind": "semantic", "scope": "project",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty content status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown id -> 404.
	resp, err := http.Get(srv.URL + "/api/v1/records/6f1e2d3c-4b5a-4978-8877-665544332211")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// Malformed id -> 400.
	resp, err = http.Get(srv.URL + "/api/v1/records/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Missing query -> 400.
	resp = postJSON(t, srv.URL+"/api/v1/records/recall", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing query status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConsolidateEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/consolidate", map[string]any{"dry_run": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("consolidate status = %d, want 200", resp.StatusCode)
	}
	var report struct {
		DryRun     bool      `json:"dry_run"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
	}
	decode(t, resp, &report)
	if !report.DryRun {
		t.Fatalf("dry_run flag lost")
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Fatalf("report times out of order")
	}

	resp = postJSON(t, srv.URL+"/api/v1/consolidate", map[string]any{"scope": "galaxy"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid scope status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPeekAndStats(t *testing.T) {
	srv, _ := newServer(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/records", map[string]any{
			"content": fmt.Sprintf("note number %d", i),
			"kind":    "episodic",
			"scope":   "session",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("store status = %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/v1/peek/session?limit=2")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	var peeked struct {
		Records []json.RawMessage `json:"records"`
	}
	decode(t, resp, &peeked)
	if len(peeked.Records) != 2 {
		t.Fatalf("peek returned %d records, want limit of 2", len(peeked.Records))
	}

	resp, err = http.Get(srv.URL + "/api/v1/peek/galaxy")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid peek scope status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats map[string]struct {
		Total int `json:"total"`
	}
	decode(t, resp, &stats)
	if stats["session"].Total != 3 {
		t.Fatalf("session total = %d, want 3", stats["session"].Total)
	}
}

func TestTuningEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/tuning")
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	var state struct {
		DefaultStrategy string             `json:"default_strategy"`
		ScopeWeights    map[string]float64 `json:"scope_weights"`
	}
	decode(t, resp, &state)
	if state.DefaultStrategy != "hybrid" {
		t.Fatalf("default strategy = %q, want hybrid", state.DefaultStrategy)
	}
	if state.ScopeWeights["session"] != 1.0 {
		t.Fatalf("session weight = %v, want 1", state.ScopeWeights["session"])
	}
}
