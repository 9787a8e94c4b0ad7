// Package embedding talks to a local Ollama instance to turn record content
// into vectors. The engine treats it as optional: when Ollama is missing or a
// call fails, records are stored and recalled text-only.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/keremavci/engram/internal/config"
)

// Client is a minimal Ollama embeddings client.
type Client struct {
	baseURL string
	model   string
	dims    int
	http    *http.Client
}

func NewClient(cfg config.EmbeddingConfig) *Client {
	return &Client{
		baseURL: cfg.OllamaURL,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Dimensions returns the vector width the configured model produces. The
// records table's vector column is declared with this width.
func (c *Client) Dimensions() int { return c.dims }

// Embed vectorizes one text. Satisfies recall.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding for %q model", c.model)
	}
	return vecs[0], nil
}

// EmbedBatch vectorizes several texts in one round trip.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.post(ctx, c.http, "/api/embed", payload, &out); err != nil {
		return nil, err
	}
	return out.Embeddings, nil
}

// EnsureModel makes sure the embedding model is present, pulling it when it
// is not. Called once at server startup; a failure downgrades the server to
// text-only recall rather than aborting boot.
func (c *Client) EnsureModel(ctx context.Context) error {
	show, _ := json.Marshal(map[string]string{"model": c.model})
	if err := c.post(ctx, c.http, "/api/show", show, nil); err == nil {
		slog.Debug("embedding model present", "model", c.model)
		return nil
	}

	slog.Info("pulling embedding model", "model", c.model)
	pull, _ := json.Marshal(map[string]any{"model": c.model, "stream": false})
	// First-boot pulls download the model weights; give them room.
	puller := &http.Client{Timeout: 30 * time.Minute}
	if err := c.post(ctx, puller, "/api/pull", pull, nil); err != nil {
		return fmt.Errorf("pull %s: %w", c.model, err)
	}
	slog.Info("embedding model ready", "model", c.model)
	return nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, path string, body []byte, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, detail)
	}
	if into == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}
