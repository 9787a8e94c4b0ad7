// Package recall implements cross-scope retrieval: weighted fan-out over
// scope partitions, a relevance/similarity/strength ranking blend, and
// rank fusion for partitioned queries. Reads reinforce what they return.
package recall

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/keremavci/engram/internal/lifecycle"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
	"github.com/keremavci/engram/internal/tuning"
)

// Embedder turns text into a fixed-length vector. Optional: a nil embedder
// degrades retrieval to the text+strength blend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Weights blend the three ranking legs into a final score.
type Weights struct {
	Text     float64
	Vector   float64
	Strength float64
}

// Default blends, chosen by whether a query embedding is available.
var (
	HybridWeights   = Weights{Text: 0.3, Vector: 0.3, Strength: 0.4}
	TextOnlyWeights = Weights{Text: 0.6, Vector: 0, Strength: 0.4}
)

// Options narrow a recall call.
type Options struct {
	Scope *record.Scope
	Kind  *record.Kind
	Limit int
}

// Result is one ranked record with its score breakdown.
type Result struct {
	Record      record.Record `json:"record"`
	Score       float64       `json:"score"`
	TextScore   float64       `json:"text_score"`
	VectorScore float64       `json:"vector_score"`
	Strength    float64       `json:"strength"`
}

// Response carries the ranked records plus the id of the retrieval log entry
// the call appended, so callers can attach feedback later.
type Response struct {
	Results  []Result  `json:"results"`
	Strategy string    `json:"strategy"`
	LogID    uuid.UUID `json:"log_id"`
}

// Coordinator runs recall against the store.
type Coordinator struct {
	store     store.Store
	embedder  Embedder
	lifecycle *lifecycle.Manager
	tuning    func() tuning.State
	now       func() time.Time
}

func NewCoordinator(st store.Store, embedder Embedder, lm *lifecycle.Manager, tun func() tuning.State) *Coordinator {
	return &Coordinator{
		store:     st,
		embedder:  embedder,
		lifecycle: lm,
		tuning:    tun,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Recall ranks matching records. With an explicit scope only that partition
// is queried and its failure surfaces; without one the call fans out to all
// scopes and any partition failure contributes zero results. Logging and
// reinforcement are best-effort side effects and never fail the call.
func (c *Coordinator) Recall(ctx context.Context, query string, opts Options) (*Response, error) {
	tun := c.tuning()
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	strategy := tun.DefaultStrategy
	var embedding *pgvector.Vector
	if strategy == tuning.StrategyHybrid && c.embedder != nil {
		vec, err := c.embedder.Embed(ctx, query)
		if err != nil {
			slog.Warn("query embedding failed, falling back to text-only", "error", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}
	weights := HybridWeights
	if embedding == nil {
		strategy = tuning.StrategyTextOnly
		weights = TextOnlyWeights
	}

	filter := store.Filter{
		Kind: opts.Kind,
		Statuses: []record.Status{
			record.StatusCreated, record.StatusActive,
			record.StatusConsolidated, record.StatusArchived,
		},
	}

	var results []Result
	if opts.Scope != nil {
		scoped, err := c.recallScope(ctx, *opts.Scope, query, embedding, filter, weights, 1.0, opts.Limit)
		if err != nil {
			return nil, err
		}
		results = scoped
	} else {
		results = c.fanOut(ctx, query, embedding, filter, weights, tun.ScopeWeights, opts.Limit)
	}

	sortResults(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	logID := c.appendLog(ctx, query, strategy, opts, results)
	c.reinforce(ctx, results)

	return &Response{Results: results, Strategy: strategy, LogID: logID}, nil
}

// fanOut queries every scope in parallel. Each scope's failure is caught
// locally and contributes nothing.
func (c *Coordinator) fanOut(ctx context.Context, query string, embedding *pgvector.Vector, filter store.Filter, weights Weights, scopeWeights map[record.Scope]float64, limit int) []Result {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var results []Result

	for _, scope := range record.Scopes {
		wg.Add(1)
		go func(scope record.Scope) {
			defer wg.Done()
			weight := scopeWeights[scope]
			if weight == 0 {
				weight = 1.0
			}
			scoped, err := c.recallScope(ctx, scope, query, embedding, filter, weights, weight, limit)
			if err != nil {
				slog.Warn("scope recall failed, contributing zero results", "scope", scope, "error", err)
				return
			}
			mu.Lock()
			results = append(results, scoped...)
			mu.Unlock()
		}(scope)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) recallScope(ctx context.Context, scope record.Scope, query string, embedding *pgvector.Vector, filter store.Filter, weights Weights, scopeWeight float64, limit int) ([]Result, error) {
	ranked, err := c.store.Rank(ctx, scope, query, embedding, filter, limit)
	if err != nil {
		return nil, err
	}
	now := c.now()
	tun := c.tuning()

	out := make([]Result, 0, len(ranked))
	for _, cand := range ranked {
		rec := cand.Record
		strength, err := scoring.Strength(&rec, tun.HalfLives, now)
		if err != nil {
			slog.Warn("strength computation failed, skipping candidate", "id", rec.ID, "error", err)
			continue
		}
		text := cand.TextScore * scopeWeight
		vector := cand.VectorScore * scopeWeight
		out = append(out, Result{
			Record:      rec,
			TextScore:   text,
			VectorScore: vector,
			Strength:    strength,
			Score:       text*weights.Text + vector*weights.Vector + strength*weights.Strength,
		})
	}
	return out, nil
}

// sortResults orders by score descending with ties broken by record id, so
// identical inputs always produce identical rankings.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID.String() < results[j].Record.ID.String()
	})
}

func (c *Coordinator) appendLog(ctx context.Context, query, strategy string, opts Options, results []Result) uuid.UUID {
	entry := &record.RetrievalLogEntry{
		ID:          uuid.New(),
		Query:       query,
		Strategy:    strategy,
		ResultCount: len(results),
		CreatedAt:   c.now(),
	}
	if opts.Scope != nil {
		entry.Scope = string(*opts.Scope)
	}
	for _, r := range results {
		entry.ResultIDs = append(entry.ResultIDs, r.Record.ID)
	}
	if err := c.store.AppendLog(ctx, entry); err != nil {
		slog.Warn("retrieval log append failed", "error", err)
		return uuid.Nil
	}
	return entry.ID
}

// reinforce strengthens every returned record in its owning scope and lets
// the lifecycle manager revive archived ones. Failures are swallowed.
func (c *Coordinator) reinforce(ctx context.Context, results []Result) {
	now := c.now()
	for i := range results {
		rec := results[i].Record
		scoring.Reinforce(&rec, now)
		if err := c.store.Update(ctx, &rec); err != nil {
			slog.Warn("reinforcement write failed", "id", rec.ID, "error", err)
			continue
		}
		if err := c.lifecycle.OnAccess(ctx, &rec); err != nil {
			slog.Warn("lifecycle re-evaluation failed", "id", rec.ID, "error", err)
		}
		results[i].Record = rec
	}
}
