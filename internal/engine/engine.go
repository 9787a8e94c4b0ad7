// Package engine wires the store, scoring, lifecycle, promotion, recall,
// consolidation and evolution components behind a single facade. The API,
// MCP and CLI surfaces all talk to Engine; nothing below it is exported
// outside internal/.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/keremavci/engram/internal/config"
	"github.com/keremavci/engram/internal/consolidate"
	"github.com/keremavci/engram/internal/evolve"
	"github.com/keremavci/engram/internal/lifecycle"
	"github.com/keremavci/engram/internal/promote"
	"github.com/keremavci/engram/internal/recall"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
	"github.com/keremavci/engram/internal/tuning"
)

type Engine struct {
	store        store.Store
	embedder     recall.Embedder
	lifecycle    *lifecycle.Manager
	promoter     *promote.Pipeline
	recaller     *recall.Coordinator
	consolidator *consolidate.Runner
	evolver      *evolve.Controller

	fusionK        int
	defaultLimit   int
	maxLimit       int
	evolveLookback time.Duration

	mu    sync.RWMutex
	state tuning.State

	now func() time.Time
}

// New loads tuning parameters from the store and assembles the component
// graph. embedder may be nil; recall then runs text-only.
func New(ctx context.Context, st store.Store, embedder recall.Embedder, cfg config.EngineConfig) (*Engine, error) {
	e := &Engine{
		store:          st,
		embedder:       embedder,
		fusionK:        cfg.FusionK,
		defaultLimit:   cfg.DefaultLimit,
		maxLimit:       cfg.MaxLimit,
		evolveLookback: cfg.Evolution.Lookback,
		now:            time.Now,
	}

	state, err := tuning.Load(ctx, st)
	if err != nil {
		return nil, err
	}
	e.state = state

	thresholds := lifecycle.Thresholds{
		Archive:        cfg.Lifecycle.ArchiveStrength,
		Consolidate:    cfg.Lifecycle.ConsolidateStrength,
		Forget:         cfg.Lifecycle.ForgetStrength,
		EarlyArchive:   cfg.Lifecycle.EarlyArchive,
		EarlyWindow:    cfg.Lifecycle.EarlyWindow,
		Grace:          cfg.Lifecycle.GracePeriod,
		MinAccessCount: cfg.Lifecycle.MinAccessCount,
	}
	e.lifecycle = lifecycle.NewManager(st, thresholds, func() scoring.HalfLives {
		return e.Tuning().HalfLives
	})
	e.promoter = promote.NewPipeline(st, e.Tuning, cfg.DuplicateThreshold)
	e.recaller = recall.NewCoordinator(st, embedder, e.lifecycle, e.Tuning)
	e.consolidator = consolidate.NewRunner(st, e.lifecycle, e.promoter, consolidate.Config{
		DecayAge:        cfg.Consolidation.DecayAge,
		DecayIdle:       cfg.Consolidation.DecayIdle,
		DecayImportance: cfg.Consolidation.DecayImportance,
		DupThreshold:    cfg.DuplicateThreshold,
		BatchSize:       cfg.Consolidation.BatchSize,
	})
	e.evolver = evolve.NewController(st, e.Tuning, e.RefreshTuning)

	return e, nil
}

// SetClock overrides the clock on the engine and every component. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.lifecycle.SetClock(now)
	e.promoter.SetClock(now)
	e.recaller.SetClock(now)
	e.consolidator.SetClock(now)
	e.evolver.SetClock(now)
}

// Tuning returns a snapshot of the current parameter state.
func (e *Engine) Tuning() tuning.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// RefreshTuning reloads parameters from the store. The evolution controller
// calls this after applying changes.
func (e *Engine) RefreshTuning(ctx context.Context) error {
	state, err := tuning.Load(ctx, e.store)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
	return nil
}

// Consolidator exposes the runner for scheduler wiring.
func (e *Engine) Consolidator() *consolidate.Runner { return e.consolidator }

// Evolver exposes the controller for scheduler wiring.
func (e *Engine) Evolver() *evolve.Controller { return e.evolver }

// StoreInput is the ingress shape for new records. Importance is the
// caller's classification; when omitted the composite score stands in
// until consolidation refreshes it.
type StoreInput struct {
	Content    string         `json:"content"`
	Kind       record.Kind    `json:"kind"`
	Scope      record.Scope   `json:"scope"`
	Tags       []string       `json:"tags,omitempty"`
	Importance *float64       `json:"importance,omitempty"`
	Confidence float64        `json:"confidence"`
	SessionID  *string        `json:"session_id,omitempty"`
	ProjectID  *string        `json:"project_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Store validates, embeds (best effort) and persists a new record in the
// created state.
func (e *Engine) Store(ctx context.Context, in StoreInput) (*record.Record, error) {
	now := e.now().UTC()
	rec := &record.Record{
		ID:         uuid.New(),
		Content:    in.Content,
		Kind:       in.Kind,
		Scope:      in.Scope,
		Tags:       in.Tags,
		Confidence: record.Clamp01(in.Confidence),
		Status:     record.StatusCreated,
		SessionID:  in.SessionID,
		ProjectID:  in.ProjectID,
		Metadata:   in.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.ProjectID != nil && *in.ProjectID != "" {
		rec.Origins = []string{*in.ProjectID}
	}
	if in.Importance != nil && (*in.Importance < 0 || *in.Importance > 1) {
		return nil, &record.ValidationError{Field: "importance", Reason: fmt.Sprintf("%v outside [0, 1]", *in.Importance)}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, in.Content)
		if err != nil {
			slog.Warn("embedding failed, storing without vector", "error", err)
		} else {
			v := pgvector.NewVector(vec)
			rec.Embedding = &v
		}
	}

	if in.Importance != nil {
		rec.Importance = *in.Importance
	} else {
		rec.Importance = scoring.Importance(rec, now)
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	slog.Debug("record stored", "id", rec.ID, "scope", rec.Scope, "kind", rec.Kind, "importance", rec.Importance)
	return rec, nil
}

// Recall runs retrieval across scopes (or one explicit scope), reinforces
// the returned records and logs the retrieval.
func (e *Engine) Recall(ctx context.Context, query string, opts recall.Options) (*recall.Response, error) {
	if opts.Limit <= 0 {
		opts.Limit = e.defaultLimit
	}
	if opts.Limit > e.maxLimit {
		opts.Limit = e.maxLimit
	}
	return e.recaller.Recall(ctx, query, opts)
}

// Get fetches a record by id. When scope is nil, partitions are checked in
// session, project, user order.
func (e *Engine) Get(ctx context.Context, scope *record.Scope, id uuid.UUID) (*record.Record, error) {
	if scope != nil {
		return e.store.Get(ctx, *scope, id)
	}
	for _, s := range record.Scopes {
		rec, err := e.store.Get(ctx, s, id)
		if err == nil {
			return rec, nil
		}
		if _, ok := err.(*record.NotFoundError); ok {
			continue
		}
		return nil, err
	}
	return nil, &record.NotFoundError{ID: id}
}

// Forget walks the record down the legal path to forgotten, tombstoning its
// content. Each intermediate transition is audited like any other.
func (e *Engine) Forget(ctx context.Context, scope *record.Scope, id uuid.UUID) (*record.Record, error) {
	rec, err := e.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	const reason = "manual forget"
	for rec.Status != record.StatusForgotten {
		var next record.Status
		switch rec.Status {
		case record.StatusCreated, record.StatusActive, record.StatusConsolidated:
			next = record.StatusArchived
		case record.StatusArchived:
			next = record.StatusForgotten
		default:
			return nil, &record.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot forget from %s", rec.Status)}
		}
		if err := e.lifecycle.Transition(ctx, rec, next, reason); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Promote moves a record one scope outward, checking eligibility first.
func (e *Engine) Promote(ctx context.Context, scope *record.Scope, id uuid.UUID, target record.Scope) (*promote.Result, error) {
	rec, err := e.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if ok, why := e.promoter.Eligible(rec, target); !ok {
		return nil, &record.ValidationError{Field: "target", Reason: why}
	}
	return e.promoter.Promote(ctx, rec, target)
}

// Consolidate runs one maintenance pass. With dryRun the report describes
// what would happen without writing anything.
func (e *Engine) Consolidate(ctx context.Context, scope *record.Scope, dryRun bool) (*consolidate.Report, error) {
	return e.consolidator.Run(ctx, consolidate.Options{Scope: scope, DryRun: dryRun})
}

// Evolve analyzes the retrieval log and applies (or proposes, when dry)
// bounded tuning adjustments. A zero lookback uses the configured default.
func (e *Engine) Evolve(ctx context.Context, dryRun bool, lookback time.Duration) (*evolve.Outcome, error) {
	if lookback <= 0 {
		lookback = e.evolveLookback
	}
	return e.evolver.Evolve(ctx, dryRun, lookback)
}

// Peeked is one record with its current strength, returned without
// reinforcement.
type Peeked struct {
	Record   record.Record `json:"record"`
	Strength float64       `json:"strength"`
}

// Peek returns the strongest records in a scope without touching access
// counts or timestamps.
func (e *Engine) Peek(ctx context.Context, scope record.Scope, limit int) ([]Peeked, error) {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	filter := store.Filter{Statuses: []record.Status{
		record.StatusCreated, record.StatusActive, record.StatusConsolidated,
	}}
	recs, err := e.store.List(ctx, scope, filter, 0)
	if err != nil {
		return nil, err
	}
	now := e.now()
	halfLives := e.Tuning().HalfLives
	out := make([]Peeked, 0, len(recs))
	for _, rec := range recs {
		s, err := scoring.Strength(&rec, halfLives, now)
		if err != nil {
			continue
		}
		out = append(out, Peeked{Record: rec, Strength: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Partition keys for Fused.
const (
	PartitionByScope = "scope"
	PartitionByKind  = "kind"
)

// Fused ranks the query separately per partition (scope or kind) and merges
// the ranked lists with reciprocal rank fusion. Duplicate content across
// partitions collapses to the best-ranked copy.
func (e *Engine) Fused(ctx context.Context, query string, by string, limit int) ([]recall.Result, error) {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	var embedding *pgvector.Vector
	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, query); err != nil {
			slog.Warn("embedding failed, fusing text-only", "error", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	filter := store.Filter{Statuses: []record.Status{
		record.StatusCreated, record.StatusActive, record.StatusConsolidated,
	}}

	var lists [][]recall.Result
	switch by {
	case PartitionByScope, "":
		for _, scope := range record.Scopes {
			ranked, err := e.store.Rank(ctx, scope, query, embedding, filter, limit)
			if err != nil {
				slog.Warn("partition rank failed", "scope", scope, "error", err)
				continue
			}
			lists = append(lists, toResults(ranked))
		}
	case PartitionByKind:
		for _, kind := range record.Kinds {
			k := kind
			f := filter
			f.Kind = &k
			var merged []store.Ranked
			for _, scope := range record.Scopes {
				ranked, err := e.store.Rank(ctx, scope, query, embedding, f, limit)
				if err != nil {
					slog.Warn("partition rank failed", "scope", scope, "kind", kind, "error", err)
					continue
				}
				merged = append(merged, ranked...)
			}
			sort.Slice(merged, func(i, j int) bool {
				si := merged[i].TextScore + merged[i].VectorScore
				sj := merged[j].TextScore + merged[j].VectorScore
				if si != sj {
					return si > sj
				}
				return merged[i].Record.ID.String() < merged[j].Record.ID.String()
			})
			if len(merged) > limit {
				merged = merged[:limit]
			}
			lists = append(lists, toResults(merged))
		}
	default:
		return nil, &record.ValidationError{Field: "by", Reason: fmt.Sprintf("unknown partition key %q", by)}
	}

	return recall.Fuse(lists, e.fusionK, limit), nil
}

func toResults(ranked []store.Ranked) []recall.Result {
	out := make([]recall.Result, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, recall.Result{
			Record:      r.Record,
			TextScore:   r.TextScore,
			VectorScore: r.VectorScore,
		})
	}
	return out
}

// Stats aggregates per-scope record counts and averages. A partition that
// cannot be reached contributes an empty entry rather than failing the call.
func (e *Engine) Stats(ctx context.Context) (map[record.Scope]*store.ScopeStats, error) {
	out := make(map[record.Scope]*store.ScopeStats, len(record.Scopes))
	for _, scope := range record.Scopes {
		st, err := e.store.Stats(ctx, scope)
		if err != nil {
			slog.Warn("stats unavailable", "scope", scope, "error", err)
			out[scope] = &store.ScopeStats{}
			continue
		}
		out[scope] = st
	}
	return out, nil
}

// Feedback marks a logged retrieval as useful or not. Feedback is the signal
// the evolution controller tunes against.
func (e *Engine) Feedback(ctx context.Context, logID uuid.UUID, useful bool) error {
	return e.store.SetLogFeedback(ctx, logID, useful)
}

// Related returns the provenance edges touching a record, in both relations.
func (e *Engine) Related(ctx context.Context, id uuid.UUID) ([]store.Edge, error) {
	var out []store.Edge
	for _, rel := range []string{store.RelMergedFrom, store.RelPromotedFrom} {
		edges, err := e.store.Edges(ctx, id, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

// History returns the audited status transitions for a record.
func (e *Engine) History(ctx context.Context, id uuid.UUID) ([]record.Transition, error) {
	return e.store.Transitions(ctx, id)
}

// TuningChanges returns the most recent applied parameter adjustments.
func (e *Engine) TuningChanges(ctx context.Context, limit int) ([]tuning.Change, error) {
	return e.store.Changes(ctx, limit)
}
