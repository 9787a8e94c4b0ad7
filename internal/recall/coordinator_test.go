package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/lifecycle"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
	"github.com/keremavci/engram/internal/tuning"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func newCoordinator(t *testing.T, st store.Store, embedder Embedder) *Coordinator {
	t.Helper()
	lm := lifecycle.NewManager(st, lifecycle.DefaultThresholds(), scoring.DefaultHalfLives)
	lm.SetClock(func() time.Time { return epoch })
	c := NewCoordinator(st, embedder, lm, tuning.Default)
	c.SetClock(func() time.Time { return epoch })
	return c
}

func insert(t *testing.T, st store.Store, scope record.Scope, content string) *record.Record {
	t.Helper()
	rec := &record.Record{
		ID:         uuid.New(),
		Content:    content,
		Kind:       record.KindEpisodic,
		Scope:      scope,
		Status:     record.StatusActive,
		Importance: 0.6,
		CreatedAt:  epoch.Add(-time.Hour),
		UpdatedAt:  epoch.Add(-time.Hour),
	}
	if err := st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return rec
}

func TestRecallFansOutAcrossScopes(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)

	insert(t, st, record.ScopeSession, "postgres connection pooling notes")
	insert(t, st, record.ScopeProject, "postgres migration ordering")
	insert(t, st, record.ScopeUser, "prefers postgres over mysql")

	resp, err := c.Recall(context.Background(), "postgres", Options{Limit: 10})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results, want 3 across scopes", len(resp.Results))
	}
	if resp.Strategy != tuning.StrategyTextOnly {
		t.Fatalf("strategy without embedder = %q, want textonly", resp.Strategy)
	}
	if resp.LogID == uuid.Nil {
		t.Fatalf("retrieval must be logged")
	}
}

func TestRecallScopeFailureContributesZero(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)

	insert(t, st, record.ScopeSession, "postgres pooling")
	insert(t, st, record.ScopeProject, "postgres migrations")
	st.SetDown(record.ScopeProject, true)

	resp, err := c.Recall(context.Background(), "postgres", Options{Limit: 10})
	if err != nil {
		t.Fatalf("fan-out must not fail on a down partition: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1 (down scope contributes zero)", len(resp.Results))
	}
	if resp.Results[0].Record.Scope != record.ScopeSession {
		t.Fatalf("surviving result from %s, want session", resp.Results[0].Record.Scope)
	}
}

func TestRecallExplicitScopeFailureSurfaces(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)
	st.SetDown(record.ScopeProject, true)

	scope := record.ScopeProject
	_, err := c.Recall(context.Background(), "anything", Options{Scope: &scope})
	if err == nil {
		t.Fatalf("explicit scope failure must surface")
	}
	var su *record.StoreUnavailableError
	if !errors.As(err, &su) {
		t.Fatalf("expected *StoreUnavailableError, got %T", err)
	}
	if su.Scope != record.ScopeProject {
		t.Fatalf("error names scope %q, want project", su.Scope)
	}
}

func TestRecallEmbedderFailureFallsBack(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, &stubEmbedder{err: errors.New("model offline")})

	insert(t, st, record.ScopeSession, "fallback path notes")

	resp, err := c.Recall(context.Background(), "fallback", Options{Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if resp.Strategy != tuning.StrategyTextOnly {
		t.Fatalf("strategy after embed failure = %q, want textonly", resp.Strategy)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
}

func TestRecallHybridStrategyWithEmbedder(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, &stubEmbedder{vec: []float32{1, 0, 0}})

	insert(t, st, record.ScopeSession, "vector search notes")

	resp, err := c.Recall(context.Background(), "vector", Options{Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if resp.Strategy != tuning.StrategyHybrid {
		t.Fatalf("strategy = %q, want hybrid", resp.Strategy)
	}
}

func TestRecallReinforcesResults(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)
	ctx := context.Background()

	rec := insert(t, st, record.ScopeSession, "reinforcement target")

	if _, err := c.Recall(ctx, "reinforcement", Options{Limit: 5}); err != nil {
		t.Fatalf("recall: %v", err)
	}

	stored, err := st.Get(ctx, record.ScopeSession, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.AccessCount != 1 {
		t.Fatalf("access count = %d, want 1 after recall", stored.AccessCount)
	}
	if !stored.LastAccessedAt.Equal(epoch) {
		t.Fatalf("last accessed = %v, want recall time", stored.LastAccessedAt)
	}
	if stored.Signals.RelevanceFeedback == 0 {
		t.Fatalf("relevance feedback should be nudged up")
	}
}

func TestRecallRevivesArchived(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)
	ctx := context.Background()

	rec := &record.Record{
		ID:             uuid.New(),
		Content:        "archived but still strong",
		Kind:           record.KindSemantic,
		Scope:          record.ScopeProject,
		Status:         record.StatusArchived,
		Importance:     0.9,
		AccessCount:    3,
		CreatedAt:      epoch.Add(-2 * time.Hour),
		UpdatedAt:      epoch.Add(-2 * time.Hour),
		LastAccessedAt: epoch.Add(-2 * time.Hour),
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := c.Recall(ctx, "archived strong", Options{Limit: 5}); err != nil {
		t.Fatalf("recall: %v", err)
	}

	stored, err := st.Get(ctx, record.ScopeProject, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != record.StatusActive {
		t.Fatalf("status = %s, want active after revival", stored.Status)
	}
}

func TestRecallExcludesForgotten(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)
	ctx := context.Background()

	gone := insert(t, st, record.ScopeSession, "tombstone content")
	gone.Status = record.StatusForgotten
	gone.Entomb()
	if err := st.Update(ctx, gone); err != nil {
		t.Fatalf("update: %v", err)
	}

	resp, err := c.Recall(ctx, "tombstone content forgotten", Options{Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("forgotten record surfaced in recall")
	}
}

func TestRecallDeterministicOrdering(t *testing.T) {
	st := store.NewMemStore()
	c := newCoordinator(t, st, nil)

	// identical content in one scope: scores tie, id must decide
	a := insert(t, st, record.ScopeSession, "tie breaking entry")
	b := insert(t, st, record.ScopeSession, "tie breaking entry two")
	_ = a
	_ = b

	first, err := c.Recall(context.Background(), "tie breaking", Options{Limit: 5})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := c.Recall(context.Background(), "tie breaking", Options{Limit: 5})
		if err != nil {
			t.Fatalf("recall: %v", err)
		}
		if len(again.Results) != len(first.Results) {
			t.Fatalf("result count changed between runs")
		}
		for j := range again.Results {
			if again.Results[j].Record.ID != first.Results[j].Record.ID {
				t.Fatalf("ordering changed between identical queries")
			}
		}
	}
}
