package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/config"
	"github.com/keremavci/engram/internal/recall"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	cfg := config.Default().Engine
	e, err := New(context.Background(), st, nil, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.SetClock(func() time.Time { return epoch })
	return e
}

func TestStoreComputesInitialImportance(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	proj := "proj-a"
	rec, err := e.Store(ctx, StoreInput{
		Content:    "database migrations run in lexical order",
		Kind:       record.KindSemantic,
		Scope:      record.ScopeProject,
		Confidence: 0.9,
		ProjectID:  &proj,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec.Status != record.StatusCreated {
		t.Fatalf("status = %s, want created", rec.Status)
	}
	if rec.Importance <= 0 || rec.Importance > 1 {
		t.Fatalf("importance = %v, want in (0,1]", rec.Importance)
	}
	if len(rec.Origins) != 1 || rec.Origins[0] != "proj-a" {
		t.Fatalf("origins = %v, want the project id", rec.Origins)
	}

	stored, err := st.Get(ctx, record.ScopeProject, rec.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.Importance != rec.Importance {
		t.Fatalf("persisted importance drifted")
	}
}

func TestStoreHonorsCallerImportance(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	imp := 0.8
	rec, err := e.Store(ctx, StoreInput{
		Content:    "the retry queue drains in priority order",
		Kind:       record.KindSemantic,
		Scope:      record.ScopeProject,
		Importance: &imp,
		Confidence: 1,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if rec.Importance != 0.8 {
		t.Fatalf("importance = %v, want the caller's 0.8", rec.Importance)
	}

	scope := record.ScopeProject
	resp, err := e.Recall(ctx, "retry queue priority", recall.Options{Scope: &scope})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatalf("no results")
	}
	top := resp.Results[0]
	if top.Record.ID != rec.ID {
		t.Fatalf("expected the stored record ranked first")
	}
	// Zero elapsed time: strength equals the supplied importance.
	if math.Abs(top.Strength-0.8) > 1e-9 {
		t.Fatalf("strength = %v, want 0.8 at zero elapsed time", top.Strength)
	}
}

func TestStoreRejectsOutOfRangeImportance(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	for _, v := range []float64{-0.1, 1.5} {
		imp := v
		_, err := e.Store(ctx, StoreInput{
			Content:    "x",
			Kind:       record.KindEpisodic,
			Scope:      record.ScopeSession,
			Importance: &imp,
		})
		var ve *record.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("importance %v: expected *ValidationError, got %v", v, err)
		}
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	cases := []StoreInput{
		{Content: "", Kind: record.KindEpisodic, Scope: record.ScopeSession},
		{Content: "x", Kind: "imaginary", Scope: record.ScopeSession},
		{Content: "x", Kind: record.KindEpisodic, Scope: "nowhere"},
	}
	for i, in := range cases {
		_, err := e.Store(ctx, in)
		var ve *record.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: expected *ValidationError, got %v", i, err)
		}
	}
}

func TestGetWalksScopesWhenUnspecified(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	rec, err := e.Store(ctx, StoreInput{
		Content: "lives in user scope",
		Kind:    record.KindSemantic,
		Scope:   record.ScopeUser,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := e.Get(ctx, nil, rec.ID)
	if err != nil {
		t.Fatalf("get without scope: %v", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("wrong record returned")
	}

	var nf *record.NotFoundError
	if _, err := e.Get(ctx, nil, uuid.New()); !errors.As(err, &nf) {
		t.Fatalf("unknown id: expected *NotFoundError, got %v", err)
	}
}

func TestForgetTombstonesThroughLegalPath(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	rec, err := e.Store(ctx, StoreInput{
		Content: "sensitive detail to erase",
		Kind:    record.KindEpisodic,
		Scope:   record.ScopeSession,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	gone, err := e.Forget(ctx, nil, rec.ID)
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	if gone.Status != record.StatusForgotten {
		t.Fatalf("status = %s, want forgotten", gone.Status)
	}
	if gone.Content != record.Tombstone {
		t.Fatalf("content = %q, want tombstone", gone.Content)
	}

	// created -> archived -> forgotten, both audited.
	trs, err := e.History(ctx, rec.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(trs) != 2 {
		t.Fatalf("got %d transitions, want 2", len(trs))
	}
	if trs[len(trs)-1].To != record.StatusForgotten {
		t.Fatalf("final transition to %s", trs[len(trs)-1].To)
	}
}

func TestPromoteRefusesIneligible(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	rec, err := e.Store(ctx, StoreInput{
		Content: "scratch working note",
		Kind:    record.KindWorking,
		Scope:   record.ScopeSession,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	_, err = e.Promote(ctx, nil, rec.ID, record.ScopeProject)
	var ve *record.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestPeekDoesNotReinforce(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	weak, err := e.Store(ctx, StoreInput{
		Content: "weak entry",
		Kind:    record.KindEpisodic,
		Scope:   record.ScopeSession,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	strong, err := e.Store(ctx, StoreInput{
		Content:    "strong entry",
		Kind:       record.KindProcedural,
		Scope:      record.ScopeSession,
		Confidence: 1,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	peeked, err := e.Peek(ctx, record.ScopeSession, 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(peeked) != 2 {
		t.Fatalf("got %d peeked, want 2", len(peeked))
	}
	if peeked[0].Record.ID != strong.ID {
		t.Fatalf("expected the stronger record first")
	}

	stored, _ := st.Get(ctx, record.ScopeSession, weak.ID)
	if stored.AccessCount != 0 {
		t.Fatalf("peek reinforced: access count = %d", stored.AccessCount)
	}
	if stored.Status != record.StatusCreated {
		t.Fatalf("peek changed status to %s", stored.Status)
	}
}

func TestRecallClampsLimit(t *testing.T) {
	st := store.NewMemStore()
	cfg := config.Default().Engine
	cfg.MaxLimit = 2
	e, err := New(context.Background(), st, nil, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	e.SetClock(func() time.Time { return epoch })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Store(ctx, StoreInput{
			Content: "shared topic marker",
			Kind:    record.KindEpisodic,
			Scope:   record.ScopeSession,
		}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	resp, err := e.Recall(ctx, "shared topic", recall.Options{Limit: 50})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(resp.Results) > 2 {
		t.Fatalf("got %d results, limit cap ignored", len(resp.Results))
	}
}

func TestFusedPartitionsByScope(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	if _, err := e.Store(ctx, StoreInput{
		Content: "deploy checklist for staging",
		Kind:    record.KindProcedural,
		Scope:   record.ScopeSession,
	}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := e.Store(ctx, StoreInput{
		Content: "deploy checklist for production",
		Kind:    record.KindProcedural,
		Scope:   record.ScopeProject,
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	results, err := e.Fused(ctx, "deploy checklist", PartitionByScope, 10)
	if err != nil {
		t.Fatalf("fused: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d fused results, want 2", len(results))
	}

	if _, err := e.Fused(ctx, "deploy checklist", "constellation", 10); err == nil {
		t.Fatalf("unknown partition key must be rejected")
	}
}

func TestFusedCollapsesDuplicateContent(t *testing.T) {
	st := store.NewMemStore()
	e := newEngine(t, st)
	ctx := context.Background()

	for _, scope := range []record.Scope{record.ScopeSession, record.ScopeProject} {
		if _, err := e.Store(ctx, StoreInput{
			Content: "identical fact in two scopes",
			Kind:    record.KindSemantic,
			Scope:   scope,
		}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	results, err := e.Fused(ctx, "identical fact", PartitionByScope, 10)
	if err != nil {
		t.Fatalf("fused: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want duplicates collapsed to 1", len(results))
	}
}

func TestStatsToleratesDownPartition(t *testing.T) {
	ms := store.NewMemStore()
	e := newEngine(t, ms)
	ctx := context.Background()

	if _, err := e.Store(ctx, StoreInput{
		Content: "counted entry",
		Kind:    record.KindEpisodic,
		Scope:   record.ScopeSession,
	}); err != nil {
		t.Fatalf("store: %v", err)
	}
	ms.SetDown(record.ScopeProject, true)

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[record.ScopeSession].Total != 1 {
		t.Fatalf("session total = %d, want 1", stats[record.ScopeSession].Total)
	}
	if stats[record.ScopeProject] == nil || stats[record.ScopeProject].Total != 0 {
		t.Fatalf("down partition must contribute an empty entry")
	}
}
