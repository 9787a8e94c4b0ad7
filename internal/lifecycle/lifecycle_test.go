package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, st store.Store, at time.Time) *Manager {
	t.Helper()
	m := NewManager(st, DefaultThresholds(), scoring.DefaultHalfLives)
	m.SetClock(func() time.Time { return at })
	return m
}

func seed(t *testing.T, st store.Store, rec *record.Record) *record.Record {
	t.Helper()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := st.Insert(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestLegal(t *testing.T) {
	allowed := [][2]record.Status{
		{record.StatusCreated, record.StatusActive},
		{record.StatusCreated, record.StatusArchived},
		{record.StatusActive, record.StatusConsolidated},
		{record.StatusActive, record.StatusArchived},
		{record.StatusConsolidated, record.StatusArchived},
		{record.StatusConsolidated, record.StatusActive},
		{record.StatusArchived, record.StatusForgotten},
		{record.StatusArchived, record.StatusActive},
	}
	for _, pair := range allowed {
		if !Legal(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be legal", pair[0], pair[1])
		}
	}

	denied := [][2]record.Status{
		{record.StatusCreated, record.StatusForgotten},
		{record.StatusCreated, record.StatusConsolidated},
		{record.StatusActive, record.StatusForgotten},
		{record.StatusForgotten, record.StatusActive},
		{record.StatusForgotten, record.StatusArchived},
	}
	for _, pair := range denied {
		if Legal(pair[0], pair[1]) {
			t.Fatalf("%s -> %s should be illegal", pair[0], pair[1])
		}
	}
}

func TestTransitionRejectsIllegal(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch)
	rec := seed(t, st, &record.Record{
		Content: "note", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusActive, Importance: 0.5, CreatedAt: epoch, UpdatedAt: epoch,
	})

	err := m.Transition(context.Background(), rec, record.StatusForgotten, "skip archive")
	if err == nil {
		t.Fatalf("active -> forgotten must be rejected")
	}
	if _, ok := err.(*record.ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if rec.Status != record.StatusActive {
		t.Fatalf("record mutated on rejected transition: %s", rec.Status)
	}
}

func TestTransitionAudited(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch)
	rec := seed(t, st, &record.Record{
		Content: "note", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusActive, Importance: 0.5, CreatedAt: epoch, UpdatedAt: epoch,
	})

	if err := m.Transition(context.Background(), rec, record.StatusArchived, "test archive"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	trs, err := st.Transitions(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(trs) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(trs))
	}
	if trs[0].From != record.StatusActive || trs[0].To != record.StatusArchived {
		t.Fatalf("audit entry %s -> %s, want active -> archived", trs[0].From, trs[0].To)
	}
}

func TestForgottenTombstones(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch)
	rec := seed(t, st, &record.Record{
		Content: "secret detail", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusArchived, Importance: 0.5, CreatedAt: epoch, UpdatedAt: epoch,
	})

	if err := m.Transition(context.Background(), rec, record.StatusForgotten, "decayed"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stored, err := st.Get(context.Background(), record.ScopeSession, rec.ID)
	if err != nil {
		t.Fatalf("get tombstoned record: %v", err)
	}
	if stored.Content != record.Tombstone {
		t.Fatalf("content = %q, want tombstone", stored.Content)
	}
	if stored.Status != record.StatusForgotten {
		t.Fatalf("status = %s, want forgotten", stored.Status)
	}
}

func TestDecideEarlyArchive(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch.Add(2*time.Hour))
	rec := &record.Record{
		Content: "noise", Kind: record.KindWorking, Scope: record.ScopeSession,
		Status: record.StatusCreated, Importance: 0.05, CreatedAt: epoch, UpdatedAt: epoch,
	}

	d, err := m.Decide(rec)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "early_archive" || d.To != record.StatusArchived {
		t.Fatalf("decision = %+v, want early_archive", d)
	}
}

func TestDecideActivatesAfterGrace(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch.Add(90*time.Minute))
	rec := &record.Record{
		Content: "note", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusCreated, Importance: 0.5, CreatedAt: epoch, UpdatedAt: epoch,
	}

	d, err := m.Decide(rec)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "activate" || d.To != record.StatusActive {
		t.Fatalf("decision = %+v, want activate", d)
	}

	// within the grace window and unaccessed: nothing to do
	m.SetClock(func() time.Time { return epoch.Add(10 * time.Minute) })
	d, err = m.Decide(rec)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "" {
		t.Fatalf("decision inside grace window = %+v, want none", d)
	}
}

func TestDecideArchiveVsQueue(t *testing.T) {
	st := store.NewMemStore()
	// a week idle decays an episodic record near zero
	m := newManager(t, st, epoch.Add(7*24*time.Hour))

	unaccessed := &record.Record{
		Content: "rarely used", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusActive, Importance: 0.5, AccessCount: 0,
		CreatedAt: epoch, UpdatedAt: epoch,
	}
	d, err := m.Decide(unaccessed)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "archive" {
		t.Fatalf("low-strength unaccessed record: decision %+v, want archive", d)
	}

	accessed := &record.Record{
		Content: "used twice", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusActive, Importance: 0.5, AccessCount: 2,
		CreatedAt: epoch, UpdatedAt: epoch, LastAccessedAt: epoch,
	}
	d, err = m.Decide(accessed)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !d.QueueTask || d.Action != "queue_consolidation" {
		t.Fatalf("low-strength accessed record: decision %+v, want queue_consolidation", d)
	}
	if d.To != "" {
		t.Fatalf("queueing must not transition directly, got target %s", d.To)
	}
}

func TestApplyQueuesTask(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch)
	rec := seed(t, st, &record.Record{
		Content: "queue me", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusActive, Importance: 0.4, AccessCount: 3,
		CreatedAt: epoch, UpdatedAt: epoch,
	})

	if err := m.Apply(context.Background(), rec, Decision{Action: "queue_consolidation", QueueTask: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	tasks, err := st.PendingTasks(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("pending tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].MemoryID != rec.ID {
		t.Fatalf("task for %s, want %s", tasks[0].MemoryID, rec.ID)
	}
	if rec.Status != record.StatusActive {
		t.Fatalf("queueing must not change status, got %s", rec.Status)
	}
}

func TestDecideForget(t *testing.T) {
	st := store.NewMemStore()
	// long after the archive: strength under the forget threshold
	m := newManager(t, st, epoch.Add(60*24*time.Hour))
	rec := &record.Record{
		Content: "ancient", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusArchived, Importance: 0.3,
		CreatedAt: epoch, UpdatedAt: epoch,
	}

	d, err := m.Decide(rec)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "forget" || d.To != record.StatusForgotten {
		t.Fatalf("decision = %+v, want forget", d)
	}
}

func TestOnAccessActivatesCreated(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch.Add(time.Minute))
	rec := seed(t, st, &record.Record{
		Content: "fresh", Kind: record.KindEpisodic, Scope: record.ScopeSession,
		Status: record.StatusCreated, Importance: 0.5, CreatedAt: epoch, UpdatedAt: epoch,
	})

	if err := m.OnAccess(context.Background(), rec); err != nil {
		t.Fatalf("on access: %v", err)
	}
	if rec.Status != record.StatusActive {
		t.Fatalf("status = %s, want active", rec.Status)
	}
}

func TestOnAccessRevivesArchived(t *testing.T) {
	st := store.NewMemStore()
	m := newManager(t, st, epoch.Add(time.Hour))

	strong := seed(t, st, &record.Record{
		Content: "still relevant", Kind: record.KindSemantic, Scope: record.ScopeProject,
		Status: record.StatusArchived, Importance: 0.8, AccessCount: 4,
		CreatedAt: epoch, UpdatedAt: epoch, LastAccessedAt: epoch,
	})
	if err := m.OnAccess(context.Background(), strong); err != nil {
		t.Fatalf("on access: %v", err)
	}
	if strong.Status != record.StatusActive {
		t.Fatalf("strong archived record should revive, status %s", strong.Status)
	}

	weak := seed(t, st, &record.Record{
		Content: "faded", Kind: record.KindEpisodic, Scope: record.ScopeProject,
		Status: record.StatusArchived, Importance: 0.1,
		CreatedAt: epoch.Add(-30 * 24 * time.Hour), UpdatedAt: epoch,
		LastAccessedAt: epoch.Add(-30 * 24 * time.Hour),
	})
	if err := m.OnAccess(context.Background(), weak); err != nil {
		t.Fatalf("on access: %v", err)
	}
	if weak.Status != record.StatusArchived {
		t.Fatalf("weak archived record must stay archived, status %s", weak.Status)
	}
}
