// Package lifecycle drives a record through its life stages. All transitions
// are explicit application code and every one is audited; nothing is left to
// store-side triggers.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
)

// Thresholds are the strength/importance boundaries between stages.
type Thresholds struct {
	Archive        float64       // active -> archived below this strength
	Consolidate    float64       // active -> consolidation queue below this strength
	Forget         float64       // archived -> forgotten below this strength
	EarlyArchive   float64       // created -> archived below this importance
	EarlyWindow    time.Duration // window for the early-archive rule
	Grace          time.Duration // created -> active after this, even unaccessed
	MinAccessCount int           // consolidation requires at least this many accesses
}

// DefaultThresholds per the decay model.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Archive:        0.1,
		Consolidate:    0.3,
		Forget:         0.01,
		EarlyArchive:   0.1,
		EarlyWindow:    24 * time.Hour,
		Grace:          time.Hour,
		MinAccessCount: 2,
	}
}

// legal is the transition set. Forgotten is terminal; the reverse edges let
// late access revive archived and consolidated records.
var legal = map[record.Status][]record.Status{
	record.StatusCreated:      {record.StatusActive, record.StatusArchived},
	record.StatusActive:       {record.StatusConsolidated, record.StatusArchived},
	record.StatusConsolidated: {record.StatusArchived, record.StatusActive},
	record.StatusArchived:     {record.StatusForgotten, record.StatusActive},
}

// Legal reports whether from -> to is an allowed transition.
func Legal(from, to record.Status) bool {
	for _, next := range legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Manager applies lifecycle rules against the store.
type Manager struct {
	store      store.Store
	thresholds Thresholds
	halfLives  func() scoring.HalfLives
	now        func() time.Time
}

func NewManager(st store.Store, thresholds Thresholds, halfLives func() scoring.HalfLives) *Manager {
	return &Manager{
		store:      st,
		thresholds: thresholds,
		halfLives:  halfLives,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Transition moves a record to a new status, persists it, and audits the
// change. Illegal transitions are rejected before any mutation.
func (m *Manager) Transition(ctx context.Context, rec *record.Record, to record.Status, reason string) error {
	from := rec.Status
	if from == to {
		return nil
	}
	if !Legal(from, to) {
		return &record.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("illegal transition %s -> %s", from, to),
		}
	}

	rec.Status = to
	rec.UpdatedAt = m.now()
	if to == record.StatusForgotten {
		rec.Entomb()
	}
	if err := m.store.Update(ctx, rec); err != nil {
		rec.Status = from
		return fmt.Errorf("persist transition: %w", err)
	}

	if err := m.store.RecordTransition(ctx, record.Transition{
		ID:       uuid.New(),
		RecordID: rec.ID,
		Scope:    rec.Scope,
		From:     from,
		To:       to,
		Reason:   reason,
		At:       m.now(),
	}); err != nil {
		return fmt.Errorf("audit transition: %w", err)
	}
	return nil
}

// Decision is the outcome of evaluating the threshold rules for one record.
// A zero Decision means no action.
type Decision struct {
	Action    string
	To        record.Status
	Reason    string
	QueueTask bool
}

// Decide evaluates the threshold rules without mutating anything, so the
// consolidation scheduler's dry-run mode can produce an identical report.
// Consolidation is never a direct transition here: the rule only queues a
// task, and the scheduler performs the transition when it processes it.
func (m *Manager) Decide(rec *record.Record) (Decision, error) {
	now := m.now()
	switch rec.Status {
	case record.StatusCreated:
		age := now.Sub(rec.CreatedAt)
		if rec.Importance < m.thresholds.EarlyArchive && age < m.thresholds.EarlyWindow {
			return Decision{Action: "early_archive", To: record.StatusArchived, Reason: "importance below early-archive threshold"}, nil
		}
		if rec.AccessCount > 0 || age >= m.thresholds.Grace {
			return Decision{Action: "activate", To: record.StatusActive, Reason: "grace period elapsed"}, nil
		}
		return Decision{}, nil

	case record.StatusActive:
		strength, err := scoring.Strength(rec, m.halfLives(), now)
		if err != nil {
			return Decision{}, err
		}
		if strength < m.thresholds.Archive && rec.AccessCount < m.thresholds.MinAccessCount {
			return Decision{Action: "archive", To: record.StatusArchived, Reason: "strength decayed below archive threshold"}, nil
		}
		if strength < m.thresholds.Consolidate && rec.AccessCount >= m.thresholds.MinAccessCount {
			return Decision{Action: "queue_consolidation", QueueTask: true}, nil
		}
		return Decision{}, nil

	case record.StatusArchived:
		strength, err := scoring.Strength(rec, m.halfLives(), now)
		if err != nil {
			return Decision{}, err
		}
		if strength < m.thresholds.Forget {
			return Decision{Action: "forget", To: record.StatusForgotten, Reason: "strength decayed below forget threshold"}, nil
		}
	}
	return Decision{}, nil
}

// Apply commits a decision produced by Decide.
func (m *Manager) Apply(ctx context.Context, rec *record.Record, d Decision) error {
	if d.Action == "" {
		return nil
	}
	if d.QueueTask {
		task := &record.ConsolidationTask{
			ID:        uuid.New(),
			MemoryID:  rec.ID,
			Scope:     rec.Scope,
			Reason:    record.ReasonDecay,
			Priority:  1 - rec.Importance,
			Status:    record.TaskPending,
			CreatedAt: m.now(),
		}
		if err := m.store.EnqueueTask(ctx, task); err != nil {
			return fmt.Errorf("enqueue consolidation: %w", err)
		}
		return nil
	}
	return m.Transition(ctx, rec, d.To, d.Reason)
}

// Evaluate applies the threshold rules to one record and returns the action
// taken, if any.
func (m *Manager) Evaluate(ctx context.Context, rec *record.Record) (string, error) {
	d, err := m.Decide(rec)
	if err != nil {
		return "", err
	}
	if err := m.Apply(ctx, rec, d); err != nil {
		return "", err
	}
	return d.Action, nil
}

// OnAccess re-evaluates status after a read. Created records activate on
// first access; archived and consolidated records revive when their strength
// has climbed back over the active threshold. Access history carries over on
// revival, so the half-life extension keeps accumulating.
func (m *Manager) OnAccess(ctx context.Context, rec *record.Record) error {
	switch rec.Status {
	case record.StatusCreated:
		return m.Transition(ctx, rec, record.StatusActive, "first access")
	case record.StatusArchived, record.StatusConsolidated:
		strength, err := scoring.Strength(rec, m.halfLives(), m.now())
		if err != nil {
			return err
		}
		if strength >= m.thresholds.Consolidate {
			return m.Transition(ctx, rec, record.StatusActive, "revived by access")
		}
	}
	return nil
}
