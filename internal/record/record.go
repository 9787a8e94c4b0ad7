package record

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Kind classifies what a record holds.
type Kind string

const (
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindProcedural Kind = "procedural"
	KindWorking    Kind = "working"
)

// Kinds lists all kinds, shortest-lived first.
var Kinds = []Kind{KindWorking, KindEpisodic, KindSemantic, KindProcedural}

// Scope is the isolation boundary a record lives in, narrowest to broadest.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
)

// Scopes lists all scopes narrowest-first. Retrieval fan-out and id lookups
// walk this order.
var Scopes = []Scope{ScopeSession, ScopeProject, ScopeUser}

// Broader returns the next-wider scope, or "" for the broadest.
func (s Scope) Broader() Scope {
	switch s {
	case ScopeSession:
		return ScopeProject
	case ScopeProject:
		return ScopeUser
	}
	return ""
}

// Status is a record's lifecycle state.
type Status string

const (
	StatusCreated      Status = "created"
	StatusActive       Status = "active"
	StatusConsolidated Status = "consolidated"
	StatusArchived     Status = "archived"
	StatusForgotten    Status = "forgotten"
)

// Tombstone replaces the content of a forgotten record. The record's id and
// audit trail survive; the text and embedding do not.
const Tombstone = "[forgotten]"

// Signals are the slow-moving feedback inputs to importance scoring. They are
// persisted with the record and nudged by access and explicit feedback.
type Signals struct {
	RelevanceFeedback float64 `json:"relevance_feedback"`
	OutcomeImpact     float64 `json:"outcome_impact"`
	UserFeedback      float64 `json:"user_feedback"`
}

// Record is a unit of retained knowledge.
type Record struct {
	ID             uuid.UUID        `json:"id"`
	Content        string           `json:"content"`
	Kind           Kind             `json:"kind"`
	Scope          Scope            `json:"scope"`
	Tags           []string         `json:"tags"`
	Embedding      *pgvector.Vector `json:"-"`
	Importance     float64          `json:"importance"`
	Confidence     float64          `json:"confidence"`
	AccessCount    int              `json:"access_count"`
	Status         Status           `json:"status"`
	Signals        Signals          `json:"signals"`
	Origins        []string         `json:"origins,omitempty"`
	SessionID      *string          `json:"session_id,omitempty"`
	ProjectID      *string          `json:"project_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

// Forgotten reports whether the record has been tombstoned.
func (r *Record) Forgotten() bool {
	return r.Status == StatusForgotten
}

// Entomb clears the record's content and embedding while keeping its
// identity. Callers are responsible for the status transition itself.
func (r *Record) Entomb() {
	r.Content = Tombstone
	r.Embedding = nil
}

// TaskReason explains why a consolidation task was queued.
type TaskReason string

const (
	ReasonDecay     TaskReason = "decay"
	ReasonDuplicate TaskReason = "duplicate"
	ReasonPromotion TaskReason = "promotion"
	ReasonMerge     TaskReason = "merge"
	ReasonScheduled TaskReason = "scheduled"
)

// TaskStatus tracks a consolidation task through the queue.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// ConsolidationTask queues a record for the Consolidation Scheduler.
type ConsolidationTask struct {
	ID          uuid.UUID  `json:"id"`
	MemoryID    uuid.UUID  `json:"memory_id"`
	Scope       Scope      `json:"scope"`
	Reason      TaskReason `json:"reason"`
	Priority    float64    `json:"priority"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// RetrievalLogEntry records one recall call. Append-only; the only mutation
// ever applied is attaching feedback to WasUseful.
type RetrievalLogEntry struct {
	ID          uuid.UUID   `json:"id"`
	Query       string      `json:"query"`
	Strategy    string      `json:"strategy"`
	ResultCount int         `json:"result_count"`
	ResultIDs   []uuid.UUID `json:"result_ids"`
	Scope       string      `json:"scope"` // "" means cross-scope fan-out
	WasUseful   *bool       `json:"was_useful,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Transition is one audited lifecycle state change.
type Transition struct {
	ID       uuid.UUID `json:"id"`
	RecordID uuid.UUID `json:"record_id"`
	Scope    Scope     `json:"scope"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Clamp01 bounds a score to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
