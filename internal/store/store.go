// Package store defines the record store contract the engine runs against,
// with a Postgres adapter (pgvector for similarity, ts_rank for text
// relevance) and an in-memory adapter used by tests and as a fallback.
//
// Scope is an explicit partition key on every call. There is no ambient
// "current scope"; routing is the caller's job.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/tuning"
)

// Filter narrows List and Rank queries within a scope partition.
type Filter struct {
	Kind           *record.Kind
	Statuses       []record.Status
	Tags           []string
	MinImportance  *float64
	MaxImportance  *float64
	CreatedBefore  *time.Time
	AccessedBefore *time.Time
}

// Ranked is one scored candidate from a partition. TextScore is the store's
// normalized text relevance in [0,1]; VectorScore is cosine similarity, zero
// when no embedding was supplied.
type Ranked struct {
	Record      record.Record
	TextScore   float64
	VectorScore float64
}

// Edge is a directed relation between two records, used for merge and
// promotion provenance.
type Edge struct {
	From      uuid.UUID `json:"from"`
	To        uuid.UUID `json:"to"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// Edge relations written by the engine.
const (
	RelMergedFrom   = "merged_from"
	RelPromotedFrom = "promoted_from"
)

// ScopeStats summarizes one partition.
type ScopeStats struct {
	Total         int                       `json:"total"`
	ByKind        map[record.Kind]int       `json:"by_kind"`
	ByStatus      map[record.Status]int     `json:"by_status"`
	AvgImportance float64                   `json:"avg_importance"`
}

// Store is the full record store contract. Operations are atomic at
// single-record granularity; there is no cross-record transaction guarantee.
// Missing records surface as *record.NotFoundError, unreachable partitions
// as *record.StoreUnavailableError.
type Store interface {
	Insert(ctx context.Context, rec *record.Record) error
	Get(ctx context.Context, scope record.Scope, id uuid.UUID) (*record.Record, error)
	Update(ctx context.Context, rec *record.Record) error
	List(ctx context.Context, scope record.Scope, f Filter, limit int) ([]record.Record, error)

	// Rank scores partition records against a query: text relevance always,
	// vector similarity when an embedding is given.
	Rank(ctx context.Context, scope record.Scope, query string, embedding *pgvector.Vector, f Filter, limit int) ([]Ranked, error)

	Link(ctx context.Context, e Edge) error
	Edges(ctx context.Context, id uuid.UUID, relation string) ([]Edge, error)

	EnqueueTask(ctx context.Context, task *record.ConsolidationTask) error
	PendingTasks(ctx context.Context, scope *record.Scope, limit int) ([]record.ConsolidationTask, error)
	CompleteTask(ctx context.Context, id uuid.UUID, status record.TaskStatus) error

	AppendLog(ctx context.Context, entry *record.RetrievalLogEntry) error
	Logs(ctx context.Context, since time.Time, limit int) ([]record.RetrievalLogEntry, error)
	SetLogFeedback(ctx context.Context, id uuid.UUID, useful bool) error

	RecordTransition(ctx context.Context, tr record.Transition) error
	Transitions(ctx context.Context, recordID uuid.UUID) ([]record.Transition, error)

	Stats(ctx context.Context, scope record.Scope) (*ScopeStats, error)

	tuning.Repository
}
