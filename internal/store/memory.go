package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/tuning"
)

// MemStore is an in-memory Store. It backs the component tests and serves as
// a zero-dependency fallback when no database is configured. Text relevance
// is token overlap; vector similarity is cosine.
type MemStore struct {
	mu          sync.RWMutex
	partitions  map[record.Scope]map[uuid.UUID]*record.Record
	edges       []Edge
	tasks       map[uuid.UUID]*record.ConsolidationTask
	logs        map[uuid.UUID]*record.RetrievalLogEntry
	logOrder    []uuid.UUID
	transitions []record.Transition
	params      map[string]json.RawMessage
	changes     []tuning.Change
	down        map[record.Scope]bool
}

// NewMemStore provisions all known scopes.
func NewMemStore() *MemStore {
	m := &MemStore{
		partitions: make(map[record.Scope]map[uuid.UUID]*record.Record),
		tasks:      make(map[uuid.UUID]*record.ConsolidationTask),
		logs:       make(map[uuid.UUID]*record.RetrievalLogEntry),
		params:     make(map[string]json.RawMessage),
		down:       make(map[record.Scope]bool),
	}
	for _, s := range record.Scopes {
		m.partitions[s] = make(map[uuid.UUID]*record.Record)
	}
	return m
}

// SetDown marks a scope partition unreachable; calls against it return
// *record.StoreUnavailableError until cleared. Test hook.
func (m *MemStore) SetDown(scope record.Scope, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[scope] = down
}

func (m *MemStore) partition(scope record.Scope) (map[uuid.UUID]*record.Record, error) {
	if m.down[scope] {
		return nil, &record.StoreUnavailableError{Scope: scope, Err: context.DeadlineExceeded}
	}
	p, ok := m.partitions[scope]
	if !ok {
		return nil, &record.StoreUnavailableError{Scope: scope, Err: &record.ValidationError{Field: "scope", Reason: string(scope)}}
	}
	return p, nil
}

func cloneRecord(r *record.Record) *record.Record {
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	out.Origins = append([]string(nil), r.Origins...)
	if r.Embedding != nil {
		v := pgvector.NewVector(append([]float32(nil), r.Embedding.Slice()...))
		out.Embedding = &v
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (m *MemStore) Insert(ctx context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.partition(rec.Scope)
	if err != nil {
		return err
	}
	p[rec.ID] = cloneRecord(rec)
	return nil
}

func (m *MemStore) Get(ctx context.Context, scope record.Scope, id uuid.UUID) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.partition(scope)
	if err != nil {
		return nil, err
	}
	rec, ok := p[id]
	if !ok {
		return nil, &record.NotFoundError{ID: id}
	}
	return cloneRecord(rec), nil
}

func (m *MemStore) Update(ctx context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.partition(rec.Scope)
	if err != nil {
		return err
	}
	if _, ok := p[rec.ID]; !ok {
		return &record.NotFoundError{ID: rec.ID}
	}
	p[rec.ID] = cloneRecord(rec)
	return nil
}

func matches(r *record.Record, f Filter) bool {
	if f.Kind != nil && r.Kind != *f.Kind {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tags) > 0 {
		have := make(map[string]bool, len(r.Tags))
		for _, t := range r.Tags {
			have[t] = true
		}
		for _, t := range f.Tags {
			if !have[t] {
				return false
			}
		}
	}
	if f.MinImportance != nil && r.Importance < *f.MinImportance {
		return false
	}
	if f.MaxImportance != nil && r.Importance >= *f.MaxImportance {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.AccessedBefore != nil {
		last := r.LastAccessedAt
		if last.IsZero() {
			last = r.CreatedAt
		}
		if !last.Before(*f.AccessedBefore) {
			return false
		}
	}
	return true
}

func (m *MemStore) List(ctx context.Context, scope record.Scope, f Filter, limit int) ([]record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.partition(scope)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, r := range p {
		if matches(r, f) {
			out = append(out, *cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) > 1 {
			out[tok] = true
		}
	}
	return out
}

// textRelevance is token overlap between query and content, in [0,1].
func textRelevance(query, content string) float64 {
	q := tokenize(query)
	if len(q) == 0 {
		return 0
	}
	c := tokenize(content)
	hits := 0
	for tok := range q {
		if c[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemStore) Rank(ctx context.Context, scope record.Scope, query string, embedding *pgvector.Vector, f Filter, limit int) ([]Ranked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.partition(scope)
	if err != nil {
		return nil, err
	}
	var out []Ranked
	for _, r := range p {
		if !matches(r, f) || r.Forgotten() {
			continue
		}
		cand := Ranked{Record: *cloneRecord(r), TextScore: textRelevance(query, r.Content)}
		if embedding != nil && r.Embedding != nil {
			cand.VectorScore = cosine(embedding.Slice(), r.Embedding.Slice())
		}
		if cand.TextScore > 0 || cand.VectorScore > 0 {
			out = append(out, cand)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si := out[i].TextScore + out[i].VectorScore
		sj := out[j].TextScore + out[j].VectorScore
		if si != sj {
			return si > sj
		}
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Link(ctx context.Context, e Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.edges {
		if existing.From == e.From && existing.To == e.To && existing.Relation == e.Relation {
			m.edges[i] = e
			return nil
		}
	}
	m.edges = append(m.edges, e)
	return nil
}

func (m *MemStore) Edges(ctx context.Context, id uuid.UUID, relation string) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge
	for _, e := range m.edges {
		if e.From != id && e.To != id {
			continue
		}
		if relation != "" && e.Relation != relation {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemStore) EnqueueTask(ctx context.Context, task *record.ConsolidationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// One pending task per record keeps the queue idempotent.
	for _, t := range m.tasks {
		if t.MemoryID == task.MemoryID && t.Status == record.TaskPending {
			return nil
		}
	}
	c := *task
	m.tasks[task.ID] = &c
	return nil
}

func (m *MemStore) PendingTasks(ctx context.Context, scope *record.Scope, limit int) ([]record.ConsolidationTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []record.ConsolidationTask
	for _, t := range m.tasks {
		if t.Status != record.TaskPending {
			continue
		}
		if scope != nil && t.Scope != *scope {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) CompleteTask(ctx context.Context, id uuid.UUID, status record.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return &record.NotFoundError{ID: id}
	}
	now := time.Now()
	t.Status = status
	t.ProcessedAt = &now
	return nil
}

func (m *MemStore) AppendLog(ctx context.Context, entry *record.RetrievalLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	c.ResultIDs = append([]uuid.UUID(nil), entry.ResultIDs...)
	m.logs[entry.ID] = &c
	m.logOrder = append(m.logOrder, entry.ID)
	return nil
}

func (m *MemStore) Logs(ctx context.Context, since time.Time, limit int) ([]record.RetrievalLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []record.RetrievalLogEntry
	for _, id := range m.logOrder {
		e := m.logs[id]
		if !since.IsZero() && e.CreatedAt.Before(since) {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) SetLogFeedback(ctx context.Context, id uuid.UUID, useful bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.logs[id]
	if !ok {
		return &record.NotFoundError{ID: id}
	}
	e.WasUseful = &useful
	return nil
}

func (m *MemStore) RecordTransition(ctx context.Context, tr record.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, tr)
	return nil
}

func (m *MemStore) Transitions(ctx context.Context, recordID uuid.UUID) ([]record.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []record.Transition
	for _, tr := range m.transitions {
		if tr.RecordID == recordID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *MemStore) Stats(ctx context.Context, scope record.Scope) (*ScopeStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.partition(scope)
	if err != nil {
		return nil, err
	}
	stats := &ScopeStats{
		ByKind:   make(map[record.Kind]int),
		ByStatus: make(map[record.Status]int),
	}
	var sum float64
	for _, r := range p {
		stats.Total++
		stats.ByKind[r.Kind]++
		stats.ByStatus[r.Status]++
		sum += r.Importance
	}
	if stats.Total > 0 {
		stats.AvgImportance = sum / float64(stats.Total)
	}
	return stats, nil
}

func (m *MemStore) Params(ctx context.Context) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.params))
	for k, v := range m.params {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) UpsertParam(ctx context.Context, name string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[name] = value
	return nil
}

func (m *MemStore) AppendChange(ctx context.Context, ch tuning.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, ch)
	return nil
}

func (m *MemStore) Changes(ctx context.Context, limit int) ([]tuning.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]tuning.Change(nil), m.changes...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
