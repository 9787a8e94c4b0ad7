package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/tuning"
)

// PGStore is the Postgres adapter. Records live in one table with scope as
// an explicit partition column; ts_rank provides text relevance, pgvector
// cosine distance provides vector similarity.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// unavailable wraps connection-level failures with the scope partition the
// call was routed to. Not-found and validation errors pass through.
func unavailable(scope record.Scope, op string, err error) error {
	var nf *record.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return &record.StoreUnavailableError{Scope: scope, Err: fmt.Errorf("%s: %w", op, err)}
}

const recordColumns = `id, scope, content, kind, tags, embedding, importance, confidence,
	access_count, status, signals, origins, session_id, project_id, metadata,
	created_at, updated_at, last_accessed_at`

func scanRecord(row pgx.Row) (*record.Record, error) {
	var r record.Record
	var signals, metadata []byte
	err := row.Scan(
		&r.ID, &r.Scope, &r.Content, &r.Kind, &r.Tags, &r.Embedding,
		&r.Importance, &r.Confidence, &r.AccessCount, &r.Status,
		&signals, &r.Origins, &r.SessionID, &r.ProjectID, &metadata,
		&r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &r.Signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &r, nil
}

func (p *PGStore) Insert(ctx context.Context, rec *record.Record) error {
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		INSERT INTO records (id, scope, content, kind, tags, embedding, importance, confidence,
		                     access_count, status, signals, origins, session_id, project_id, metadata,
		                     created_at, updated_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = p.pool.Exec(ctx, query,
		rec.ID, rec.Scope, rec.Content, rec.Kind, rec.Tags, rec.Embedding,
		rec.Importance, rec.Confidence, rec.AccessCount, rec.Status,
		signals, rec.Origins, rec.SessionID, rec.ProjectID, metadata,
		rec.CreatedAt, rec.UpdatedAt, rec.LastAccessedAt,
	)
	if err != nil {
		return unavailable(rec.Scope, "insert record", err)
	}
	return nil
}

func (p *PGStore) Get(ctx context.Context, scope record.Scope, id uuid.UUID) (*record.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM records WHERE scope = $1 AND id = $2", recordColumns)
	rec, err := scanRecord(p.pool.QueryRow(ctx, query, scope, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &record.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, unavailable(scope, "get record", err)
	}
	return rec, nil
}

func (p *PGStore) Update(ctx context.Context, rec *record.Record) error {
	signals, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		UPDATE records
		SET content = $3, kind = $4, tags = $5, embedding = $6, importance = $7,
		    confidence = $8, access_count = $9, status = $10, signals = $11,
		    origins = $12, metadata = $13, updated_at = $14, last_accessed_at = $15
		WHERE scope = $1 AND id = $2
	`
	res, err := p.pool.Exec(ctx, query,
		rec.Scope, rec.ID, rec.Content, rec.Kind, rec.Tags, rec.Embedding,
		rec.Importance, rec.Confidence, rec.AccessCount, rec.Status,
		signals, rec.Origins, metadata, rec.UpdatedAt, rec.LastAccessedAt,
	)
	if err != nil {
		return unavailable(rec.Scope, "update record", err)
	}
	if res.RowsAffected() == 0 {
		return &record.NotFoundError{ID: rec.ID}
	}
	return nil
}

// buildFilter appends filter conditions, returning the updated arg list.
func buildFilter(f Filter, conditions []string, args []any) ([]string, []any) {
	idx := len(args) + 1
	if f.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", idx))
		args = append(args, *f.Kind)
		idx++
	}
	if len(f.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", idx))
		args = append(args, f.Statuses)
		idx++
	}
	if len(f.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", idx))
		args = append(args, f.Tags)
		idx++
	}
	if f.MinImportance != nil {
		conditions = append(conditions, fmt.Sprintf("importance >= $%d", idx))
		args = append(args, *f.MinImportance)
		idx++
	}
	if f.MaxImportance != nil {
		conditions = append(conditions, fmt.Sprintf("importance < $%d", idx))
		args = append(args, *f.MaxImportance)
		idx++
	}
	if f.CreatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", idx))
		args = append(args, *f.CreatedBefore)
		idx++
	}
	if f.AccessedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("GREATEST(last_accessed_at, created_at) < $%d", idx))
		args = append(args, *f.AccessedBefore)
		idx++
	}
	return conditions, args
}

func (p *PGStore) List(ctx context.Context, scope record.Scope, f Filter, limit int) ([]record.Record, error) {
	conditions := []string{"scope = $1"}
	args := []any{scope}
	conditions, args = buildFilter(f, conditions, args)

	query := fmt.Sprintf(
		"SELECT %s FROM records WHERE %s ORDER BY created_at, id",
		recordColumns, strings.Join(conditions, " AND "),
	)
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(scope, "list records", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable(scope, "scan record", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (p *PGStore) Rank(ctx context.Context, scope record.Scope, query string, embedding *pgvector.Vector, f Filter, limit int) ([]Ranked, error) {
	conditions := []string{"scope = $1", "status != 'forgotten'"}
	args := []any{scope}
	conditions, args = buildFilter(f, conditions, args)

	args = append(args, query)
	queryIdx := len(args)

	vectorExpr := "0"
	if embedding != nil {
		args = append(args, embedding)
		vectorExpr = fmt.Sprintf("COALESCE(1 - (embedding <=> $%d), 0)", len(args))
	}

	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	limitIdx := len(args)

	// ts_rank normalization flag 32 maps rank into [0,1).
	sql := fmt.Sprintf(`
		SELECT %s,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $%d), 32) AS text_score,
		       %s AS vector_score
		FROM records
		WHERE %s
		ORDER BY text_score + vector_score DESC, id
		LIMIT $%d
	`, recordColumns, queryIdx, vectorExpr, strings.Join(conditions, " AND "), limitIdx)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable(scope, "rank records", err)
	}
	defer rows.Close()

	var out []Ranked
	for rows.Next() {
		var r record.Record
		var signals, metadata []byte
		var cand Ranked
		err := rows.Scan(
			&r.ID, &r.Scope, &r.Content, &r.Kind, &r.Tags, &r.Embedding,
			&r.Importance, &r.Confidence, &r.AccessCount, &r.Status,
			&signals, &r.Origins, &r.SessionID, &r.ProjectID, &metadata,
			&r.CreatedAt, &r.UpdatedAt, &r.LastAccessedAt,
			&cand.TextScore, &cand.VectorScore,
		)
		if err != nil {
			return nil, unavailable(scope, "scan ranked record", err)
		}
		if len(signals) > 0 {
			if err := json.Unmarshal(signals, &r.Signals); err != nil {
				return nil, fmt.Errorf("decode signals: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		if cand.TextScore == 0 && cand.VectorScore == 0 {
			continue
		}
		cand.Record = r
		out = append(out, cand)
	}
	return out, rows.Err()
}

func (p *PGStore) Link(ctx context.Context, e Edge) error {
	query := `
		INSERT INTO record_edges (from_id, to_id, relation, weight, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_id, to_id, relation) DO UPDATE SET weight = $4
	`
	if _, err := p.pool.Exec(ctx, query, e.From, e.To, e.Relation, e.Weight, e.CreatedAt); err != nil {
		return fmt.Errorf("link records: %w", err)
	}
	return nil
}

func (p *PGStore) Edges(ctx context.Context, id uuid.UUID, relation string) ([]Edge, error) {
	conditions := "(from_id = $1 OR to_id = $1)"
	args := []any{id}
	if relation != "" {
		conditions += " AND relation = $2"
		args = append(args, relation)
	}
	rows, err := p.pool.Query(ctx,
		"SELECT from_id, to_id, relation, weight, created_at FROM record_edges WHERE "+conditions+" ORDER BY created_at",
		args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.From, &e.To, &e.Relation, &e.Weight, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PGStore) EnqueueTask(ctx context.Context, task *record.ConsolidationTask) error {
	// One pending task per record; re-enqueues are no-ops.
	query := `
		INSERT INTO consolidation_tasks (id, memory_id, scope, reason, priority, status, created_at)
		SELECT $1, $2, $3, $4, $5, 'pending', $6
		WHERE NOT EXISTS (
			SELECT 1 FROM consolidation_tasks WHERE memory_id = $2 AND status = 'pending'
		)
	`
	_, err := p.pool.Exec(ctx, query, task.ID, task.MemoryID, task.Scope, task.Reason, task.Priority, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (p *PGStore) PendingTasks(ctx context.Context, scope *record.Scope, limit int) ([]record.ConsolidationTask, error) {
	conditions := "status = 'pending'"
	args := []any{}
	if scope != nil {
		args = append(args, *scope)
		conditions += fmt.Sprintf(" AND scope = $%d", len(args))
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, memory_id, scope, reason, priority, status, created_at, processed_at
		FROM consolidation_tasks
		WHERE %s
		ORDER BY priority DESC, id
		LIMIT $%d
	`, conditions, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending tasks: %w", err)
	}
	defer rows.Close()

	var out []record.ConsolidationTask
	for rows.Next() {
		var t record.ConsolidationTask
		if err := rows.Scan(&t.ID, &t.MemoryID, &t.Scope, &t.Reason, &t.Priority, &t.Status, &t.CreatedAt, &t.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PGStore) CompleteTask(ctx context.Context, id uuid.UUID, status record.TaskStatus) error {
	res, err := p.pool.Exec(ctx,
		"UPDATE consolidation_tasks SET status = $2, processed_at = NOW() WHERE id = $1",
		id, status)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if res.RowsAffected() == 0 {
		return &record.NotFoundError{ID: id}
	}
	return nil
}

func (p *PGStore) AppendLog(ctx context.Context, entry *record.RetrievalLogEntry) error {
	query := `
		INSERT INTO retrieval_log (id, query, strategy, result_count, result_ids, scope, was_useful, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := p.pool.Exec(ctx, query,
		entry.ID, entry.Query, entry.Strategy, entry.ResultCount,
		entry.ResultIDs, entry.Scope, entry.WasUseful, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append retrieval log: %w", err)
	}
	return nil
}

func (p *PGStore) Logs(ctx context.Context, since time.Time, limit int) ([]record.RetrievalLogEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, query, strategy, result_count, result_ids, scope, was_useful, created_at
		FROM retrieval_log
		WHERE created_at >= $1
		ORDER BY created_at
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query retrieval log: %w", err)
	}
	defer rows.Close()

	var out []record.RetrievalLogEntry
	for rows.Next() {
		var e record.RetrievalLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.Strategy, &e.ResultCount, &e.ResultIDs, &e.Scope, &e.WasUseful, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PGStore) SetLogFeedback(ctx context.Context, id uuid.UUID, useful bool) error {
	res, err := p.pool.Exec(ctx, "UPDATE retrieval_log SET was_useful = $2 WHERE id = $1", id, useful)
	if err != nil {
		return fmt.Errorf("set log feedback: %w", err)
	}
	if res.RowsAffected() == 0 {
		return &record.NotFoundError{ID: id}
	}
	return nil
}

func (p *PGStore) RecordTransition(ctx context.Context, tr record.Transition) error {
	query := `
		INSERT INTO record_transitions (id, record_id, scope, from_status, to_status, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := p.pool.Exec(ctx, query, tr.ID, tr.RecordID, tr.Scope, tr.From, tr.To, tr.Reason, tr.At); err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

func (p *PGStore) Transitions(ctx context.Context, recordID uuid.UUID) ([]record.Transition, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, record_id, scope, from_status, to_status, reason, at
		FROM record_transitions
		WHERE record_id = $1
		ORDER BY at, id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []record.Transition
	for rows.Next() {
		var tr record.Transition
		if err := rows.Scan(&tr.ID, &tr.RecordID, &tr.Scope, &tr.From, &tr.To, &tr.Reason, &tr.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (p *PGStore) Stats(ctx context.Context, scope record.Scope) (*ScopeStats, error) {
	stats := &ScopeStats{
		ByKind:   make(map[record.Kind]int),
		ByStatus: make(map[record.Status]int),
	}

	err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(AVG(importance), 0) FROM records WHERE scope = $1",
		scope).Scan(&stats.Total, &stats.AvgImportance)
	if err != nil {
		return nil, unavailable(scope, "count records", err)
	}

	rows, err := p.pool.Query(ctx, "SELECT kind, COUNT(*) FROM records WHERE scope = $1 GROUP BY kind", scope)
	if err != nil {
		return nil, unavailable(scope, "count by kind", err)
	}
	for rows.Next() {
		var k record.Kind
		var c int
		if err := rows.Scan(&k, &c); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		stats.ByKind[k] = c
	}
	rows.Close()

	rows, err = p.pool.Query(ctx, "SELECT status, COUNT(*) FROM records WHERE scope = $1 GROUP BY status", scope)
	if err != nil {
		return nil, unavailable(scope, "count by status", err)
	}
	for rows.Next() {
		var s record.Status
		var c int
		if err := rows.Scan(&s, &c); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[s] = c
	}
	rows.Close()

	return stats, nil
}

func (p *PGStore) Params(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := p.pool.Query(ctx, "SELECT name, value FROM tuning_parameters")
	if err != nil {
		return nil, fmt.Errorf("query tuning parameters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var name string
		var value []byte
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan tuning parameter: %w", err)
		}
		out[name] = json.RawMessage(value)
	}
	return out, rows.Err()
}

func (p *PGStore) UpsertParam(ctx context.Context, name string, value json.RawMessage) error {
	query := `
		INSERT INTO tuning_parameters (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = $2, updated_at = NOW()
	`
	if _, err := p.pool.Exec(ctx, query, name, []byte(value)); err != nil {
		return fmt.Errorf("upsert tuning parameter: %w", err)
	}
	return nil
}

func (p *PGStore) AppendChange(ctx context.Context, ch tuning.Change) error {
	query := `
		INSERT INTO tuning_history (id, param, prior, next, reason, applied_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.pool.Exec(ctx, query, ch.ID, ch.Param, []byte(ch.Prior), []byte(ch.Next), ch.Reason, ch.AppliedBy, ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("append tuning change: %w", err)
	}
	return nil
}

func (p *PGStore) Changes(ctx context.Context, limit int) ([]tuning.Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, param, prior, next, reason, applied_by, created_at
		FROM tuning_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tuning history: %w", err)
	}
	defer rows.Close()

	var out []tuning.Change
	for rows.Next() {
		var ch tuning.Change
		var prior, next []byte
		if err := rows.Scan(&ch.ID, &ch.Param, &prior, &next, &ch.Reason, &ch.AppliedBy, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tuning change: %w", err)
		}
		ch.Prior = json.RawMessage(prior)
		ch.Next = json.RawMessage(next)
		out = append(out, ch)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
