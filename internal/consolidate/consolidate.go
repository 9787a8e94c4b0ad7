// Package consolidate runs the batch passes that bound growth: archiving
// stale records, promoting eligible ones, merging duplicates, and queueing
// decayed records for later processing. A dry run produces the same report
// without committing any mutation.
package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/lifecycle"
	"github.com/keremavci/engram/internal/promote"
	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
	"github.com/keremavci/engram/internal/store"
)

// Config bounds the decay auto-queue pass.
type Config struct {
	DecayAge        time.Duration // minimum record age
	DecayIdle       time.Duration // minimum time since last access
	DecayImportance float64       // importance ceiling
	DupThreshold    float64       // content similarity for the dedup pass
	BatchSize       int
}

// DefaultConfig per the decay model.
func DefaultConfig() Config {
	return Config{
		DecayAge:        30 * 24 * time.Hour,
		DecayIdle:       14 * 24 * time.Hour,
		DecayImportance: 0.3,
		DupThreshold:    0.8,
		BatchSize:       200,
	}
}

// Options select what a run covers.
type Options struct {
	Scope  *record.Scope
	DryRun bool
}

// Report aggregates what a run did (or would do, when dry). Per-item
// failures are collected and the run continues; it never aborts on the
// first error.
type Report struct {
	DryRun         bool      `json:"dry_run"`
	Refreshed      int       `json:"refreshed"`
	Archived       int       `json:"archived"`
	Activated      int       `json:"activated"`
	Promoted       int       `json:"promoted"`
	Merged         int       `json:"merged"`
	Queued         int       `json:"queued"`
	TasksProcessed int       `json:"tasks_processed"`
	Forgotten      int       `json:"forgotten"`
	Errors         []string  `json:"errors,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

func (r *Report) fail(stage string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// Runner executes consolidation runs.
type Runner struct {
	store     store.Store
	lifecycle *lifecycle.Manager
	pipeline  *promote.Pipeline
	cfg       Config
	now       func() time.Time
}

func NewRunner(st store.Store, lm *lifecycle.Manager, pp *promote.Pipeline, cfg Config) *Runner {
	return &Runner{store: st, lifecycle: lm, pipeline: pp, cfg: cfg, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run executes all passes over the selected scopes.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{DryRun: opts.DryRun, StartedAt: r.now()}

	scopes := record.Scopes
	if opts.Scope != nil {
		scopes = []record.Scope{*opts.Scope}
	}

	for _, scope := range scopes {
		r.refreshPass(ctx, scope, opts.DryRun, report)
		r.lifecyclePass(ctx, scope, opts.DryRun, report)
		r.promotePass(ctx, scope, opts.DryRun, report)
		r.dedupPass(ctx, scope, opts.DryRun, report)
		r.decayQueuePass(ctx, scope, opts.DryRun, report)
	}
	r.taskPass(ctx, opts.Scope, opts.DryRun, report)

	report.FinishedAt = r.now()
	return report, nil
}

// refreshPass recomputes the composite importance over the accrued signals
// and raises the stored value where the record has earned it. The caller's
// classification at store time is a floor; reinforcement only lifts it.
func (r *Runner) refreshPass(ctx context.Context, scope record.Scope, dry bool, report *Report) {
	records, err := r.store.List(ctx, scope, store.Filter{
		Statuses: []record.Status{record.StatusCreated, record.StatusActive},
	}, r.cfg.BatchSize)
	if err != nil {
		report.fail("refresh list "+string(scope), err)
		return
	}
	now := r.now()
	for i := range records {
		rec := records[i]
		score := scoring.Importance(&rec, now)
		if score <= rec.Importance {
			continue
		}
		report.Refreshed++
		if dry {
			continue
		}
		rec.Importance = score
		if err := r.store.Update(ctx, &rec); err != nil {
			report.fail("refresh update", err)
		}
	}
}

// lifecyclePass sweeps every non-terminal record through the threshold
// rules: grace-period activation, archive, forget, and consolidation
// queueing.
func (r *Runner) lifecyclePass(ctx context.Context, scope record.Scope, dry bool, report *Report) {
	records, err := r.store.List(ctx, scope, store.Filter{
		Statuses: []record.Status{record.StatusCreated, record.StatusActive, record.StatusArchived},
	}, r.cfg.BatchSize)
	if err != nil {
		report.fail("lifecycle list "+string(scope), err)
		return
	}
	for i := range records {
		rec := records[i]
		d, err := r.lifecycle.Decide(&rec)
		if err != nil {
			report.fail("lifecycle decide", err)
			continue
		}
		if d.Action == "" {
			continue
		}
		if !dry {
			if err := r.lifecycle.Apply(ctx, &rec, d); err != nil {
				report.fail("lifecycle apply", err)
				continue
			}
		}
		switch d.Action {
		case "archive", "early_archive":
			report.Archived++
		case "activate":
			report.Activated++
		case "forget":
			report.Forgotten++
		case "queue_consolidation":
			report.Queued++
		}
	}
}

// promotePass finds active records eligible for the next-broader scope and
// runs them through the promotion pipeline.
func (r *Runner) promotePass(ctx context.Context, scope record.Scope, dry bool, report *Report) {
	target := scope.Broader()
	if target == "" {
		return
	}
	records, err := r.store.List(ctx, scope, store.Filter{
		Statuses: []record.Status{record.StatusActive},
	}, r.cfg.BatchSize)
	if err != nil {
		report.fail("promote list "+string(scope), err)
		return
	}
	for i := range records {
		rec := records[i]
		if ok, _ := r.pipeline.Eligible(&rec, target); !ok {
			continue
		}
		if dry {
			report.Promoted++
			continue
		}
		res, err := r.pipeline.Promote(ctx, &rec, target)
		if err != nil {
			report.fail("promote", err)
			continue
		}
		switch res.Action {
		case "promoted":
			report.Promoted++
		case "merged":
			report.Merged++
		}
	}
}

// dedupPass merges active records whose tag signatures match and whose
// content similarity clears the duplicate threshold. The survivor absorbs
// access counts and tags; the duplicate is consolidated then archived.
func (r *Runner) dedupPass(ctx context.Context, scope record.Scope, dry bool, report *Report) {
	records, err := r.store.List(ctx, scope, store.Filter{
		Statuses: []record.Status{record.StatusActive},
	}, r.cfg.BatchSize)
	if err != nil {
		report.fail("dedup list "+string(scope), err)
		return
	}

	merged := make(map[uuid.UUID]bool)
	for i := range records {
		rec := records[i]
		if merged[rec.ID] {
			continue
		}
		candidates, err := r.store.Rank(ctx, scope, rec.Content, rec.Embedding, store.Filter{
			Statuses: []record.Status{record.StatusActive},
			Tags:     rec.Tags,
		}, 5)
		if err != nil {
			report.fail("dedup rank", err)
			continue
		}
		for _, cand := range candidates {
			if cand.Record.ID == rec.ID || merged[cand.Record.ID] {
				continue
			}
			score := cand.TextScore
			if cand.VectorScore > score {
				score = cand.VectorScore
			}
			if score < r.cfg.DupThreshold || !sameTagSignature(rec.Tags, cand.Record.Tags) {
				continue
			}
			merged[cand.Record.ID] = true
			report.Merged++
			if dry {
				continue
			}
			if err := r.absorb(ctx, &rec, cand.Record); err != nil {
				report.fail("dedup merge", err)
			}
		}
	}
}

// absorb folds dup into survivor and retires dup through the legal
// consolidated -> archived path.
func (r *Runner) absorb(ctx context.Context, survivor *record.Record, dup record.Record) error {
	survivor.AccessCount += dup.AccessCount
	if dup.Importance > survivor.Importance {
		survivor.Importance = dup.Importance
	}
	survivor.Tags = unionStrings(survivor.Tags, dup.Tags)
	survivor.Origins = unionStrings(survivor.Origins, dup.Origins)
	survivor.UpdatedAt = r.now()
	if err := r.store.Update(ctx, survivor); err != nil {
		return fmt.Errorf("update survivor: %w", err)
	}
	if err := r.store.Link(ctx, store.Edge{
		From:      survivor.ID,
		To:        dup.ID,
		Relation:  store.RelMergedFrom,
		Weight:    1,
		CreatedAt: r.now(),
	}); err != nil {
		return fmt.Errorf("merge provenance: %w", err)
	}
	if err := r.lifecycle.Transition(ctx, &dup, record.StatusConsolidated, "merged into duplicate"); err != nil {
		return err
	}
	return r.lifecycle.Transition(ctx, &dup, record.StatusArchived, "merge complete")
}

// decayQueuePass enqueues old, idle, low-importance active records.
func (r *Runner) decayQueuePass(ctx context.Context, scope record.Scope, dry bool, report *Report) {
	now := r.now()
	createdBefore := now.Add(-r.cfg.DecayAge)
	accessedBefore := now.Add(-r.cfg.DecayIdle)
	records, err := r.store.List(ctx, scope, store.Filter{
		Statuses:       []record.Status{record.StatusActive},
		MaxImportance:  &r.cfg.DecayImportance,
		CreatedBefore:  &createdBefore,
		AccessedBefore: &accessedBefore,
	}, r.cfg.BatchSize)
	if err != nil {
		report.fail("decay list "+string(scope), err)
		return
	}
	for i := range records {
		rec := records[i]
		report.Queued++
		if dry {
			continue
		}
		task := &record.ConsolidationTask{
			ID:        uuid.New(),
			MemoryID:  rec.ID,
			Scope:     scope,
			Reason:    record.ReasonDecay,
			Priority:  1 - rec.Importance,
			Status:    record.TaskPending,
			CreatedAt: now,
		}
		if err := r.store.EnqueueTask(ctx, task); err != nil {
			report.fail("decay enqueue", err)
		}
	}
}

// taskPass drains pending consolidation tasks. Processing a task is what
// actually carries a record through active -> consolidated -> archived:
// the record is folded into its nearest active neighbour when one is
// similar enough, then archived.
func (r *Runner) taskPass(ctx context.Context, scope *record.Scope, dry bool, report *Report) {
	tasks, err := r.store.PendingTasks(ctx, scope, r.cfg.BatchSize)
	if err != nil {
		report.fail("pending tasks", err)
		return
	}
	for _, task := range tasks {
		report.TasksProcessed++
		if dry {
			continue
		}
		if err := r.processTask(ctx, task); err != nil {
			report.fail("task "+task.ID.String(), err)
			if cerr := r.store.CompleteTask(ctx, task.ID, record.TaskFailed); cerr != nil {
				report.fail("task fail-mark", cerr)
			}
			continue
		}
		if err := r.store.CompleteTask(ctx, task.ID, record.TaskCompleted); err != nil {
			report.fail("task complete", err)
		}
	}
}

func (r *Runner) processTask(ctx context.Context, task record.ConsolidationTask) error {
	rec, err := r.store.Get(ctx, task.Scope, task.MemoryID)
	if err != nil {
		return err
	}
	if rec.Status != record.StatusActive {
		return nil // already handled elsewhere
	}
	if err := r.lifecycle.Transition(ctx, rec, record.StatusConsolidated, "consolidation task "+string(task.Reason)); err != nil {
		return err
	}

	candidates, err := r.store.Rank(ctx, task.Scope, rec.Content, rec.Embedding, store.Filter{
		Statuses: []record.Status{record.StatusActive},
	}, 3)
	if err == nil {
		for _, cand := range candidates {
			if cand.Record.ID == rec.ID {
				continue
			}
			score := cand.TextScore
			if cand.VectorScore > score {
				score = cand.VectorScore
			}
			if score >= r.cfg.DupThreshold {
				target := cand.Record
				target.AccessCount += rec.AccessCount
				if rec.Importance > target.Importance {
					target.Importance = rec.Importance
				}
				target.Tags = unionStrings(target.Tags, rec.Tags)
				target.UpdatedAt = r.now()
				if err := r.store.Update(ctx, &target); err != nil {
					return fmt.Errorf("merge target: %w", err)
				}
				if err := r.store.Link(ctx, store.Edge{
					From: target.ID, To: rec.ID,
					Relation: store.RelMergedFrom, Weight: 1, CreatedAt: r.now(),
				}); err != nil {
					return fmt.Errorf("merge provenance: %w", err)
				}
				break
			}
		}
	}

	return r.lifecycle.Transition(ctx, rec, record.StatusArchived, "consolidation complete")
}

func sameTagSignature(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
