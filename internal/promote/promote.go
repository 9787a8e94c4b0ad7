// Package promote moves records to broader scopes, merging near-duplicates
// on the way in so the target partition never accumulates copies.
package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/store"
	"github.com/keremavci/engram/internal/tuning"
)

// Project -> user promotion is deliberately stricter than session -> project
// and is not tunable.
const (
	userImportanceFloor = 0.7
	userAccessFloor     = 5
	userOriginFloor     = 2

	dupCandidates = 5
)

// Pipeline evaluates and executes promotions.
type Pipeline struct {
	store        store.Store
	tuning       func() tuning.State
	dupThreshold float64
	now          func() time.Time
}

func NewPipeline(st store.Store, tun func() tuning.State, dupThreshold float64) *Pipeline {
	return &Pipeline{
		store:        st,
		tuning:       tun,
		dupThreshold: dupThreshold,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Result reports what a promotion did.
type Result struct {
	Record *record.Record `json:"record"`
	Action string         `json:"action"` // "promoted", "merged", "already_promoted"
	Target record.Scope   `json:"target"`
}

// Eligible reports whether rec may move to target, with a reason when not.
func (p *Pipeline) Eligible(rec *record.Record, target record.Scope) (bool, string) {
	if target != rec.Scope.Broader() {
		return false, fmt.Sprintf("cannot promote %s record to %s", rec.Scope, target)
	}
	if rec.Kind == record.KindWorking {
		return false, "working records never leave session scope"
	}
	switch target {
	case record.ScopeProject:
		t := p.tuning()
		if rec.Importance >= t.PromoteImportance || rec.AccessCount >= t.PromoteAccessCount {
			return true, ""
		}
		return false, "below project promotion thresholds"
	case record.ScopeUser:
		if rec.Kind != record.KindSemantic && rec.Kind != record.KindProcedural {
			return false, "only semantic and procedural records reach user scope"
		}
		if rec.Importance < userImportanceFloor {
			return false, "below user promotion importance"
		}
		if rec.AccessCount < userAccessFloor {
			return false, "below user promotion access count"
		}
		if len(distinctOrigins(rec)) < userOriginFloor {
			return false, "not observed across enough projects"
		}
		return true, ""
	}
	return false, fmt.Sprintf("no promotion path to %s", target)
}

// Promote moves rec into target scope. A near-duplicate already present in
// the target absorbs the record instead of a new one being created.
// Promoting the same record twice yields exactly one record in the target:
// the provenance edge written on first promotion short-circuits the second.
func (p *Pipeline) Promote(ctx context.Context, rec *record.Record, target record.Scope) (*Result, error) {
	if ok, reason := p.Eligible(rec, target); !ok {
		return nil, &record.ValidationError{Field: "promotion", Reason: reason}
	}

	if existing, err := p.alreadyPromoted(ctx, rec, target); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{Record: existing, Action: "already_promoted", Target: target}, nil
	}

	// Near-duplicate check in the target partition before inserting.
	candidates, err := p.store.Rank(ctx, target, rec.Content, rec.Embedding, store.Filter{}, dupCandidates)
	if err != nil {
		return nil, fmt.Errorf("duplicate search in %s: %w", target, err)
	}
	for _, cand := range candidates {
		score := cand.TextScore
		if cand.VectorScore > score {
			score = cand.VectorScore
		}
		if score >= p.dupThreshold {
			dup := cand.Record
			merged, err := p.mergeInto(ctx, &dup, rec)
			if err != nil {
				return nil, err
			}
			return &Result{Record: merged, Action: "merged", Target: target}, nil
		}
	}

	promoted := copyForScope(rec, target, p.now())
	if err := p.store.Insert(ctx, promoted); err != nil {
		return nil, fmt.Errorf("insert promoted record: %w", err)
	}
	if err := p.store.Link(ctx, store.Edge{
		From:      promoted.ID,
		To:        rec.ID,
		Relation:  store.RelPromotedFrom,
		Weight:    1,
		CreatedAt: p.now(),
	}); err != nil {
		return nil, fmt.Errorf("record promotion provenance: %w", err)
	}
	return &Result{Record: promoted, Action: "promoted", Target: target}, nil
}

// alreadyPromoted finds the record a prior promotion produced, if any.
func (p *Pipeline) alreadyPromoted(ctx context.Context, rec *record.Record, target record.Scope) (*record.Record, error) {
	edges, err := p.store.Edges(ctx, rec.ID, store.RelPromotedFrom)
	if err != nil {
		return nil, fmt.Errorf("check promotion provenance: %w", err)
	}
	for _, e := range edges {
		if e.To != rec.ID {
			continue
		}
		existing, err := p.store.Get(ctx, target, e.From)
		if err == nil {
			return existing, nil
		}
	}
	return nil, nil
}

// mergeInto folds src into an existing near-duplicate: access counts sum,
// importance takes the max, tags union, provenance is appended.
func (p *Pipeline) mergeInto(ctx context.Context, dst, src *record.Record) (*record.Record, error) {
	dst.AccessCount += src.AccessCount
	if src.Importance > dst.Importance {
		dst.Importance = src.Importance
	}
	dst.Tags = mergeTags(dst.Tags, src.Tags)
	dst.Origins = mergeTags(dst.Origins, distinctOrigins(src))
	dst.UpdatedAt = p.now()
	if err := p.store.Update(ctx, dst); err != nil {
		return nil, fmt.Errorf("apply merge: %w", err)
	}
	if err := p.store.Link(ctx, store.Edge{
		From:      dst.ID,
		To:        src.ID,
		Relation:  store.RelMergedFrom,
		Weight:    1,
		CreatedAt: p.now(),
	}); err != nil {
		return nil, fmt.Errorf("record merge provenance: %w", err)
	}
	// The provenance edge doubles as the idempotency marker for repeated
	// promotions of src.
	if err := p.store.Link(ctx, store.Edge{
		From:      dst.ID,
		To:        src.ID,
		Relation:  store.RelPromotedFrom,
		Weight:    1,
		CreatedAt: p.now(),
	}); err != nil {
		return nil, fmt.Errorf("record promotion provenance: %w", err)
	}
	return dst, nil
}

func copyForScope(rec *record.Record, target record.Scope, now time.Time) *record.Record {
	out := *rec
	out.ID = uuid.New()
	out.Scope = target
	out.Status = record.StatusActive
	out.Tags = append([]string(nil), rec.Tags...)
	out.Origins = mergeTags(rec.Origins, distinctOrigins(rec))
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out
}

// distinctOrigins returns the project partitions a record has been seen in.
func distinctOrigins(rec *record.Record) []string {
	out := append([]string(nil), rec.Origins...)
	if rec.ProjectID != nil && *rec.ProjectID != "" {
		out = mergeTags(out, []string{*rec.ProjectID})
	}
	return out
}

// mergeTags returns the union of two string slices, preserving order.
func mergeTags(a, b []string) []string {
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
