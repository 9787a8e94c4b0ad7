package evolve

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/store"
	"github.com/keremavci/engram/internal/tuning"
)

// Controller wires the pure analysis to the store and the tuning state.
type Controller struct {
	store  store.Store
	tuning func() tuning.State
	// applied is called after a non-dry apply so the engine can refresh
	// its tuning snapshot.
	applied func(context.Context) error
	now     func() time.Time
}

func NewController(st store.Store, tun func() tuning.State, applied func(context.Context) error) *Controller {
	return &Controller{store: st, tuning: tun, applied: applied, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Outcome reports one evolution cycle.
type Outcome struct {
	Dry        bool                          `json:"dry_run"`
	DataPoints int                           `json:"data_points"`
	Strategies map[string]StrategyStats      `json:"strategies"`
	Scopes     map[record.Scope]UtilityStats `json:"scopes"`
	Kinds      map[record.Kind]UtilityStats  `json:"kinds"`
	Proposals  []Proposal                    `json:"proposals"`
	Applied    []tuning.Change               `json:"applied,omitempty"`
	Errors     []string                      `json:"errors,omitempty"`
}

// Evolve runs one analyze/propose/apply cycle over the retrieval log.
// Per-proposal apply failures are collected; the cycle continues and
// returns an aggregate outcome.
func (c *Controller) Evolve(ctx context.Context, dryRun bool, lookback time.Duration) (*Outcome, error) {
	since := time.Time{}
	if lookback > 0 {
		since = c.now().Add(-lookback)
	}
	logs, err := c.store.Logs(ctx, since, 0)
	if err != nil {
		return nil, fmt.Errorf("load retrieval log: %w", err)
	}

	owner, err := c.ownerIndex(ctx)
	if err != nil {
		return nil, err
	}

	state := c.tuning()
	out := &Outcome{
		Dry:        dryRun,
		DataPoints: len(logs),
		Strategies: AnalyzeStrategies(logs),
		Scopes:     AnalyzeScopeUtility(logs, owner),
		Kinds:      AnalyzeKindUtility(logs, owner),
	}
	out.Proposals = Propose(state, out.Strategies, out.Scopes, out.Kinds, out.DataPoints)

	applied, errs := c.Apply(ctx, out.Proposals, dryRun)
	out.Applied = applied
	out.Errors = errs

	if !dryRun && len(applied) > 0 && c.applied != nil {
		if err := c.applied(ctx); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("refresh tuning snapshot: %v", err))
		}
	}
	return out, nil
}

// Apply upserts each proposal into the tuning state, keyed by parameter
// name, and appends a history entry. Upsert-by-name makes a concurrent
// second run unable to double-apply a delta. With dryRun set nothing is
// committed.
func (c *Controller) Apply(ctx context.Context, proposals []Proposal, dryRun bool) ([]tuning.Change, []string) {
	var applied []tuning.Change
	var errs []string
	for _, p := range proposals {
		prior, err := json.Marshal(p.Current)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: encode prior: %v", p.Param, err))
			continue
		}
		next, err := json.Marshal(p.Proposed)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: encode next: %v", p.Param, err))
			continue
		}
		ch := tuning.Change{
			ID:        uuid.New(),
			Param:     p.Param,
			Prior:     prior,
			Next:      next,
			Reason:    p.Reason,
			AppliedBy: "evolution",
			CreatedAt: c.now(),
		}
		if dryRun {
			applied = append(applied, ch)
			continue
		}
		if err := c.store.UpsertParam(ctx, p.Param, next); err != nil {
			errs = append(errs, fmt.Sprintf("%s: upsert: %v", p.Param, err))
			continue
		}
		if err := c.store.AppendChange(ctx, ch); err != nil {
			errs = append(errs, fmt.Sprintf("%s: history: %v", p.Param, err))
			continue
		}
		applied = append(applied, ch)
	}
	return applied, errs
}

// ownerIndex maps record ids to their owning scope and kind. Partition
// failures leave that scope's records unresolvable rather than failing
// the analysis.
func (c *Controller) ownerIndex(ctx context.Context) (Owner, error) {
	type owned struct {
		scope record.Scope
		kind  record.Kind
	}
	index := make(map[uuid.UUID]owned)
	for _, scope := range record.Scopes {
		records, err := c.store.List(ctx, scope, store.Filter{}, 0)
		if err != nil {
			continue
		}
		for _, r := range records {
			index[r.ID] = owned{scope: scope, kind: r.Kind}
		}
	}
	return func(id uuid.UUID) (record.Scope, record.Kind, bool) {
		o, ok := index[id]
		return o.scope, o.kind, ok
	}, nil
}
