// Package tuning owns the persisted parameter set the Evolution Controller
// adjusts: scope weights, decay half-lives, promotion thresholds, and the
// default retrieval strategy. Everything else reads snapshots; only the
// controller writes.
package tuning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/scoring"
)

// Retrieval strategies. Hybrid blends text relevance, vector similarity and
// strength; textonly skips the embedding leg.
const (
	StrategyHybrid   = "hybrid"
	StrategyTextOnly = "textonly"
)

// Parameter names as persisted. Scope weights and half-lives are suffixed
// with the scope or kind they apply to.
const (
	ParamScopeWeightPrefix = "scope_weight."
	ParamHalfLifePrefix    = "half_life."
	ParamPromoteImportance = "promote_importance"
	ParamPromoteAccess     = "promote_access_count"
	ParamDefaultStrategy   = "default_strategy"
)

// State is an in-memory snapshot of all tunable parameters.
type State struct {
	ScopeWeights       map[record.Scope]float64
	HalfLives          scoring.HalfLives
	PromoteImportance  float64
	PromoteAccessCount int
	DefaultStrategy    string
}

// Default returns the untuned baseline.
func Default() State {
	return State{
		ScopeWeights: map[record.Scope]float64{
			record.ScopeSession: 1.0,
			record.ScopeProject: 1.0,
			record.ScopeUser:    0.8,
		},
		HalfLives:          scoring.DefaultHalfLives(),
		PromoteImportance:  0.5,
		PromoteAccessCount: 2,
		DefaultStrategy:    StrategyHybrid,
	}
}

// Clone returns a deep copy safe for concurrent readers.
func (s State) Clone() State {
	out := s
	out.ScopeWeights = make(map[record.Scope]float64, len(s.ScopeWeights))
	for k, v := range s.ScopeWeights {
		out.ScopeWeights[k] = v
	}
	out.HalfLives = make(scoring.HalfLives, len(s.HalfLives))
	for k, v := range s.HalfLives {
		out.HalfLives[k] = v
	}
	return out
}

// Change is one applied parameter adjustment, kept as append-only history.
type Change struct {
	ID        uuid.UUID       `json:"id"`
	Param     string          `json:"param"`
	Prior     json.RawMessage `json:"prior"`
	Next      json.RawMessage `json:"next"`
	Reason    string          `json:"reason"`
	AppliedBy string          `json:"applied_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository persists named parameters and their change history. Satisfied
// by the record store adapters.
type Repository interface {
	Params(ctx context.Context) (map[string]json.RawMessage, error)
	UpsertParam(ctx context.Context, name string, value json.RawMessage) error
	AppendChange(ctx context.Context, ch Change) error
	Changes(ctx context.Context, limit int) ([]Change, error)
}

// Load overlays persisted parameters on the defaults. Unknown or malformed
// entries are skipped rather than failing the load.
func Load(ctx context.Context, repo Repository) (State, error) {
	state := Default()
	params, err := repo.Params(ctx)
	if err != nil {
		return state, fmt.Errorf("load tuning params: %w", err)
	}
	for name, raw := range params {
		state.set(name, raw)
	}
	return state, nil
}

func (s *State) set(name string, raw json.RawMessage) {
	switch {
	case strings.HasPrefix(name, ParamScopeWeightPrefix):
		scope := record.Scope(strings.TrimPrefix(name, ParamScopeWeightPrefix))
		var v float64
		if record.ValidScope(scope) && json.Unmarshal(raw, &v) == nil {
			s.ScopeWeights[scope] = v
		}
	case strings.HasPrefix(name, ParamHalfLifePrefix):
		kind := record.Kind(strings.TrimPrefix(name, ParamHalfLifePrefix))
		var v float64
		if record.ValidKind(kind) && json.Unmarshal(raw, &v) == nil && v > 0 {
			s.HalfLives[kind] = v
		}
	case name == ParamPromoteImportance:
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			s.PromoteImportance = v
		}
	case name == ParamPromoteAccess:
		var v int
		if json.Unmarshal(raw, &v) == nil {
			s.PromoteAccessCount = v
		}
	case name == ParamDefaultStrategy:
		var v string
		if json.Unmarshal(raw, &v) == nil && (v == StrategyHybrid || v == StrategyTextOnly) {
			s.DefaultStrategy = v
		}
	}
}
