// Package evolve closes the feedback loop: it analyzes retrieval history,
// proposes bounded parameter adjustments, and applies them to the tuning
// state. Analysis is pure; mutation happens only in the explicit apply step.
package evolve

import (
	"math"

	"github.com/google/uuid"

	"github.com/keremavci/engram/internal/record"
	"github.com/keremavci/engram/internal/tuning"
)

// Tuning bounds. Every cycle moves any single parameter by a limited step.
const (
	MinDataPoints     = 50
	MaxWeightDelta    = 0.2
	StrategyMargin    = 0.1
	StrategyMinCalls  = 10
	MinHalfLifeFactor = 0.5
	MaxHalfLifeFactor = 2.0

	kindStretchFactor = 1.25
	kindShrinkFactor  = 0.8
)

// StrategyStats aggregates feedback for one retrieval strategy label.
// Effectiveness is NaN when no feedback exists.
type StrategyStats struct {
	Strategy      string  `json:"strategy"`
	Calls         int     `json:"calls"`
	Useful        int     `json:"useful"`
	Useless       int     `json:"useless"`
	Effectiveness float64 `json:"effectiveness"`
}

// AnalyzeStrategies groups the retrieval log by strategy label.
func AnalyzeStrategies(logs []record.RetrievalLogEntry) map[string]StrategyStats {
	out := make(map[string]StrategyStats)
	for _, e := range logs {
		s := out[e.Strategy]
		s.Strategy = e.Strategy
		s.Calls++
		if e.WasUseful != nil {
			if *e.WasUseful {
				s.Useful++
			} else {
				s.Useless++
			}
		}
		out[e.Strategy] = s
	}
	for k, s := range out {
		s.Effectiveness = effectiveness(s.Useful, s.Useless)
		out[k] = s
	}
	return out
}

// UtilityStats is the per-scope (or per-kind) usefulness ratio.
type UtilityStats struct {
	Useful        int     `json:"useful"`
	Useless       int     `json:"useless"`
	Effectiveness float64 `json:"effectiveness"`
}

// Owner resolves a logged result id to its owning scope and kind.
type Owner func(id uuid.UUID) (record.Scope, record.Kind, bool)

// AnalyzeScopeUtility cross-references logged result ids to their owning
// scope and computes per-scope usefulness ratios.
func AnalyzeScopeUtility(logs []record.RetrievalLogEntry, owner Owner) map[record.Scope]UtilityStats {
	out := make(map[record.Scope]UtilityStats)
	for _, e := range logs {
		if e.WasUseful == nil {
			continue
		}
		for _, id := range e.ResultIDs {
			scope, _, ok := owner(id)
			if !ok {
				continue
			}
			s := out[scope]
			if *e.WasUseful {
				s.Useful++
			} else {
				s.Useless++
			}
			out[scope] = s
		}
	}
	for k, s := range out {
		s.Effectiveness = effectiveness(s.Useful, s.Useless)
		out[k] = s
	}
	return out
}

// AnalyzeKindUtility is the same cross-reference keyed by record kind; it
// feeds the half-life adjustment rule.
func AnalyzeKindUtility(logs []record.RetrievalLogEntry, owner Owner) map[record.Kind]UtilityStats {
	out := make(map[record.Kind]UtilityStats)
	for _, e := range logs {
		if e.WasUseful == nil {
			continue
		}
		for _, id := range e.ResultIDs {
			_, kind, ok := owner(id)
			if !ok {
				continue
			}
			s := out[kind]
			if *e.WasUseful {
				s.Useful++
			} else {
				s.Useless++
			}
			out[kind] = s
		}
	}
	for k, s := range out {
		s.Effectiveness = effectiveness(s.Useful, s.Useless)
		out[k] = s
	}
	return out
}

func effectiveness(useful, useless int) float64 {
	total := useful + useless
	if total == 0 {
		return math.NaN()
	}
	return float64(useful) / float64(total)
}

// Proposal is one bounded parameter adjustment.
type Proposal struct {
	Param      string  `json:"param"`
	Current    any     `json:"current"`
	Proposed   any     `json:"proposed"`
	Reason     string  `json:"reason"`
	SampleSize int     `json:"sample_size"`
}

// Propose derives bounded adjustments from the analyses. With fewer than
// MinDataPoints total log entries it proposes nothing.
func Propose(state tuning.State, strategies map[string]StrategyStats, scopes map[record.Scope]UtilityStats, kinds map[record.Kind]UtilityStats, dataPoints int) []Proposal {
	if dataPoints < MinDataPoints {
		return nil
	}
	var out []Proposal

	// Scope weights drift towards scopes that outperform the average,
	// limited to ±MaxWeightDelta per cycle.
	if avg, ok := averageEffectiveness(scopes); ok {
		for _, scope := range record.Scopes {
			stats, ok := scopes[scope]
			if !ok || math.IsNaN(stats.Effectiveness) {
				continue
			}
			gap := stats.Effectiveness - avg
			delta := clamp(gap, -MaxWeightDelta, MaxWeightDelta)
			if math.Abs(delta) < 0.01 {
				continue
			}
			current := state.ScopeWeights[scope]
			out = append(out, Proposal{
				Param:      tuning.ParamScopeWeightPrefix + string(scope),
				Current:    current,
				Proposed:   clamp(current+delta, 0.1, 2.0),
				Reason:     "scope effectiveness diverges from cross-scope average",
				SampleSize: stats.Useful + stats.Useless,
			})
		}
	}

	// The default strategy switches only when a well-sampled alternative
	// clearly beats it.
	current, hasCurrent := strategies[state.DefaultStrategy]
	for name, alt := range strategies {
		if name == state.DefaultStrategy || alt.Calls < StrategyMinCalls || math.IsNaN(alt.Effectiveness) {
			continue
		}
		beats := !hasCurrent || math.IsNaN(current.Effectiveness) ||
			alt.Effectiveness > current.Effectiveness+StrategyMargin
		if beats {
			out = append(out, Proposal{
				Param:      tuning.ParamDefaultStrategy,
				Current:    state.DefaultStrategy,
				Proposed:   name,
				Reason:     "alternative strategy outperforms the default",
				SampleSize: alt.Calls,
			})
			break
		}
	}

	// Half-lives stretch for kinds that keep proving useful and shrink for
	// kinds that do not; the per-cycle factor stays within [0.5, 2.0].
	for kind, stats := range kinds {
		total := stats.Useful + stats.Useless
		if total < StrategyMinCalls || math.IsNaN(stats.Effectiveness) {
			continue
		}
		factor := 0.0
		reason := ""
		switch {
		case stats.Effectiveness > 0.75:
			factor, reason = kindStretchFactor, "kind keeps proving useful; slow its decay"
		case stats.Effectiveness < 0.25:
			factor, reason = kindShrinkFactor, "kind rarely useful; decay it faster"
		default:
			continue
		}
		factor = clamp(factor, MinHalfLifeFactor, MaxHalfLifeFactor)
		currentHL := state.HalfLives[kind]
		if currentHL <= 0 {
			continue
		}
		out = append(out, Proposal{
			Param:      tuning.ParamHalfLifePrefix + string(kind),
			Current:    currentHL,
			Proposed:   currentHL * factor,
			Reason:     reason,
			SampleSize: total,
		})
	}

	return out
}

func averageEffectiveness(scopes map[record.Scope]UtilityStats) (float64, bool) {
	var sum float64
	var n int
	for _, s := range scopes {
		if math.IsNaN(s.Effectiveness) {
			continue
		}
		sum += s.Effectiveness
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
