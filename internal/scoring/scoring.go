// Package scoring holds the pure importance and decay math. Nothing here
// touches the store; strength is always recomputed from current time so a
// cached value can never go stale.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/keremavci/engram/internal/record"
)

// HalfLives maps record kind to base decay half-life in hours.
type HalfLives map[record.Kind]float64

// DefaultHalfLives are the baseline half-lives before any tuning.
func DefaultHalfLives() HalfLives {
	return HalfLives{
		record.KindWorking:    1,
		record.KindEpisodic:   24,
		record.KindSemantic:   168,
		record.KindProcedural: 720,
	}
}

// Importance weighting. The composite is a weighted sum over normalized
// signals, plus a small kind bonus, clamped to 1.0.
const (
	weightRecency    = 0.25
	weightFrequency  = 0.20
	weightRelevance  = 0.20
	weightConfidence = 0.15
	weightOutcome    = 0.10
	weightUser       = 0.10

	bonusProcedural = 0.10
	bonusSemantic   = 0.05

	// recencyTauHours controls how fast the recency term of importance
	// fades after the last update.
	recencyTauHours = 72

	// reinforceStep is the relevance-feedback nudge applied per access.
	reinforceStep = 0.1

	// accessHalfLifeFactor extends the effective half-life per access.
	accessHalfLifeFactor = 0.2
)

// Importance computes the composite importance of a record at the given
// instant. The result is clamped to [0, 1].
func Importance(r *record.Record, now time.Time) float64 {
	hours := now.Sub(r.UpdatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Exp(-hours / recencyTauHours)
	frequency := math.Min(1, float64(r.AccessCount)/10)

	score := recency*weightRecency +
		frequency*weightFrequency +
		record.Clamp01(r.Signals.RelevanceFeedback)*weightRelevance +
		record.Clamp01(r.Confidence)*weightConfidence +
		record.Clamp01(r.Signals.OutcomeImpact)*weightOutcome +
		record.Clamp01(r.Signals.UserFeedback)*weightUser

	switch r.Kind {
	case record.KindProcedural:
		score += bonusProcedural
	case record.KindSemantic:
		score += bonusSemantic
	}

	return record.Clamp01(score)
}

// EffectiveHalfLife stretches the base half-life by access history: every
// access extends it by 20% of the base.
func EffectiveHalfLife(base float64, accessCount int) (float64, error) {
	if base <= 0 {
		return 0, &record.ComputationError{Reason: fmt.Sprintf("non-positive half-life %v", base)}
	}
	if accessCount < 0 {
		accessCount = 0
	}
	return base * (1 + float64(accessCount)*accessHalfLifeFactor), nil
}

// Strength is the time-decayed effective importance:
//
//	importance * 2^(-hoursSinceLastAccess / effectiveHalfLife)
func Strength(r *record.Record, halfLives HalfLives, now time.Time) (float64, error) {
	base, ok := halfLives[r.Kind]
	if !ok {
		return 0, &record.ComputationError{Reason: fmt.Sprintf("no half-life for kind %q", r.Kind)}
	}
	hl, err := EffectiveHalfLife(base, r.AccessCount)
	if err != nil {
		return 0, err
	}

	last := r.LastAccessedAt
	if last.IsZero() {
		last = r.CreatedAt
	}
	hours := now.Sub(last).Hours()
	if hours < 0 {
		hours = 0
	}

	return r.Importance * math.Pow(2, -hours/hl), nil
}

// Reinforce applies the access-side mutations: bump the access count, stamp
// the access time, and nudge the relevance-feedback signal up.
func Reinforce(r *record.Record, now time.Time) {
	r.AccessCount++
	r.LastAccessedAt = now
	r.Signals.RelevanceFeedback = record.Clamp01(r.Signals.RelevanceFeedback + reinforceStep)
}
