package tuning

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/keremavci/engram/internal/record"
)

type fakeRepo struct {
	params map[string]json.RawMessage
}

func (f *fakeRepo) Params(ctx context.Context) (map[string]json.RawMessage, error) {
	return f.params, nil
}
func (f *fakeRepo) UpsertParam(ctx context.Context, name string, value json.RawMessage) error {
	f.params[name] = value
	return nil
}
func (f *fakeRepo) AppendChange(ctx context.Context, ch Change) error { return nil }
func (f *fakeRepo) Changes(ctx context.Context, limit int) ([]Change, error) {
	return nil, nil
}

func TestLoadOverlaysPersistedParams(t *testing.T) {
	repo := &fakeRepo{params: map[string]json.RawMessage{
		ParamScopeWeightPrefix + "user":    json.RawMessage(`1.4`),
		ParamHalfLifePrefix + "episodic":   json.RawMessage(`36`),
		ParamPromoteImportance:             json.RawMessage(`0.6`),
		ParamPromoteAccess:                 json.RawMessage(`4`),
		ParamDefaultStrategy:               json.RawMessage(`"textonly"`),
	}}

	state, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.ScopeWeights[record.ScopeUser] != 1.4 {
		t.Fatalf("user weight = %v, want 1.4", state.ScopeWeights[record.ScopeUser])
	}
	if state.HalfLives[record.KindEpisodic] != 36 {
		t.Fatalf("episodic half-life = %v, want 36", state.HalfLives[record.KindEpisodic])
	}
	if state.PromoteImportance != 0.6 {
		t.Fatalf("promote importance = %v, want 0.6", state.PromoteImportance)
	}
	if state.PromoteAccessCount != 4 {
		t.Fatalf("promote access = %v, want 4", state.PromoteAccessCount)
	}
	if state.DefaultStrategy != StrategyTextOnly {
		t.Fatalf("strategy = %q, want textonly", state.DefaultStrategy)
	}
	// Untouched parameters keep their defaults.
	if state.ScopeWeights[record.ScopeSession] != 1.0 {
		t.Fatalf("session weight drifted to %v", state.ScopeWeights[record.ScopeSession])
	}
}

func TestLoadSkipsMalformedParams(t *testing.T) {
	repo := &fakeRepo{params: map[string]json.RawMessage{
		ParamScopeWeightPrefix + "galaxy":  json.RawMessage(`1.4`),        // unknown scope
		ParamHalfLifePrefix + "episodic":   json.RawMessage(`-5`),         // non-positive
		ParamHalfLifePrefix + "semantic":   json.RawMessage(`"lots"`),     // wrong type
		ParamDefaultStrategy:               json.RawMessage(`"psychic"`),  // unknown strategy
		"completely_unknown":               json.RawMessage(`true`),
	}}

	state, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if state.HalfLives[record.KindEpisodic] != def.HalfLives[record.KindEpisodic] {
		t.Fatalf("negative half-life accepted")
	}
	if state.HalfLives[record.KindSemantic] != def.HalfLives[record.KindSemantic] {
		t.Fatalf("non-numeric half-life accepted")
	}
	if state.DefaultStrategy != def.DefaultStrategy {
		t.Fatalf("unknown strategy accepted: %q", state.DefaultStrategy)
	}
	if _, ok := state.ScopeWeights["galaxy"]; ok {
		t.Fatalf("unknown scope weight accepted")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Default()
	c := orig.Clone()

	c.ScopeWeights[record.ScopeSession] = 9
	c.HalfLives[record.KindEpisodic] = 9

	if orig.ScopeWeights[record.ScopeSession] == 9 {
		t.Fatalf("clone shares the scope weight map")
	}
	if orig.HalfLives[record.KindEpisodic] == 9 {
		t.Fatalf("clone shares the half-life map")
	}
}
