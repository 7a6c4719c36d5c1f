package gating

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/cortexflow/types"
)

func passingItem(id string, confidence float64, speculative bool, contributors ...types.AgentType) types.BroadcastItem {
	if len(contributors) == 0 {
		contributors = []types.AgentType{types.AgentLogical}
	}
	return types.BroadcastItem{
		ID:           id,
		Text:         "candidate " + id,
		Contributors: contributors,
		Confidence:   confidence,
		Speculative:  speculative,
		CreatedAt:    time.Now(),
		Metadata: map[string]any{
			"agent_critique": map[string]any{"passed": true},
		},
	}
}

func TestQualityGateQuarantinesFailedCritique(t *testing.T) {
	engine := NewEngine(nil, nil, nil)

	blocked := types.BroadcastItem{
		ID:           "bad",
		Text:         "unvalidated claim",
		Contributors: []types.AgentType{types.AgentCreative},
		Confidence:   0.9,
		CreatedAt:    time.Now(),
		Metadata: map[string]any{
			"agent_critique": map[string]any{"passed": false},
		},
	}

	gated := engine.EvaluateCandidates([]types.BroadcastItem{blocked}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})

	assert.Empty(t, gated)
	quarantine := engine.Quarantine()
	require.Len(t, quarantine, 1)
	assert.True(t, strings.HasPrefix(quarantine[0].Reason, QualityGateReason))
}

func TestQualityGateAdmitsVerifierPass(t *testing.T) {
	engine := NewEngine(nil, nil, nil)

	item := types.BroadcastItem{
		ID:           "verified",
		Text:         "verified claim",
		Contributors: []types.AgentType{types.AgentVerifier},
		Confidence:   0.8,
		CreatedAt:    time.Now(),
		Metadata: map[string]any{
			"agent_critique": map[string]any{"passed": false},
			"verifier":       map[string]any{"passed": true},
		},
	}

	gated := engine.EvaluateCandidates([]types.BroadcastItem{item}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})
	assert.Len(t, gated, 1)
	assert.Empty(t, engine.Quarantine())
}

func TestNoMetadataIsQuarantined(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	item := passingItem("x", 0.9, false)
	item.Metadata = nil

	gated := engine.EvaluateCandidates([]types.BroadcastItem{item}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})
	assert.Empty(t, gated)
	assert.Len(t, engine.Quarantine(), 1)
}

func TestConfidenceThresholdRejects(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	gated := engine.EvaluateCandidates([]types.BroadcastItem{passingItem("low", 0.1, false)}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})
	assert.Empty(t, gated)
	// Rejected by policy, not quarantined.
	assert.Empty(t, engine.Quarantine())
}

func TestSpeculativeAdmission(t *testing.T) {
	engine := NewEngine(nil, nil, nil)

	item := passingItem("spec", 0.55, true, types.AgentCreative)
	item.Metadata["disclaimer"] = types.SpeculativeDisclaimer

	// Below the speculative cap the item must be broadcast.
	gated := engine.EvaluateCandidates([]types.BroadcastItem{item}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})
	require.Len(t, gated, 1)
	assert.True(t, gated[0].Speculative)
	assert.Equal(t, types.SpeculativeDisclaimer, gated[0].Metadata["disclaimer"])
}

func TestSpeculativeRatioCap(t *testing.T) {
	policy := NewDeterministicPolicy()
	d := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.8,
		Speculative:  true,
		Contributors: []types.AgentType{types.AgentCreative},
	}, Context{
		Neuromodulators:  types.DefaultNeuromodulatorState(),
		ResourceBudget:   1.0,
		SpeculativeRatio: 0.6,
	})
	assert.False(t, d.Admit)
	assert.Contains(t, d.Reason, "Speculative ratio limit exceeded")
}

func TestLowBudgetRequiresHighConfidence(t *testing.T) {
	policy := NewDeterministicPolicy()
	state := types.DefaultNeuromodulatorState()

	rejected := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.5,
		Contributors: []types.AgentType{types.AgentLogical},
	}, Context{Neuromodulators: state, ResourceBudget: 0.05})
	assert.False(t, rejected.Admit)

	admitted := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.8,
		Contributors: []types.AgentType{types.AgentLogical},
	}, Context{Neuromodulators: state, ResourceBudget: 0.05})
	assert.True(t, admitted.Admit)
}

func TestIntentPriorityBoost(t *testing.T) {
	policy := NewDeterministicPolicy()
	state := types.DefaultNeuromodulatorState()

	plain := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.5,
		Contributors: []types.AgentType{types.AgentLogical},
	}, Context{Neuromodulators: state, ResourceBudget: 1.0})

	boosted := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.5,
		Contributors: []types.AgentType{types.AgentLogical},
	}, Context{Neuromodulators: state, ResourceBudget: 1.0, QueryIntent: []string{"logical"}})

	assert.InDelta(t, plain.Confidence*1.2, boosted.Confidence, 1e-9)
}

func TestExploreFactorOnlyForCreativeStrategic(t *testing.T) {
	policy := NewDeterministicPolicy()
	state := types.DefaultNeuromodulatorState()
	state.ExploreNoise = 1.0

	logical := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.5,
		Contributors: []types.AgentType{types.AgentLogical},
	}, Context{Neuromodulators: state, ResourceBudget: 1.0})

	creative := policy.ShouldGate(types.BroadcastItem{
		Confidence:   0.5,
		Contributors: []types.AgentType{types.AgentCreative},
	}, Context{Neuromodulators: state, ResourceBudget: 1.0})

	assert.Greater(t, creative.Confidence, logical.Confidence)
}

func TestResourceTrackerRestoration(t *testing.T) {
	now := time.Now()
	clock := now
	tracker := NewResourceTracker(100.0, 0.1).WithClock(func() time.Time { return clock })

	tracker.Consume(passingItem("a", 0.0, false)) // cost 1 + 1 + len/1000
	spent := tracker.RemainingBudget()
	assert.Less(t, spent, 100.0)

	clock = clock.Add(30 * time.Minute)
	assert.Equal(t, 100.0, tracker.RemainingBudget())
}

func TestResetCycleClearsQuarantine(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	item := passingItem("x", 0.9, false)
	item.Metadata = map[string]any{"agent_critique": map[string]any{"passed": false}}
	engine.EvaluateCandidates([]types.BroadcastItem{item}, Context{
		Neuromodulators: types.DefaultNeuromodulatorState(),
	})
	require.Len(t, engine.Quarantine(), 1)

	engine.ResetCycle()
	assert.Empty(t, engine.Quarantine())
}

// Invariant: identical candidates under identical context yield
// identical decisions.
func TestGatingDeterminismProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		policy := NewDeterministicPolicy()
		state := types.NeuromodulatorState{
			AttentionGain: rapid.Float64Range(0.1, 2.0).Draw(rt, "gain"),
			ExploreNoise:  rapid.Float64Range(0, 1).Draw(rt, "noise"),
			RewardSignal:  rapid.Float64Range(-1, 1).Draw(rt, "reward"),
		}
		ctx := Context{
			Neuromodulators:  state,
			ResourceBudget:   rapid.Float64Range(0, 100).Draw(rt, "budget"),
			SpeculativeRatio: rapid.Float64Range(0, 1).Draw(rt, "ratio"),
			QueryIntent:      []string{"logical"},
		}
		item := types.BroadcastItem{
			ID:           fmt.Sprintf("item-%d", rapid.IntRange(0, 1000).Draw(rt, "id")),
			Text:         "deterministic candidate",
			Contributors: []types.AgentType{types.AgentLogical},
			Confidence:   rapid.Float64Range(0, 1).Draw(rt, "confidence"),
			Speculative:  rapid.Bool().Draw(rt, "speculative"),
		}

		first := policy.ShouldGate(item, ctx)
		second := policy.ShouldGate(item, ctx)
		if first != second {
			rt.Fatalf("non-deterministic decision: %+v vs %+v", first, second)
		}
	})
}
