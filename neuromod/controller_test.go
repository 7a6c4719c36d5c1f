package neuromod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/cortexflow/types"
)

func TestDefaultState(t *testing.T) {
	c := NewController(nil)
	s := c.State()
	assert.Equal(t, 1.0, s.AttentionGain)
	assert.Equal(t, 0.2, s.ExploreNoise)
	assert.Equal(t, 0.0, s.RewardSignal)
}

func TestUpdatesAreClamped(t *testing.T) {
	// A fixed clock keeps lazy decay from moving values off the bounds.
	now := time.Now()
	c := NewController(nil).WithClock(func() time.Time { return now })
	c.UpdateAttentionGain(10.0, "test")
	c.UpdateExploreNoise(-5.0, "test")
	c.UpdateRewardSignal(-10.0, "test")

	s := c.State()
	assert.Equal(t, types.AttentionGainMax, s.AttentionGain)
	assert.Equal(t, types.ExploreNoiseMin, s.ExploreNoise)
	assert.Equal(t, types.RewardSignalMin, s.RewardSignal)
}

func TestFeedbackHandlers(t *testing.T) {
	tests := []struct {
		kind          FeedbackType
		value         float64
		wantAttention float64
		wantExplore   float64
		wantReward    float64
	}{
		{FeedbackSuccess, 1.0, 1.05, 0.2, 0.1},
		{FeedbackFailure, 1.0, 1.0, 0.3, -0.1},
		{FeedbackUncertainty, 1.0, 1.1, 0.35, 0.0},
		{FeedbackNovelty, 1.0, 1.0, 0.4, 0.05},
		{FeedbackUserEngagement, 1.0, 1.06, 0.2, 0.08},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := NewController(nil)
			c.ProcessFeedback(tt.kind, tt.value)
			s := c.State()
			assert.InDelta(t, tt.wantAttention, s.AttentionGain, 1e-9)
			assert.InDelta(t, tt.wantExplore, s.ExploreNoise, 1e-9)
			assert.InDelta(t, tt.wantReward, s.RewardSignal, 1e-9)
		})
	}
}

func TestDecayTowardTargets(t *testing.T) {
	now := time.Now()
	clock := now
	c := NewController(nil).WithClock(func() time.Time { return clock })

	c.UpdateAttentionGain(0.5, "boost")
	assert.InDelta(t, 1.5, c.State().AttentionGain, 1e-9)

	// 100 hours of decay at 0.001/hour moves 0.1 toward the target.
	clock = clock.Add(100 * time.Hour)
	assert.InDelta(t, 1.4, c.State().AttentionGain, 1e-9)

	// Enough time decays exactly to the target, never past it.
	clock = clock.Add(10000 * time.Hour)
	assert.InDelta(t, 1.0, c.State().AttentionGain, 1e-9)
}

func TestModulateAgentBehavior(t *testing.T) {
	c := NewController(nil)
	c.UpdateAttentionGain(0.5, "focus") // gain = 1.5

	m := c.ModulateAgentBehavior(types.AgentLogical, 0.6, 0.7)
	assert.InDelta(t, 0.6*1.5, m.Confidence, 1e-9)
	assert.InDelta(t, 0.7/1.5, m.Temperature, 1e-9)
	assert.Contains(t, m.Extra, "precision_boost")
	assert.Contains(t, m.Extra, "confidence_threshold")

	creative := c.ModulateAgentBehavior(types.AgentCreative, 0.8, 0.7)
	assert.Contains(t, creative.Extra, "creativity_boost")
	assert.Contains(t, creative.Extra, "novelty_threshold")
}

func TestModulateAgentBehaviorCaps(t *testing.T) {
	c := NewController(nil)
	c.UpdateAttentionGain(1.0, "max") // clamped to 2.0
	m := c.ModulateAgentBehavior(types.AgentLogical, 0.9, 0.7)
	assert.LessOrEqual(t, m.Confidence, 1.0)
	assert.LessOrEqual(t, m.Temperature, 2.0)
}

func TestModulateGatingThresholdBounds(t *testing.T) {
	c := NewController(nil)
	assert.InDelta(t, 0.3, c.ModulateGatingThreshold(0.3), 1e-9)

	c.UpdateRewardSignal(1.0, "win")
	lowered := c.ModulateGatingThreshold(0.3)
	assert.Less(t, lowered, 0.3)
	assert.GreaterOrEqual(t, lowered, 0.1)
}

func TestCallbackPanicIsolated(t *testing.T) {
	c := NewController(nil)
	c.OnUpdate(func(types.NeuromodulatorState) { panic("boom") })
	called := false
	c.OnUpdate(func(types.NeuromodulatorState) { called = true })

	assert.NotPanics(t, func() { c.UpdateRewardSignal(0.1, "test") })
	assert.True(t, called)
}

// Invariant: the state always stays within its clamp ranges, and the
// modulated gating threshold within [0.1, 0.9], whatever feedback
// arrives.
func TestStateInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewController(nil)
		kinds := []FeedbackType{
			FeedbackSuccess, FeedbackFailure, FeedbackUncertainty,
			FeedbackNovelty, FeedbackUserEngagement,
		}

		n := rapid.IntRange(1, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(rt, "kind")]
			value := rapid.Float64Range(0, 1).Draw(rt, "value")
			c.ProcessFeedback(kind, value)
		}

		s := c.State()
		if s.AttentionGain < types.AttentionGainMin || s.AttentionGain > types.AttentionGainMax {
			rt.Fatalf("attention gain out of range: %f", s.AttentionGain)
		}
		if s.ExploreNoise < types.ExploreNoiseMin || s.ExploreNoise > types.ExploreNoiseMax {
			rt.Fatalf("explore noise out of range: %f", s.ExploreNoise)
		}
		if s.RewardSignal < types.RewardSignalMin || s.RewardSignal > types.RewardSignalMax {
			rt.Fatalf("reward signal out of range: %f", s.RewardSignal)
		}

		base := rapid.Float64Range(0, 1).Draw(rt, "base")
		threshold := c.ModulateGatingThreshold(base)
		if threshold < 0.1 || threshold > 0.9 {
			rt.Fatalf("gating threshold out of range: %f", threshold)
		}
	})
}
