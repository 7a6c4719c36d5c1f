package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRemovesInlineConfidence(t *testing.T) {
	tests := []struct {
		name  string
		draft string
		want  string
	}{
		{
			name:  "single token",
			draft: "The answer holds with 0.85 certainty.",
			want:  "The answer holds with [confidence elided] certainty.",
		},
		{
			name:  "multiple tokens",
			draft: "Scores: 0.1 and 0.999 overall.",
			want:  "Scores: [confidence elided] and [confidence elided] overall.",
		},
		{
			name:  "no tokens",
			draft: "Version 1.5 shipped 10.2 days ago.",
			want:  "Version 1.5 shipped 10.2 days ago.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := AgentOutput{TextDraft: tt.draft}
			out.Sanitize()
			assert.Equal(t, tt.want, out.TextDraft)
			assert.NotEmpty(t, out.ConfidenceRationale)
		})
	}
}

func TestNeuromodulatorStateClamp(t *testing.T) {
	s := NeuromodulatorState{AttentionGain: 5.0, ExploreNoise: -1.0, RewardSignal: 2.0}
	s.Clamp()
	assert.Equal(t, AttentionGainMax, s.AttentionGain)
	assert.Equal(t, ExploreNoiseMin, s.ExploreNoise)
	assert.Equal(t, RewardSignalMax, s.RewardSignal)
}

func TestBroadcastItemMetadataAccessors(t *testing.T) {
	item := BroadcastItem{
		Metadata: map[string]any{
			"agent_critique": map[string]any{"passed": true},
		},
	}
	crit, ok := item.Critique()
	assert.True(t, ok)
	assert.Equal(t, true, crit["passed"])

	_, ok = item.Verifier()
	assert.False(t, ok)
}

func TestAgentTypeOrder(t *testing.T) {
	assert.Less(t, AgentLogical.Order(), AgentVerifier.Order())
	assert.Equal(t, len(AllAgentTypes), AgentType("nonsense").Order())
	assert.False(t, AgentType("nonsense").Valid())
	assert.True(t, AgentArbiter.Valid())
}

func TestErrorWrapping(t *testing.T) {
	cause := assert.AnError
	err := NewError(ErrRateLimit, "slow down").WithCause(cause).WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrRateLimit, GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
}
