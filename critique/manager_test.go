package critique

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/testutil/mocks"
	"github.com/BaSui01/cortexflow/types"
)

func gatewayWith(provider *mocks.MockProvider) *llm.Gateway {
	return llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
}

// logicalDraft carries enough logical-focus keywords to satisfy the
// specialized criteria.
const logicalDraft = "The reasoning is sound and the evidence is valid, so the logical conclusion follows."

func TestCritiquePassesCleanOutput(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(`{"pass": true, "issues": [], "suggested_edits": []}`)
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.7}
	crit, final := manager.CritiqueOutput(context.Background(), out)

	assert.True(t, crit.Passed)
	assert.False(t, crit.Escalate)
	// Idempotence: a passed output is returned unchanged, no rewrite.
	assert.Equal(t, out.TextDraft, final.TextDraft)
	assert.Equal(t, out.Iteration, final.Iteration)
	assert.Equal(t, 1, provider.CallCount())
}

func TestCritiqueRewriteLoop(t *testing.T) {
	calls := 0
	provider := mocks.NewMockProvider().WithResponseFunc(func(prompt string) string {
		calls++
		lower := strings.ToLower(prompt)
		if strings.Contains(lower, "automated critic") {
			if calls == 1 {
				return `{"pass": false, "issues": ["contains an error in step two"], "suggested_edits": ["fix step two"]}`
			}
			return `{"pass": true, "issues": [], "suggested_edits": []}`
		}
		// rewrite prompt
		return "Rewritten: " + logicalDraft
	})
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.5, Iteration: 0}
	crit, final := manager.CritiqueOutput(context.Background(), out)

	assert.True(t, crit.Passed)
	assert.False(t, crit.Escalate)
	assert.Contains(t, final.TextDraft, "Rewritten")
	assert.Equal(t, 1, final.Iteration)
	assert.InDelta(t, 0.6, final.Confidence, 1e-9)
}

func TestCritiqueEscalatesAfterSecondFailure(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(func(prompt string) string {
		if strings.Contains(strings.ToLower(prompt), "automated critic") {
			return `{"pass": false, "issues": ["unsupported factual claim is wrong"], "suggested_edits": []}`
		}
		return "Still the same weak draft without fixes."
	})
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.5}
	crit, final := manager.CritiqueOutput(context.Background(), out)

	assert.False(t, crit.Passed)
	assert.True(t, crit.Escalate)
	assert.Equal(t, 1, final.Iteration)
}

func TestLegacyFallbackParsing(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponses(
		"this is not json at all",
		"ISSUES:\n- minor phrasing wrinkle\nSUGGESTED_EDITS:\n- tighten the opening",
	)
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.7}
	crit, _ := manager.CritiqueOutput(context.Background(), out)

	// A single "minor" issue still passes.
	assert.True(t, crit.Passed)
	assert.Contains(t, crit.Issues, "minor phrasing wrinkle")
	assert.Contains(t, crit.SuggestedEdits, "tighten the opening")
}

func TestCriticTotalFailureTreatedAsPassed(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(
		types.NewError(types.ErrUpstreamError, "provider down"))
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.7}
	crit, final := manager.CritiqueOutput(context.Background(), out)

	assert.True(t, crit.Passed)
	assert.Zero(t, crit.ConfidenceImpact)
	assert.Equal(t, out.TextDraft, final.TextDraft)
}

func TestMaxAllowedIssuesRelaxation(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		`{"pass": false, "issues": ["one real issue that is wrong"], "suggested_edits": []}`)
	manager := NewManager(gatewayWith(provider), nil)
	limit := 2
	manager.SetMaxAllowedIssues(&limit)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.7}
	crit, final := manager.CritiqueOutput(context.Background(), out)

	assert.True(t, crit.Passed)
	assert.Equal(t, 0, final.Iteration)
}

func TestSpecializedCriteriaAddIssues(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(`{"pass": true, "issues": [], "suggested_edits": []}`)
	critic := NewCritic(types.AgentEmotional, gatewayWith(provider), nil)

	out := types.AgentOutput{
		Agent:     types.AgentEmotional,
		TextDraft: "A purely technical statement with no relevant vocabulary.",
	}
	crit := critic.Critique(context.Background(), &out)

	assert.False(t, crit.Passed)
	found := false
	for _, issue := range crit.Issues {
		if strings.Contains(issue, "Insufficient emotional perspective") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConfidenceImpact(t *testing.T) {
	tests := []struct {
		name   string
		issues []string
		edits  []string
		want   float64
	}{
		{"no issues", nil, nil, 0.0},
		{"one high", []string{"an error in reasoning"}, nil, -0.3},
		{"one medium", []string{"the claim is vague"}, nil, -0.15},
		{"one low with edit", []string{"minor nit"}, []string{"edit"}, 0.0},
		{"clamped", []string{"error", "wrong contradiction", "incorrect"}, nil, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, confidenceImpact(tt.issues, tt.edits), 1e-9)
		})
	}
}

func TestStatsTracking(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(`{"pass": true, "issues": [], "suggested_edits": []}`)
	manager := NewManager(gatewayWith(provider), nil)

	out := types.AgentOutput{Agent: types.AgentLogical, TextDraft: logicalDraft, Confidence: 0.7}
	_, _ = manager.CritiqueOutput(context.Background(), out)
	_, _ = manager.CritiqueOutput(context.Background(), out)

	stats := manager.Stats()
	require.Equal(t, 2, stats["total_critiques"])
	assert.Equal(t, 1.0, stats["pass_rate"])
}
