package coherence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/testutil/mocks"
	"github.com/BaSui01/cortexflow/types"
)

func testGateway(response string) *llm.Gateway {
	provider := mocks.NewMockProvider().WithResponse(response)
	return llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
}

func output(agent types.AgentType, draft string, confidence float64) types.AgentOutput {
	return types.AgentOutput{Agent: agent, TextDraft: draft, Confidence: confidence}
}

func TestExtractClaims(t *testing.T) {
	text := "Photosynthesis is an endothermic process that stores energy. " +
		"However it depends on light. " +
		"Short one. " +
		"Plants convert carbon dioxide into glucose continuously."
	claims := ExtractClaims(text)

	require.NotEmpty(t, claims)
	// Discourse-marker sentences and short sentences are excluded.
	for _, claim := range claims {
		assert.NotContains(t, claim, "However")
		assert.Greater(t, len(claim), 10)
	}
	assert.LessOrEqual(t, len(claims), 5)
}

func TestContradictionDetection(t *testing.T) {
	detector := NewDetector()
	outputs := []types.AgentOutput{
		output(types.AgentLogical, "Photosynthesis is endothermic because it absorbs light energy.", 0.8),
		output(types.AgentCreative, "Photosynthesis is not endothermic according to this framing.", 0.6),
	}

	conflicts := detector.DetectConflicts(outputs)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictContradiction, conflicts[0].Type)
	assert.Equal(t, 0.8, conflicts[0].Severity)
	assert.ElementsMatch(t,
		[]types.AgentType{types.AgentLogical, types.AgentCreative},
		conflicts[0].ConflictingAgents)
}

func TestSameAgentNeverConflicts(t *testing.T) {
	detector := NewDetector()
	outputs := []types.AgentOutput{
		output(types.AgentLogical, "The claim is valid under these assumptions today.", 0.8),
		output(types.AgentLogical, "The claim is invalid under those other assumptions today.", 0.8),
	}
	assert.Empty(t, detector.DetectConflicts(outputs))
}

func TestMissingEvidenceDetection(t *testing.T) {
	detector := NewDetector()
	withEvidence := output(types.AgentVerifier, "The measurements agree with prior results exactly.", 0.8)
	withEvidence.Citations = []types.Citation{{Source: "1", Score: 0.8, Type: "text_reference"}}
	without := output(types.AgentEmotional, "People generally feel that these results are encouraging.", 0.6)

	conflicts := detector.DetectConflicts([]types.AgentOutput{withEvidence, without})
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictMissingEvidence, conflicts[0].Type)
	assert.Equal(t, 0.4, conflicts[0].Severity)
}

func TestScoreFormula(t *testing.T) {
	withEvidence := output(types.AgentLogical, "text", 0.8)
	withEvidence.Citations = []types.Citation{{Source: "1"}}
	outputs := []types.AgentOutput{
		withEvidence,
		output(types.AgentCreative, "text", 0.6),
	}
	conflicts := []types.ConflictTicket{{Severity: 0.8}}

	// mean(0.8, 0.6) − 0.8·0.2 + 0.1·1 = 0.7 − 0.16 + 0.1
	assert.InDelta(t, 0.64, Score(outputs, conflicts), 1e-9)
	assert.Equal(t, 0.0, Score(nil, nil))
}

func TestAnalyzeCoherent(t *testing.T) {
	engine := NewEngine(testGateway("resolution text"), 0.85, nil)
	outputs := []types.AgentOutput{
		output(types.AgentLogical, "The design satisfies every stated requirement cleanly.", 0.95),
		output(types.AgentStrategic, "The design satisfies every stated requirement cleanly.", 0.95),
	}

	analysis := engine.Analyze(context.Background(), outputs)
	assert.Empty(t, analysis.Conflicts)
	assert.True(t, analysis.IsCoherent)
	assert.GreaterOrEqual(t, analysis.CoherenceScore, 0.85)
}

func TestAnalyzeResolvesContradiction(t *testing.T) {
	engine := NewEngine(testGateway("the reconciled view"), 0.85, nil)
	outputs := []types.AgentOutput{
		output(types.AgentLogical, "This approach is correct for the stated problem.", 0.8),
		output(types.AgentCreative, "This approach is incorrect for the stated problem.", 0.6),
	}

	analysis := engine.Analyze(context.Background(), outputs)
	require.Len(t, analysis.Conflicts, 1)
	require.Len(t, analysis.Resolutions, 1)
	assert.Equal(t, "arbitration", analysis.Resolutions[0].Strategy)
	assert.Equal(t, 0.7, analysis.Resolutions[0].Confidence)
	assert.Equal(t, "the reconciled view", analysis.Resolutions[0].Resolution)
	assert.False(t, analysis.IsCoherent)
}

func TestResolutionFailureDegrades(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(
		types.NewError(types.ErrUpstreamError, "provider down"))
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	engine := NewEngine(gateway, 0.85, nil)

	outputs := []types.AgentOutput{
		output(types.AgentLogical, "This method is valid for small inputs always.", 0.8),
		output(types.AgentCreative, "This method is invalid for small inputs always.", 0.6),
	}

	analysis := engine.Analyze(context.Background(), outputs)
	assert.Len(t, analysis.Conflicts, 1)
	assert.Empty(t, analysis.Resolutions)
	assert.GreaterOrEqual(t, analysis.CoherenceScore, 0.0)
}
