package reasoners

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/testutil/mocks"
	"github.com/BaSui01/cortexflow/types"
)

func bundle(text string) *types.ContextBundle {
	return &types.ContextBundle{
		Percept: &types.Percept{
			Modality: types.ModalityText,
			RawText:  text,
		},
		Labels:         []string{"logical"},
		ReasoningDepth: types.DepthShallow,
	}
}

func neutralModulation() neuromod.Modulation {
	return neuromod.Modulation{Confidence: 1.0, Temperature: 0.7, AttentionFactor: 1.0, ExploreFactor: 1.0}
}

func TestUnknownAgentTypeRejected(t *testing.T) {
	_, err := New(types.AgentType("psychic"), nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInput, types.GetErrorCode(err))
}

func TestRunProducesSanitizedOutput(t *testing.T) {
	response := "1. First step of reasoning\n2. Second step with evidence\n3. Conclusion with 0.87 confidence"
	provider := mocks.NewMockProvider().WithResponse(response)
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)

	r, err := New(types.AgentLogical, gateway, nil)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), bundle("Is the sky blue?"), neutralModulation())
	require.NoError(t, err)

	assert.Equal(t, types.AgentLogical, out.Agent)
	assert.NotContains(t, out.TextDraft, "0.87")
	assert.Contains(t, out.TextDraft, "[confidence elided]")
	assert.Len(t, out.ReasoningTrace, 3)
	assert.NotEmpty(t, out.ConfidenceRationale)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestTraceFallsBackToSentences(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		"The answer holds. It follows from the premises. Nothing contradicts it.")
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	r, err := New(types.AgentLogical, gateway, nil)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), bundle("question"), neutralModulation())
	require.NoError(t, err)
	require.NotEmpty(t, out.ReasoningTrace)
	assert.LessOrEqual(t, len(out.ReasoningTrace), 5)
	assert.True(t, strings.HasSuffix(out.ReasoningTrace[0], "."))
}

func TestUncertaintyLowersConfidence(t *testing.T) {
	confident := "1. This is definitely the answer\n2. The evidence is certainly strong\n3. Clearly so"
	hedged := "1. Maybe this is the answer\n2. Perhaps the evidence might support it\n3. It is unclear"

	run := func(response string) float64 {
		provider := mocks.NewMockProvider().WithResponse(response)
		gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
		r, err := New(types.AgentLogical, gateway, nil)
		require.NoError(t, err)
		out, err := r.Run(context.Background(), bundle("question"), neutralModulation())
		require.NoError(t, err)
		return out.Confidence
	}

	assert.Greater(t, run(confident), run(hedged))
}

func TestCitationExtraction(t *testing.T) {
	response := "The finding holds [1] and according to the survey data, it replicates (Smith 2021)."
	provider := mocks.NewMockProvider().WithResponse(response)
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	r, err := New(types.AgentVerifier, gateway, nil)
	require.NoError(t, err)

	out, err := r.Run(context.Background(), bundle("question"), neutralModulation())
	require.NoError(t, err)
	require.NotEmpty(t, out.Citations)
	assert.LessOrEqual(t, len(out.Citations), 5)
	assert.Equal(t, "text_reference", out.Citations[0].Type)
}

func TestMemoryHitExtraction(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(
		"The user prefers graph databases for social network data modeling tasks.")
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	r, err := New(types.AgentLogical, gateway, nil)
	require.NoError(t, err)

	b := bundle("what do I prefer?")
	b.Memories = map[string][]types.MemorySnippet{
		"episodic": {
			{ID: "m1", Text: "user prefers graph databases for social network data"},
			{ID: "m2", Text: "completely unrelated topic entry"},
		},
	}

	out, err := r.Run(context.Background(), b, neutralModulation())
	require.NoError(t, err)
	require.Len(t, out.MemoryHits, 1)
	assert.Equal(t, "m1", out.MemoryHits[0].ID)
	assert.Equal(t, "episodic", out.MemoryHits[0].Kind)
	assert.Greater(t, out.MemoryHits[0].Score, 0.0)
}

func TestExecutorDegradedOutputOnFailure(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(
		types.NewError(types.ErrUpstreamError, "provider down"))
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	executor := NewExecutor(gateway, 2, nil)

	outputs := executor.Execute(context.Background(),
		[]types.AgentType{types.AgentLogical, types.AgentCreative},
		bundle("question"),
		map[types.AgentType]neuromod.Modulation{
			types.AgentLogical:  neutralModulation(),
			types.AgentCreative: neutralModulation(),
		})

	require.Len(t, outputs, 2)
	for _, out := range outputs {
		assert.Equal(t, 0.0, out.Confidence)
		assert.Contains(t, out.ReasoningTrace[0], "Error occurred")
	}
}

func TestExecutorSortsByAgentType(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("1. A step\n2. Another step")
	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0}, nil)
	executor := NewExecutor(gateway, 4, nil)

	selected := []types.AgentType{types.AgentVerifier, types.AgentLogical, types.AgentCreative}
	mods := map[types.AgentType]neuromod.Modulation{}
	for _, agent := range selected {
		mods[agent] = neutralModulation()
	}

	outputs := executor.Execute(context.Background(), selected, bundle("question"), mods)
	require.Len(t, outputs, 3)
	assert.Equal(t, types.AgentLogical, outputs[0].Agent)
	assert.Equal(t, types.AgentCreative, outputs[1].Agent)
	assert.Equal(t, types.AgentVerifier, outputs[2].Agent)
}
