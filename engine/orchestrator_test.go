package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/coherence"
	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/critique"
	"github.com/BaSui01/cortexflow/gating"
	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/perception"
	"github.com/BaSui01/cortexflow/reasoners"
	"github.com/BaSui01/cortexflow/router"
	"github.com/BaSui01/cortexflow/testutil/mocks"
	"github.com/BaSui01/cortexflow/types"
	"github.com/BaSui01/cortexflow/workspace"
)

// scriptedResponder mimics a cooperative model: strict JSON for the
// classifier and critic, keyword-rich reasoning for the agents.
func scriptedResponder(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "query classifier"):
		return `{"intent": "get_information", "query_type": "logical", "labels": ["logical"],
"label_confidences": {"logical": 0.85}, "content": "test", "metadata": {},
"confidence": 0.85, "reasoning_depth": "shallow"}`
	case strings.Contains(lower, "automated critic"):
		return `{"pass": true, "issues": [], "suggested_edits": []}`
	case strings.Contains(lower, "synthesis stage"):
		return "The synthesized final answer drawn from validated perspectives."
	default:
		return "1. The reasoning here is sound and logical\n" +
			"2. The evidence is valid and supports the conclusion\n" +
			"3. Therefore the conclusion follows"
	}
}

func testOrchestrator(t *testing.T, provider *mocks.MockProvider, withMemory bool) *Orchestrator {
	t.Helper()

	gateway := llm.NewGateway(provider, llm.GatewayConfig{Retries: 0, Temperature: 0.7}, nil)

	var store *memory.Store
	if withMemory {
		var err error
		cfg := memory.DefaultConfig()
		cfg.Path = t.TempDir()
		store, err = memory.NewStore(cfg, nil, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	preprocessor := router.NewPreprocessor(store, 7, 5, nil)
	engineCfg := config.EngineConfig{
		MaxIterations:       3,
		DefaultMode:         types.ModeConcise,
		EnableReflection:    true,
		CoherenceThreshold:  0.5,
		MaxConcurrentAgents: 2,
	}

	deps := Deps{
		Adapter:      perception.NewAdapter(nil, nil),
		Preprocessor: preprocessor,
		Classifier:   router.NewClassifier(gateway, preprocessor, nil),
		Executor:     reasoners.NewExecutor(gateway, 2, nil),
		CritiqueMgr:  critique.NewManager(gateway, nil),
		CoherenceEng: coherence.NewEngine(gateway, 0.5, nil),
		GatingEng:    gating.NewEngine(nil, nil, nil),
		WSManager:    workspace.NewManager(workspace.DefaultConfig(), workspace.DefaultWMConfig(), nil),
		Controller:   neuromod.NewController(nil),
		Gateway:      gateway,
		Store:        store,
	}
	return New(engineCfg, deps, nil)
}

var inlineConfidenceRE = regexp.MustCompile(`\b0\.\d+\b`)

func TestProcessQueryHappyPath(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	result, err := o.ProcessQuery(context.Background(), types.QueryRequest{
		Text:      "Is this architecture sound?",
		LoopDepth: 1,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.FinalAnswer)
	assert.False(t, inlineConfidenceRE.MatchString(result.FinalAnswer),
		"final answer must not leak numeric confidence")
	require.Len(t, result.IterationTrace, 1)
	assert.NotEmpty(t, result.IterationTrace[0].GatedItems)
	assert.Greater(t, result.QualityScore, 0.3)
	assert.True(t, result.CoherenceOK)

	// Gated items landed in the workspace and working memory.
	assert.Greater(t, o.Workspace().Workspace.Size(), 0)
	assert.LessOrEqual(t, o.Workspace().WM.Len(), 7)

	report := result.MetaReport
	assert.Contains(t, report.AgentsRun, types.AgentLogical)
	assert.Equal(t, 1, report.Iterations)
}

func TestEmptyQueryRejected(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, true)

	_, err := o.ProcessQuery(context.Background(), types.QueryRequest{Text: "   "})
	require.Error(t, err)
	assert.Equal(t, types.ErrInput, types.GetErrorCode(err))

	// No memory was written for the rejected query.
	hits, retrieveErr := o.Store().Retrieve(context.Background(), "anything", 5)
	require.NoError(t, retrieveErr)
	assert.Empty(t, hits)
}

func TestInvalidModeRejected(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	_, err := o.ProcessQuery(context.Background(), types.QueryRequest{
		Text: "valid question",
		Mode: types.Mode("verbose"),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInput, types.GetErrorCode(err))
}

func TestAllProvidersFailingStillSynthesizes(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(
		types.NewError(types.ErrUpstreamError, "provider down"))
	o := testOrchestrator(t, provider, false)

	result, err := o.ProcessQuery(context.Background(), types.QueryRequest{
		Text:      "what happens when everything fails?",
		LoopDepth: 1,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.FinalAnswer)
	assert.LessOrEqual(t, result.QualityScore, 0.3)
	assert.Empty(t, result.IterationTrace[0].GatedItems)
}

func TestFailedCritiqueQuarantined(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(func(prompt string) string {
		lower := strings.ToLower(prompt)
		switch {
		case strings.Contains(lower, "query classifier"):
			return `{"intent": "get_information", "query_type": "logical", "labels": ["logical"],
"content": "test", "confidence": 0.8, "reasoning_depth": "shallow"}`
		case strings.Contains(lower, "automated critic"):
			return `{"pass": false, "issues": ["contains a factual error"], "suggested_edits": []}`
		default:
			return "1. The reasoning here is sound and logical\n2. The evidence is valid"
		}
	})
	o := testOrchestrator(t, provider, false)

	result, err := o.ProcessQuery(context.Background(), types.QueryRequest{
		Text:      "trigger the quality gate",
		LoopDepth: 1,
	})
	require.NoError(t, err)

	assert.Empty(t, result.IterationTrace[0].GatedItems)
	require.NotEmpty(t, result.Quarantine)
	assert.True(t, strings.HasPrefix(result.Quarantine[0].Reason, gating.QualityGateReason))
	assert.Greater(t, result.MetaReport.Escalations, 0)
}

func TestNameCaptureAndRetrieval(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, true)
	ctx := context.Background()

	_, err := o.ProcessQuery(ctx, types.QueryRequest{
		Text:             "My name is Alice.",
		UserID:           "u1",
		LoopDepth:        1,
		AllowMemoryWrite: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", o.Store().UserName(ctx, "u1"))

	hits, err := o.Store().Retrieve(ctx, "What do you know about me?", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "the first query must have written an episodic memory")

	found := false
	for _, hit := range hits {
		if strings.Contains(hit.ChunkText, "Alice") {
			found = true
		}
	}
	assert.True(t, found, "retrieval should surface the name")
}

func TestCancellationHonored(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.ProcessQuery(ctx, types.QueryRequest{Text: "never mind"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
}

func TestRunProtocol(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	input := strings.NewReader(
		`{"jobId": "j1", "text": "protocol question", "mode": "concise", "loopDepth": 1}` + "\n")
	var output bytes.Buffer

	require.NoError(t, o.RunProtocol(context.Background(), input, &output))

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.NotEmpty(t, lines)

	kinds := map[string]int{}
	for _, line := range lines {
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &event), "line: %s", line)
		kind, _ := event["kind"].(string)
		kinds[kind]++
	}

	assert.Greater(t, kinds["token"], 0)
	assert.Equal(t, 1, kinds["iteration_complete"])
	assert.Equal(t, 1, kinds["done"])
	assert.Zero(t, kinds["error"])
}

func TestMalformedProtocolLineEmitsError(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	input := strings.NewReader("this is not json\n")
	var output bytes.Buffer
	require.NoError(t, o.RunProtocol(context.Background(), input, &output))

	assert.Contains(t, output.String(), `"kind":"error"`)
	assert.Contains(t, output.String(), `"kind":"done"`)
}

func TestSelectAgents(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(scriptedResponder)
	o := testOrchestrator(t, provider, false)

	tests := []struct {
		name  string
		query types.StructuredQuery
		want  []types.AgentType
	}{
		{
			name:  "logical only",
			query: types.StructuredQuery{QueryType: types.QueryLogical},
			want:  []types.AgentType{types.AgentLogical},
		},
		{
			name: "strategic with labels",
			query: types.StructuredQuery{
				QueryType: types.QueryStrategic,
				Labels:    []string{"strategic", "logical"},
			},
			want: []types.AgentType{types.AgentLogical, types.AgentStrategic},
		},
		{
			name: "factual maps to verifier",
			query: types.StructuredQuery{
				QueryType: types.QueryFactual,
			},
			want: []types.AgentType{types.AgentLogical, types.AgentVerifier},
		},
		{
			name: "deep engages full suite",
			query: types.StructuredQuery{
				QueryType:      types.QueryCreative,
				ReasoningDepth: types.DepthDeep,
			},
			want: types.AllAgentTypes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.selectAgents(tt.query))
		})
	}
}
