package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/api"
	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/engine"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Memory.Path = t.TempDir()
	cfg.Engine.CoherenceThreshold = 0.5

	orchestrator, err := engine.Build(cfg, nil)
	require.NoError(t, err)
	if store := orchestrator.Store(); store != nil {
		t.Cleanup(func() { _ = store.Close() })
	}

	query := NewQueryHandler(orchestrator, cfg, nil)
	mem := NewMemoryHandler(orchestrator.Store(), nil, nil)
	return NewRouter(query, mem)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply api.HealthReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "healthy", reply.Status)
	assert.True(t, reply.Configured)
	assert.True(t, reply.MemoryEnabled)
	assert.True(t, reply.AgentsAvailable)
}

func TestAgentsEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool            `json:"success"`
		Data    []api.AgentInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	require.Len(t, envelope.Data, 6)
	assert.Equal(t, "logical", envelope.Data[0].Name)
	assert.NotEmpty(t, envelope.Data[0].Description)
}

func TestQueryEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/query", api.QueryBody{
		Text:      "Does the design hold together?",
		LoopDepth: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply api.QueryReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.Success)
	require.NotNil(t, reply.Result)
	assert.NotEmpty(t, reply.Result.FinalAnswer)
	assert.NotEmpty(t, reply.Result.IterationTrace)
}

func TestQueryEndpointEmptyText(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/query", api.QueryBody{Text: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var reply api.QueryReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

func TestMemoryWriteRequiresConsent(t *testing.T) {
	router := testRouter(t)

	denied := doJSON(t, router, http.MethodPost, "/memory/write", api.MemoryWriteBody{
		Kind: "episodic", Text: "no consent given", Consent: false,
	})
	assert.Equal(t, http.StatusInternalServerError, denied.Code)

	granted := doJSON(t, router, http.MethodPost, "/memory/write", api.MemoryWriteBody{
		Kind: "episodic", Text: "consented note", Consent: true, Importance: 0.5,
	})
	require.Equal(t, http.StatusOK, granted.Code)

	var envelope struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(granted.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Data["id"])
}

func TestMemorySearchAndDelete(t *testing.T) {
	router := testRouter(t)

	write := doJSON(t, router, http.MethodPost, "/memory/write", api.MemoryWriteBody{
		Kind: "semantic", Text: "the sky appears blue due to Rayleigh scattering",
		Consent: true, Importance: 0.7,
	})
	require.Equal(t, http.StatusOK, write.Code)

	var writeEnvelope struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(write.Body.Bytes(), &writeEnvelope))
	id := writeEnvelope.Data["id"]

	search := doJSON(t, router, http.MethodPost, "/memory/search", api.MemorySearchBody{
		Query: "why is the sky blue", K: 5,
	})
	require.Equal(t, http.StatusOK, search.Code)

	del := doJSON(t, router, http.MethodDelete, "/memory/"+id, nil)
	require.Equal(t, http.StatusOK, del.Code)
}

func TestWorkingMemoryEndpoints(t *testing.T) {
	router := testRouter(t)

	add := doJSON(t, router, http.MethodPost, "/memory/wm/add", api.WMAddBody{
		UserID: "u1", Entries: []string{"note one", "note two"}, Cap: 7,
	})
	require.Equal(t, http.StatusOK, add.Code)

	get := doJSON(t, router, http.MethodGet, "/memory/wm?user_id=u1", nil)
	require.Equal(t, http.StatusOK, get.Code)

	var envelope struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &envelope))
	assert.Equal(t, []string{"note one", "note two"}, envelope.Data)

	clear := doJSON(t, router, http.MethodPost, "/memory/wm/clear", api.WMBody{UserID: "u1"})
	require.Equal(t, http.StatusOK, clear.Code)
}

func TestMemoryStatsEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/memory/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Data, "items")
	assert.Contains(t, envelope.Data, "hits")
}
