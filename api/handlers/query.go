package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/api"
	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/engine"
	"github.com/BaSui01/cortexflow/internal/metrics"
	"github.com/BaSui01/cortexflow/reasoners"
	"github.com/BaSui01/cortexflow/types"
)

// QueryHandler serves /query, /query/stream, /agents and /health.
type QueryHandler struct {
	orchestrator *engine.Orchestrator
	cfg          *config.Config
	collector    *metrics.Collector // optional
	logger       *zap.Logger
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(orchestrator *engine.Orchestrator, cfg *config.Config, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "query_handler")),
	}
}

// WithCollector attaches the metrics collector.
func (h *QueryHandler) WithCollector(collector *metrics.Collector) *QueryHandler {
	h.collector = collector
	return h
}

func (h *QueryHandler) recordQuery(mode string, start time.Time, result *types.QueryResult, err error) {
	if h.collector == nil {
		return
	}
	iterations := 0
	if result != nil {
		iterations = len(result.IterationTrace)
	}
	h.collector.RecordQuery(mode, time.Since(start), iterations, err)
	h.collector.SetWorkspaceItems(h.orchestrator.Workspace().Workspace.Size())
}

// HandleHealth serves GET /health.
func (h *QueryHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthReply{
		Status:          "healthy",
		Configured:      h.cfg.IsConfigured(),
		MemoryEnabled:   h.cfg.Memory.Enabled,
		AgentsAvailable: true,
	})
}

// HandleAgents serves GET /agents.
func (h *QueryHandler) HandleAgents(w http.ResponseWriter, _ *http.Request) {
	infos := make([]api.AgentInfo, 0, len(types.AllAgentTypes))
	for _, agent := range reasoners.AvailableTypes() {
		infos = append(infos, api.AgentInfo{
			Name:        string(agent),
			Description: reasoners.Describe(agent),
		})
	}
	WriteSuccess(w, infos)
}

// HandleQuery serves POST /query.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var body api.QueryBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}

	jobID := uuid.NewString()
	start := time.Now()
	result, err := h.orchestrator.ProcessQuery(r.Context(), types.QueryRequest{
		JobID:            jobID,
		Text:             body.Text,
		Mode:             types.Mode(body.Mode),
		LoopDepth:        body.LoopDepth,
		AllowMemoryWrite: body.AllowMemoryWrite,
		UserID:           body.UserID,
		SessionID:        body.SessionID,
	})
	h.recordQuery(body.Mode, start, result, err)
	if err != nil {
		WriteJSON(w, statusFor(err), api.QueryReply{
			JobID:   jobID,
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, api.QueryReply{
		JobID:   jobID,
		Result:  result,
		Success: true,
	})
}

func statusFor(err error) int {
	if typed, ok := err.(*types.Error); ok {
		if typed.HTTPStatus != 0 {
			return typed.HTTPStatus
		}
		return mapErrorCodeToHTTPStatus(typed.Code)
	}
	return http.StatusInternalServerError
}

// sseEvents streams pipeline progress as server-sent events.
type sseEvents struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseEvents) send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flusher.Flush()
}

// OnToken implements engine.Events.
func (s *sseEvents) OnToken(agent, token string) {
	s.send("result", map[string]any{"kind": "token", "agent": agent, "token": token})
}

// OnIteration implements engine.Events.
func (s *sseEvents) OnIteration(record types.IterationRecord) {
	s.send("result", map[string]any{"kind": "iteration_complete", "iteration": record})
}

// HandleQueryStream serves POST /query/stream with event types start,
// result, error and done.
func (h *QueryHandler) HandleQueryStream(w http.ResponseWriter, r *http.Request) {
	var body api.QueryBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming unsupported"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := &sseEvents{w: w, flusher: flusher}
	jobID := uuid.NewString()
	events.send("start", map[string]any{"job_id": jobID})

	result, err := h.orchestrator.ProcessQueryWithEvents(r.Context(), types.QueryRequest{
		JobID:            jobID,
		Text:             body.Text,
		Mode:             types.Mode(body.Mode),
		LoopDepth:        body.LoopDepth,
		AllowMemoryWrite: body.AllowMemoryWrite,
		UserID:           body.UserID,
		SessionID:        body.SessionID,
	}, events)
	if err != nil {
		events.send("error", map[string]any{"message": err.Error()})
	} else {
		events.send("result", map[string]any{"kind": "final", "result": result})
	}
	events.send("done", map[string]any{"job_id": jobID})
}
