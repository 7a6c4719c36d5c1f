package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/api"
	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/memory/jobs"
	"github.com/BaSui01/cortexflow/types"
)

// MemoryHandler serves the /memory/* endpoints.
type MemoryHandler struct {
	store     *memory.Store
	scheduler *jobs.Scheduler // may be nil
	logger    *zap.Logger
}

// NewMemoryHandler creates the memory handler.
func NewMemoryHandler(store *memory.Store, scheduler *jobs.Scheduler, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{
		store:     store,
		scheduler: scheduler,
		logger:    logger.With(zap.String("component", "memory_handler")),
	}
}

func (h *MemoryHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		WriteError(w, types.NewError(types.ErrMemory, "memory subsystem disabled").WithHTTPStatus(http.StatusServiceUnavailable), h.logger)
		return false
	}
	return true
}

// HandleSearch serves POST /memory/search and POST /memory/retrieve.
func (h *MemoryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.MemorySearchBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	hits, err := h.store.Retrieve(r.Context(), body.Query, body.K)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, hits)
}

// HandleWrite serves POST /memory/write. Consent is mandatory.
func (h *MemoryHandler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.MemoryWriteBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	id, err := h.store.Write(r.Context(), memory.WriteRequest{
		Kind:         types.MemoryKind(body.Kind),
		Text:         body.Text,
		Tags:         body.Tags,
		Importance:   body.Importance,
		Consent:      body.Consent,
		PrivacyLevel: types.PrivacyLevel(body.PrivacyLevel),
	})
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"id": id})
}

// HandleDelete serves POST /memory/delete and DELETE /memory/{id}.
func (h *MemoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	id := ""
	if r.Method == http.MethodDelete {
		id = strings.TrimPrefix(r.URL.Path, "/memory/")
	} else {
		var body api.MemoryDeleteBody
		if err := DecodeJSON(r, &body); err != nil {
			WriteErrorFrom(w, err, h.logger)
			return
		}
		id = body.ID
	}
	if id == "" {
		WriteError(w, types.NewError(types.ErrInput, "missing memory id"), h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"id": id, "status": "tombstoned"})
}

// HandleRebuildIndex serves POST /memory/rebuild_index.
func (h *MemoryHandler) HandleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	count, err := h.store.RebuildIndex(r.Context())
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"vectors": count})
}

// HandleConsolidate serves POST /memory/consolidate.
func (h *MemoryHandler) HandleConsolidate(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	created, err := h.store.Consolidate(r.Context(), nil)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"created": created})
}

// HandlePrune serves POST /memory/prune.
func (h *MemoryHandler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	removed, err := h.store.Prune(r.Context())
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"removed": removed})
}

// HandleMaintain runs one consolidation + prune pass.
func (h *MemoryHandler) HandleMaintain(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if h.scheduler == nil {
		WriteError(w, types.NewError(types.ErrMemory, "maintenance scheduler unavailable"), h.logger)
		return
	}
	consolidated, pruned, err := h.scheduler.RunMaintenance(r.Context())
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]int{"consolidated": consolidated, "pruned": pruned})
}

// HandleWMGet serves GET /memory/wm?user_id=…&cap=….
func (h *MemoryHandler) HandleWMGet(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	userID := r.URL.Query().Get("user_id")
	capacity, _ := strconv.Atoi(r.URL.Query().Get("cap"))
	entries, err := h.store.WMGet(r.Context(), userID, capacity)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, entries)
}

// HandleWMAdd serves POST /memory/wm/add.
func (h *MemoryHandler) HandleWMAdd(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.WMAddBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if err := h.store.WMAdd(r.Context(), body.UserID, body.Entries, body.Cap); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "ok"})
}

// HandleWMClear serves POST /memory/wm/clear.
func (h *MemoryHandler) HandleWMClear(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.WMBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if err := h.store.WMClear(r.Context(), body.UserID); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "cleared"})
}

// HandleEventWrite serves POST /memory/event/write.
func (h *MemoryHandler) HandleEventWrite(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.EventWriteBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if err := h.store.RecordEpisode(r.Context(), body.UserID, body.SessionID, body.Query, body.Response, body.Reflection); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "recorded"})
}

// HandleTail serves GET /memory/tail?limit=….
func (h *MemoryHandler) HandleTail(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.store.EpisodicTail(r.Context(), limit)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, events)
}

// HandleProceduralRegister serves POST /memory/procedural/register.
func (h *MemoryHandler) HandleProceduralRegister(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var body api.ProceduralRegisterBody
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	if err := h.store.RegisterProcedural(r.Context(), body.Name, body.Path, body.Tags); err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"status": "registered"})
}

// HandleProceduralList serves GET /memory/procedural/list.
func (h *MemoryHandler) HandleProceduralList(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	items, err := h.store.ListProcedural(r.Context(), 50)
	if err != nil {
		WriteErrorFrom(w, err, h.logger)
		return
	}
	WriteSuccess(w, items)
}

// HandleStats serves GET /memory/stats.
func (h *MemoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	WriteSuccess(w, h.store.Stats(r.Context()))
}

// HandleExport serves GET /memory/export.
func (h *MemoryHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := h.store.Export(r.Context(), w); err != nil {
		h.logger.Error("export failed", zap.Error(err))
	}
}
