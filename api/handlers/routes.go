package handlers

import (
	"net/http"
	"strings"
)

// NewRouter assembles the API surface on a ServeMux.
func NewRouter(query *QueryHandler, mem *MemoryHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", query.HandleHealth)
	mux.HandleFunc("GET /agents", query.HandleAgents)
	mux.HandleFunc("POST /query", query.HandleQuery)
	mux.HandleFunc("POST /query/stream", query.HandleQueryStream)

	mux.HandleFunc("POST /memory/search", mem.HandleSearch)
	mux.HandleFunc("POST /memory/retrieve", mem.HandleSearch)
	mux.HandleFunc("POST /memory/write", mem.HandleWrite)
	mux.HandleFunc("POST /memory/event/write", mem.HandleEventWrite)
	mux.HandleFunc("GET /memory/tail", mem.HandleTail)
	mux.HandleFunc("GET /memory/wm", mem.HandleWMGet)
	mux.HandleFunc("POST /memory/wm/add", mem.HandleWMAdd)
	mux.HandleFunc("POST /memory/wm/clear", mem.HandleWMClear)
	mux.HandleFunc("POST /memory/procedural/register", mem.HandleProceduralRegister)
	mux.HandleFunc("GET /memory/procedural/list", mem.HandleProceduralList)
	mux.HandleFunc("POST /memory/rebuild_index", mem.HandleRebuildIndex)
	mux.HandleFunc("POST /memory/delete", mem.HandleDelete)
	mux.HandleFunc("POST /memory/consolidate", mem.HandleConsolidate)
	mux.HandleFunc("POST /memory/prune", mem.HandlePrune)
	mux.HandleFunc("POST /memory/maintain", mem.HandleMaintain)
	mux.HandleFunc("GET /memory/stats", mem.HandleStats)
	mux.HandleFunc("GET /memory/export", mem.HandleExport)

	// DELETE /memory/{id} — the id segment is parsed by the handler.
	mux.HandleFunc("DELETE /memory/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Count(strings.TrimPrefix(r.URL.Path, "/memory/"), "/") > 0 {
			http.NotFound(w, r)
			return
		}
		mem.HandleDelete(w, r)
	})

	return mux
}
