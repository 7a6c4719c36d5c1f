// Package router sits between perception and the orchestrator: it
// assembles pre-context (profile, recent and retrieved memory, working
// memory) and classifies the query into types, labels and a reasoning
// depth.
package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/types"
)

const rawTextPreviewLimit = 280

// PreContext is the lightweight context collected before
// classification.
type PreContext struct {
	Timestamp       string           `json:"timestamp"`
	UserID          string           `json:"userId,omitempty"`
	UserProfile     map[string]any   `json:"userProfile,omitempty"`
	RecentMemory    []string         `json:"recentMemory,omitempty"`
	RetrievedMemory []string         `json:"retrievedMemory,omitempty"`
	Env             map[string]string `json:"env"`
	RawTextPreview  string           `json:"rawTextPreview"`
	ProceduralItems []map[string]any `json:"proceduralItems,omitempty"`
	WorkingMemory   []string         `json:"workingMemory"`
}

// Preprocessor builds PreContexts and maintains the working-memory
// ring: persistent per user through the store, process-global
// otherwise.
type Preprocessor struct {
	store  *memory.Store // may be nil when memory is disabled
	wmCap  int
	topK   int
	logger *zap.Logger

	mu         sync.Mutex
	globalRing []string
}

// NewPreprocessor creates a context preprocessor.
func NewPreprocessor(store *memory.Store, wmCap, topK int, logger *zap.Logger) *Preprocessor {
	if wmCap <= 0 {
		wmCap = 7
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{
		store:  store,
		wmCap:  wmCap,
		topK:   topK,
		logger: logger.With(zap.String("component", "preprocessor")),
	}
}

// Preprocess collects pre-context for a query and updates working
// memory with the query text plus the retrieved snippets, truncated to
// the newest wmCap entries. Memory failures degrade to empty hits.
func (p *Preprocessor) Preprocess(ctx context.Context, userID, text string) PreContext {
	pre := PreContext{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		UserID:         userID,
		Env:            map[string]string{"app": "cortexflow", "version": "base"},
		RawTextPreview: preview(text),
	}

	var retrieved []string
	if p.store != nil {
		if hits, err := p.store.Retrieve(ctx, text, p.topK); err == nil {
			for _, hit := range hits {
				retrieved = append(retrieved, hit.ChunkText)
			}
		} else {
			p.logger.Warn("memory retrieval degraded to empty hits", zap.Error(err))
		}
		pre.RetrievedMemory = retrieved

		if tail, err := p.store.EpisodicTail(ctx, 5); err == nil {
			for _, event := range tail {
				summary := event.Response
				if summary == "" {
					summary = event.Query
				}
				if summary != "" {
					pre.RecentMemory = append(pre.RecentMemory, truncate(summary, 400))
				}
			}
		}

		if userID != "" {
			if name := p.store.UserName(ctx, userID); name != "" {
				pre.UserProfile = map[string]any{"name": name}
			}
		}

		if procs, err := p.store.ListProcedural(ctx, 10); err == nil {
			for _, proc := range procs {
				pre.ProceduralItems = append(pre.ProceduralItems, map[string]any{
					"name": proc.Name, "path": proc.Path, "tags": proc.Tags,
				})
			}
		}
	}

	pre.WorkingMemory = p.updateWorkingMemory(ctx, userID, text, retrieved)
	return pre
}

// updateWorkingMemory appends the turn text (and transient retrieved
// snippets) and returns the newest wmCap entries. Only the user's raw
// text is persisted; snippets are merged in transiently.
func (p *Preprocessor) updateWorkingMemory(ctx context.Context, userID, text string, retrieved []string) []string {
	if p.store != nil && userID != "" {
		if err := p.store.WMAdd(ctx, userID, []string{text}, p.wmCap); err == nil {
			persisted, err := p.store.WMGet(ctx, userID, p.wmCap)
			if err == nil {
				merged := append(persisted, retrieved...)
				if len(merged) > p.wmCap {
					merged = merged[len(merged)-p.wmCap:]
				}
				return merged
			}
		}
		p.logger.Warn("persistent working memory unavailable, using process ring")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.globalRing = append(p.globalRing, text)
	p.globalRing = append(p.globalRing, retrieved...)
	if len(p.globalRing) > p.wmCap {
		p.globalRing = p.globalRing[len(p.globalRing)-p.wmCap:]
	}
	out := make([]string, len(p.globalRing))
	copy(out, p.globalRing)
	return out
}

// MemoriesByKind regroups retrieval hits into the context-bundle shape.
func (p *Preprocessor) MemoriesByKind(ctx context.Context, text string) map[string][]types.MemorySnippet {
	if p.store == nil {
		return nil
	}
	hits, err := p.store.Retrieve(ctx, text, p.topK)
	if err != nil {
		return nil
	}
	grouped := map[string][]types.MemorySnippet{}
	for _, hit := range hits {
		kind := string(hit.Kind)
		grouped[kind] = append(grouped[kind], types.MemorySnippet{
			ID:         hit.MemoryID,
			Kind:       kind,
			Text:       hit.ChunkText,
			Score:      hit.Score,
			Importance: hit.Importance,
		})
	}
	return grouped
}

func preview(text string) string {
	return truncate(text, rawTextPreviewLimit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
