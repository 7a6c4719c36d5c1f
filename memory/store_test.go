package memory

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/cortexflow/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	store, err := NewStore(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestWriteRequiresConsent(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Write(context.Background(), WriteRequest{
		Kind:    types.MemoryEpisodic,
		Text:    "should be rejected",
		Consent: false,
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrMemory, types.GetErrorCode(err))
}

func TestWriteRetrieveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Write(ctx, WriteRequest{
		Kind:       types.MemoryEpisodic,
		Text:       "the user prefers graph databases for social data",
		Tags:       []string{"preference"},
		Importance: 0.8,
		Consent:    true,
	})
	require.NoError(t, err)

	hits, err := store.Retrieve(ctx, "the user prefers graph databases for social data", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	found := false
	for _, hit := range hits {
		if hit.MemoryID == id {
			found = true
			assert.Greater(t, hit.Score, 0.0)
		}
	}
	assert.True(t, found, "written memory should be retrievable within top-k")
}

func TestRetrievalExcludesPrivateAndNonConsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, WriteRequest{
		Kind:         types.MemoryEpisodic,
		Text:         "highly sensitive personal detail",
		Consent:      true,
		PrivacyLevel: types.PrivacySensitive,
	})
	require.NoError(t, err)

	_, err = store.Write(ctx, WriteRequest{
		Kind:         types.MemoryEpisodic,
		Text:         "restricted internal detail",
		Consent:      true,
		PrivacyLevel: types.PrivacyHigh,
	})
	require.NoError(t, err)

	okID, err := store.Write(ctx, WriteRequest{
		Kind:    types.MemoryEpisodic,
		Text:    "ordinary shareable detail",
		Consent: true,
	})
	require.NoError(t, err)

	hits, err := store.Retrieve(ctx, "detail", 10)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.Equal(t, okID, hit.MemoryID,
			"only the low-privacy item may be returned")
	}
}

func TestPIIRedactionInChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Write(ctx, WriteRequest{
		Kind:       types.MemoryEpisodic,
		Text:       "Contact me at john.doe@example.com or +1-555-234-5678",
		Tags:       []string{"pii"},
		Importance: 0.6,
		Consent:    true,
	})
	require.NoError(t, err)

	var chunks []Chunk
	require.NoError(t, store.db.Where("memory_id = ?", id).Order("position asc").Find(&chunks).Error)
	require.NotEmpty(t, chunks)

	joined := ""
	for _, chunk := range chunks {
		joined += chunk.ChunkText + " "
		assert.False(t, ContainsPII(chunk.ChunkText), "chunk must not contain raw PII: %s", chunk.ChunkText)
	}
	assert.True(t, strings.Contains(joined, "[email]") || strings.Contains(joined, "[phone]"))
}

func TestRedactPII(t *testing.T) {
	redacted := RedactPII("mail a@b.co or ring +1 (555) 234-5678 now")
	assert.Contains(t, redacted, "[email]")
	assert.Contains(t, redacted, "[phone]")
	assert.NotContains(t, redacted, "a@b.co")
	assert.NotContains(t, redacted, "555")
}

func TestEvaluateWriteGate(t *testing.T) {
	tests := []struct {
		name                                  string
		importance, novelty, utility, emotion float64
		want                                  bool
	}{
		{"all high", 1.0, 1.0, 1.0, 1.0, true},
		{"threshold exactly", 1.0, 0.0, 0.0, 0.0, true},
		{"all low", 0.1, 0.1, 0.1, 0.1, false},
		{"importance dominates", 0.8, 0.2, 0.2, 0.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateWrite(tt.importance, tt.novelty, tt.utility, tt.emotion))
		})
	}
}

func TestShouldWriteRejectsDuplicatesUnlessForced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, WriteRequest{
		Kind:       types.MemoryEpisodic,
		Text:       "an exact duplicate sentence",
		Importance: 1.0,
		Consent:    true,
	})
	require.NoError(t, err)

	// The identical text has novelty 0 (hash embeddings are equal).
	assert.False(t, store.ShouldWrite(ctx, "an exact duplicate sentence", 1.0, 1.0, 1.0, false))
	assert.True(t, store.ShouldWrite(ctx, "an exact duplicate sentence", 1.0, 1.0, 1.0, true))
}

func TestScoreMonotonicity(t *testing.T) {
	// Holding other factors constant, a larger distance or age lowers
	// the score.
	score := func(distance, importance, ageDays float64) float64 {
		recency := math.Exp(-ageDays / 30.0)
		return 0.6*(1.0/(1.0+distance)) + 0.3*importance + 0.1*recency
	}
	assert.Greater(t, score(0.1, 0.5, 0), score(0.9, 0.5, 0))
	assert.Greater(t, score(0.5, 0.5, 1), score(0.5, 0.5, 60))
}

func TestDeleteTombstonesAndExcludes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Write(ctx, WriteRequest{
		Kind:    types.MemoryEpisodic,
		Text:    "to be deleted shortly",
		Consent: true,
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	hits, err := store.Retrieve(ctx, "to be deleted shortly", 5)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, id, hit.MemoryID)
	}

	err = store.Delete(ctx, "mem_missing")
	assert.Equal(t, types.ErrInput, types.GetErrorCode(err))
}

func TestRebuildIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, WriteRequest{Kind: types.MemorySemantic, Text: "fact one", Consent: true})
	require.NoError(t, err)
	_, err = store.Write(ctx, WriteRequest{Kind: types.MemorySemantic, Text: "fact two", Consent: true})
	require.NoError(t, err)

	count, err := store.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWorkingMemoryRing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, entry := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.WMAdd(ctx, "alice", []string{entry}, 3))
	}

	entries, err := store.WMGet(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three", "four"}, entries)

	// Rings are per user.
	other, err := store.WMGet(ctx, "bob", 3)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.WMClear(ctx, "alice"))
	entries, err = store.WMGet(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConsolidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Write(ctx, WriteRequest{
			Kind:       types.MemoryEpisodic,
			Text:       "session note about deployment pipelines",
			Tags:       []string{"deploy"},
			Importance: 0.6,
			Consent:    true,
		})
		require.NoError(t, err)
	}

	created, err := store.Consolidate(ctx, func(texts []string) string {
		return "deployment pipelines were discussed repeatedly"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	var facts []SemanticFact
	require.NoError(t, store.db.Find(&facts).Error)
	require.Len(t, facts, 1)
	assert.Equal(t, "deploy", facts[0].Tags)
}

func TestPruneRemovesOldLowImportance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Write(ctx, WriteRequest{
		Kind:       types.MemoryEpisodic,
		Text:       "stale low-value note",
		Importance: 0.1,
		Consent:    true,
	})
	require.NoError(t, err)

	// Backdate the item past the prune horizon.
	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, store.db.Model(&MemoryItem{}).Where("id = ?", id).
		Update("created_at", old).Error)

	removed, err := store.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats := store.Stats(ctx)
	assert.Equal(t, int64(1), stats["tombstoned"])
}

func TestEpisodicTailAndProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordEpisode(ctx, "u1", "s1", "q1", "a1", ""))
	require.NoError(t, store.RecordEpisode(ctx, "u1", "s1", "q2", "a2", ""))

	tail, err := store.EpisodicTail(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "q1", tail[0].Query)
	assert.Equal(t, "q2", tail[1].Query)

	require.NoError(t, store.SetUserName(ctx, "u1", "Alice"))
	assert.Equal(t, "Alice", store.UserName(ctx, "u1"))
	assert.Empty(t, store.UserName(ctx, "u2"))
}

func TestChunkerSplitsLongText(t *testing.T) {
	chunker := NewChunker(20)
	long := strings.Repeat("word ", 200)
	chunks := chunker.Split(long)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunker.CountTokens(chunk), 20)
	}

	assert.Len(t, chunker.Split("short text"), 1)
	assert.Empty(t, chunker.Split("  "))
}
