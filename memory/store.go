package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/cortexflow/llm/embedding"
	"github.com/BaSui01/cortexflow/types"
)

// Config bounds the store.
type Config struct {
	Path                  string
	MaxEntries            int
	TopK                  int
	ChunkTokens           int
	NoveltyFloor          float64
	TombstoneRebuildRatio float64
	ConsolidationWindow   time.Duration
	ConsolidationMinBatch int
	PruneMaxAge           time.Duration
	PruneMaxImportance    float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:                  "memory",
		MaxEntries:            1000,
		TopK:                  5,
		ChunkTokens:           256,
		NoveltyFloor:          0.05,
		TombstoneRebuildRatio: 0.3,
		ConsolidationWindow:   24 * time.Hour,
		ConsolidationMinBatch: 3,
		PruneMaxAge:           30 * 24 * time.Hour,
		PruneMaxImportance:    0.3,
	}
}

// WriteRequest describes one memory write.
type WriteRequest struct {
	Kind         types.MemoryKind
	Text         string
	Tags         []string
	Importance   float64
	Consent      bool
	PrivacyLevel types.PrivacyLevel
}

// Store is the persistent memory subsystem: SQLite via gorm, chunk
// embeddings in an in-process cosine index, and the working-memory
// ring. Writes are serialized; reads are safe for concurrent use.
type Store struct {
	config   Config
	db       *gorm.DB
	index    *vectorIndex
	chunker  *Chunker
	embedder embedding.Provider
	logger   *zap.Logger

	writeMu sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore opens (or creates) the store under config.Path.
func NewStore(config Config, embedder embedding.Provider, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedder == nil {
		embedder = embedding.NewHashProvider(types.EmbeddingDim)
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, types.NewError(types.ErrMemory, "create memory path").WithCause(err)
	}

	dbPath := filepath.Join(config.Path, "cortexflow.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrMemory, "open sqlite").WithCause(err)
	}

	if err := db.AutoMigrate(
		&MemoryItem{}, &Chunk{}, &EpisodicEvent{}, &SemanticFact{},
		&ProceduralItem{}, &WorkingMemoryEntry{}, &AuditEntry{}, &UserProfile{},
	); err != nil {
		return nil, types.NewError(types.ErrMemory, "migrate schema").WithCause(err)
	}

	s := &Store{
		config:   config,
		db:       db,
		index:    newVectorIndex(),
		chunker:  NewChunker(config.ChunkTokens),
		embedder: embedder,
		logger:   logger.With(zap.String("component", "memory_store")),
	}
	if _, err := s.RebuildIndex(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Write stores a record: PII-redacted chunks are embedded and indexed.
// Writes without consent are rejected.
func (s *Store) Write(ctx context.Context, req WriteRequest) (string, error) {
	if !req.Consent {
		return "", types.NewError(types.ErrMemory, "write rejected: consent=false")
	}
	if !types.ValidMemoryKind(req.Kind) {
		return "", types.NewError(types.ErrInput, fmt.Sprintf("invalid memory kind %q", req.Kind))
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", types.NewError(types.ErrInput, "empty memory text")
	}
	if req.PrivacyLevel == "" {
		req.PrivacyLevel = types.PrivacyLow
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := "mem_" + uuid.NewString()
	item := MemoryItem{
		ID:           id,
		Kind:         string(req.Kind),
		RawText:      req.Text,
		Summary:      truncateText(RedactPII(req.Text), 200),
		Tags:         strings.Join(req.Tags, ","),
		Importance:   clamp01(req.Importance),
		Consent:      req.Consent,
		PrivacyLevel: string(req.PrivacyLevel),
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return "", types.NewError(types.ErrMemory, "insert memory item").WithCause(err)
	}

	redacted := RedactPII(req.Text)
	for position, chunkText := range s.chunker.Split(redacted) {
		vec, err := s.embedder.Embed(ctx, chunkText)
		if err != nil {
			s.logger.Warn("chunk embedding failed", zap.Error(err))
			continue
		}
		chunk := Chunk{
			MemoryID:  id,
			Position:  position,
			ChunkText: chunkText,
			Embedding: encodeVector(vec),
			CreatedAt: time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&chunk).Error; err != nil {
			return "", types.NewError(types.ErrMemory, "insert chunk").WithCause(err)
		}
		s.index.add(chunk.ID, id, vec)
	}

	s.audit(ctx, "write", id, string(req.Kind))
	s.logger.Debug("memory written",
		zap.String("id", id), zap.String("kind", string(req.Kind)),
		zap.Float64("importance", item.Importance))
	return id, nil
}

// Retrieve returns the top-k chunks for a query, scored as
// 0.6·(1/(1+distance)) + 0.3·importance + 0.1·recency with
// recency = exp(−age_days/30). Items without consent, tombstoned items
// and items at high or sensitive privacy are never returned.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]types.RetrievedChunk, error) {
	if k <= 0 {
		k = s.config.TopK
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.misses.Add(1)
		return nil, types.NewError(types.ErrMemory, "embed query").WithCause(err)
	}

	// Over-fetch so privacy filtering still leaves k results.
	hits := s.index.search(queryVec, k*4)
	results := make([]types.RetrievedChunk, 0, k)
	now := time.Now()

	for _, hit := range hits {
		var item MemoryItem
		if err := s.db.WithContext(ctx).First(&item, "id = ?", hit.memoryID).Error; err != nil {
			continue
		}
		if !item.Consent || item.Tombstoned || !types.PrivacyLevel(item.PrivacyLevel).Retrievable() {
			continue
		}
		var chunk Chunk
		if err := s.db.WithContext(ctx).First(&chunk, "id = ?", hit.chunkID).Error; err != nil {
			continue
		}

		ageDays := now.Sub(item.CreatedAt).Hours() / 24.0
		recency := math.Exp(-ageDays / 30.0)
		score := 0.6*(1.0/(1.0+hit.distance)) + 0.3*item.Importance + 0.1*recency

		results = append(results, types.RetrievedChunk{
			MemoryID:   item.ID,
			ChunkText:  chunk.ChunkText,
			Distance:   hit.distance,
			Score:      score,
			Importance: item.Importance,
			Kind:       types.MemoryKind(item.Kind),
			Timestamp:  item.CreatedAt,
		})
		if len(results) == k {
			break
		}
	}

	if len(results) == 0 {
		s.misses.Add(1)
	} else {
		s.hits.Add(1)
	}
	return results, nil
}

// EvaluateWrite applies the write gate:
// importance·0.5 + novelty·0.2 + utility·0.2 + emotion·0.1 ≥ 0.5.
func EvaluateWrite(importance, novelty, utility, emotionWeight float64) bool {
	return importance*0.5+novelty*0.2+utility*0.2+emotionWeight*0.1 >= 0.5
}

// Novelty computes 1 − max cosine similarity to existing chunks.
func (s *Store) Novelty(ctx context.Context, text string) float64 {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 1.0
	}
	return 1.0 - s.index.maxSimilarity(vec)
}

// ShouldWrite combines the write gate with the novelty floor: near
// duplicates are rejected unless force (allow_memory_write) is set.
func (s *Store) ShouldWrite(ctx context.Context, text string, importance, utility, emotionWeight float64, force bool) bool {
	novelty := s.Novelty(ctx, text)
	if novelty < s.config.NoveltyFloor && !force {
		return false
	}
	return EvaluateWrite(importance, novelty, utility, emotionWeight)
}

// Delete tombstones an item and drops it from the index. When the
// tombstone share exceeds the configured ratio an index rebuild runs.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res := s.db.WithContext(ctx).Model(&MemoryItem{}).Where("id = ?", id).Update("tombstoned", true)
	if res.Error != nil {
		return types.NewError(types.ErrMemory, "tombstone item").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrInput, fmt.Sprintf("memory %s not found", id))
	}
	s.index.removeMemory(id)
	s.audit(ctx, "delete", id, "tombstoned")

	if s.tombstoneRatio(ctx) > s.config.TombstoneRebuildRatio {
		if _, err := s.rebuildIndexLocked(ctx); err != nil {
			s.logger.Warn("automatic index rebuild failed", zap.Error(err))
		} else {
			s.logger.Info("automatic index rebuild after tombstone threshold")
		}
	}
	return nil
}

func (s *Store) tombstoneRatio(ctx context.Context) float64 {
	var total, tombstoned int64
	s.db.WithContext(ctx).Model(&MemoryItem{}).Count(&total)
	if total == 0 {
		return 0.0
	}
	s.db.WithContext(ctx).Model(&MemoryItem{}).Where("tombstoned = ?", true).Count(&tombstoned)
	return float64(tombstoned) / float64(total)
}

// RebuildIndex reloads every live chunk vector from SQLite.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.rebuildIndexLocked(ctx)
}

func (s *Store) rebuildIndexLocked(ctx context.Context) (int, error) {
	var liveIDs []string
	if err := s.db.WithContext(ctx).Model(&MemoryItem{}).
		Where("tombstoned = ?", false).Pluck("id", &liveIDs).Error; err != nil {
		return 0, types.NewError(types.ErrMemory, "list live items").WithCause(err)
	}
	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}

	var chunks []Chunk
	if err := s.db.WithContext(ctx).Find(&chunks).Error; err != nil {
		return 0, types.NewError(types.ErrMemory, "load chunks").WithCause(err)
	}

	entries := make([]indexEntry, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := live[chunk.MemoryID]; !ok {
			continue
		}
		entries = append(entries, indexEntry{
			chunkID:  chunk.ID,
			memoryID: chunk.MemoryID,
			vector:   decodeVector(chunk.Embedding),
		})
	}
	s.index.reset(entries)
	s.audit(ctx, "rebuild_index", "", fmt.Sprintf("%d vectors", len(entries)))
	return len(entries), nil
}

// ---------- working memory ring ----------

// WMAdd appends entries to a user's ring, evicting the oldest past cap.
func (s *Store) WMAdd(ctx context.Context, userID string, entries []string, cap int) error {
	if cap <= 0 {
		cap = 7
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, content := range entries {
		row := WorkingMemoryEntry{UserID: userID, Content: content, CreatedAt: time.Now()}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return types.NewError(types.ErrMemory, "append working memory").WithCause(err)
		}
	}

	// Trim to the cap newest rows.
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&WorkingMemoryEntry{}).
		Where("user_id = ?", userID).
		Order("id desc").Offset(cap).Pluck("id", &ids).Error; err != nil {
		return types.NewError(types.ErrMemory, "trim working memory").WithCause(err)
	}
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Delete(&WorkingMemoryEntry{}, ids).Error; err != nil {
			return types.NewError(types.ErrMemory, "evict working memory").WithCause(err)
		}
	}
	return nil
}

// WMGet returns the newest cap entries, oldest first.
func (s *Store) WMGet(ctx context.Context, userID string, cap int) ([]string, error) {
	if cap <= 0 {
		cap = 7
	}
	var rows []WorkingMemoryEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").Limit(cap).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrMemory, "read working memory").WithCause(err)
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.Content
	}
	return out, nil
}

// WMClear removes a user's ring.
func (s *Store) WMClear(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).Delete(&WorkingMemoryEntry{}).Error
}

// ---------- episodic stream ----------

// RecordEpisode appends to the episodic table and the JSONL shadow log.
func (s *Store) RecordEpisode(ctx context.Context, userID, sessionID, query, response, reflection string) error {
	event := EpisodicEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Query:      query,
		Response:   response,
		Reflection: reflection,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return types.NewError(types.ErrMemory, "record episode").WithCause(err)
	}

	// Shadow JSONL for append-only streaming readers; failures here are
	// non-fatal.
	line, _ := json.Marshal(map[string]any{
		"user_id": userID, "session_id": sessionID,
		"query": query, "response": response, "reflection": reflection,
		"timestamp": event.CreatedAt.UTC().Format(time.RFC3339),
	})
	logPath := filepath.Join(s.config.Path, "episodic_log.jsonl")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = f.Write(append(line, '\n'))
		_ = f.Close()
	}
	return nil
}

// EpisodicTail returns the newest limit events, oldest first.
func (s *Store) EpisodicTail(ctx context.Context, limit int) ([]EpisodicEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []EpisodicEvent
	if err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrMemory, "read episodic tail").WithCause(err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// ---------- consolidation & pruning ----------

// Consolidate groups recent episodic items by leading tag and distills
// each group of at least ConsolidationMinBatch into one semantic fact.
// The summarize hook produces the fact text; when nil, a joined summary
// is used. Returns the number of facts created.
func (s *Store) Consolidate(ctx context.Context, summarize func([]string) string) (int, error) {
	cutoff := time.Now().Add(-s.config.ConsolidationWindow)

	var items []MemoryItem
	if err := s.db.WithContext(ctx).
		Where("kind = ? AND tombstoned = ? AND created_at > ?", string(types.MemoryEpisodic), false, cutoff).
		Find(&items).Error; err != nil {
		return 0, types.NewError(types.ErrMemory, "load episodic items").WithCause(err)
	}

	groups := map[string][]MemoryItem{}
	for _, item := range items {
		tag := "general"
		if parts := strings.Split(item.Tags, ","); len(parts) > 0 && parts[0] != "" {
			tag = parts[0]
		}
		groups[tag] = append(groups[tag], item)
	}

	created := 0
	for tag, group := range groups {
		if len(group) < s.config.ConsolidationMinBatch {
			continue
		}
		texts := make([]string, len(group))
		ids := make([]string, len(group))
		importance := 0.0
		for i, item := range group {
			texts[i] = item.RawText
			ids[i] = item.ID
			importance += item.Importance
		}
		importance /= float64(len(group))

		fact := joinSummary(texts)
		if summarize != nil {
			if summarized := summarize(texts); strings.TrimSpace(summarized) != "" {
				fact = summarized
			}
		}

		memID, err := s.Write(ctx, WriteRequest{
			Kind:       types.MemorySemantic,
			Text:       fact,
			Tags:       []string{tag, "consolidated"},
			Importance: importance,
			Consent:    true,
		})
		if err != nil {
			s.logger.Warn("consolidation write failed", zap.Error(err))
			continue
		}
		row := SemanticFact{
			MemoryID:  memID,
			Fact:      truncateText(fact, 500),
			Tags:      tag,
			SourceIDs: strings.Join(ids, ","),
			CreatedAt: time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			s.logger.Warn("semantic fact insert failed", zap.Error(err))
			continue
		}
		created++
	}

	s.audit(ctx, "consolidate", "", fmt.Sprintf("%d facts", created))
	return created, nil
}

// Prune tombstones old, low-importance episodic items. Returns the
// count removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.config.PruneMaxAge)

	var ids []string
	if err := s.db.WithContext(ctx).Model(&MemoryItem{}).
		Where("kind = ? AND tombstoned = ? AND created_at < ? AND importance < ?",
			string(types.MemoryEpisodic), false, cutoff, s.config.PruneMaxImportance).
		Pluck("id", &ids).Error; err != nil {
		return 0, types.NewError(types.ErrMemory, "select prune candidates").WithCause(err)
	}

	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			s.logger.Warn("prune delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	s.audit(ctx, "prune", "", fmt.Sprintf("%d items", len(ids)))
	return len(ids), nil
}

// ---------- procedural & profile ----------

// RegisterProcedural stores a named procedure hint.
func (s *Store) RegisterProcedural(ctx context.Context, name, path string, tags []string) error {
	row := ProceduralItem{Name: name, Path: path, Tags: strings.Join(tags, ","), CreatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Where(ProceduralItem{Name: name}).
		Assign(row).FirstOrCreate(&ProceduralItem{}).Error
}

// ListProcedural returns up to limit procedure hints.
func (s *Store) ListProcedural(ctx context.Context, limit int) ([]ProceduralItem, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []ProceduralItem
	err := s.db.WithContext(ctx).Limit(limit).Find(&rows).Error
	return rows, err
}

// SetUserName captures the user's name into the profile.
func (s *Store) SetUserName(ctx context.Context, userID, name string) error {
	row := UserProfile{UserID: userID, Name: name, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&row).Error
}

// UserName returns the captured name, empty when unknown.
func (s *Store) UserName(ctx context.Context, userID string) string {
	var row UserProfile
	if err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error; err != nil {
		return ""
	}
	return row.Name
}

// ---------- observability ----------

func (s *Store) audit(ctx context.Context, action, memoryID, detail string) {
	entry := AuditEntry{Action: action, MemoryID: memoryID, Detail: detail, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("audit write failed", zap.Error(err))
	}
}

// Stats reports store counters.
func (s *Store) Stats(ctx context.Context) map[string]any {
	var total, tombstoned, chunks, episodes int64
	s.db.WithContext(ctx).Model(&MemoryItem{}).Count(&total)
	s.db.WithContext(ctx).Model(&MemoryItem{}).Where("tombstoned = ?", true).Count(&tombstoned)
	s.db.WithContext(ctx).Model(&Chunk{}).Count(&chunks)
	s.db.WithContext(ctx).Model(&EpisodicEvent{}).Count(&episodes)

	ratio := 0.0
	if total > 0 {
		ratio = float64(tombstoned) / float64(total)
	}
	return map[string]any{
		"items":           total,
		"tombstoned":      tombstoned,
		"tombstone_ratio": ratio,
		"chunks":          chunks,
		"episodes":        episodes,
		"index_vectors":   s.index.size(),
		"hits":            s.hits.Load(),
		"misses":          s.misses.Load(),
	}
}

// Export writes every non-tombstoned item as a JSON array.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	var items []MemoryItem
	if err := s.db.WithContext(ctx).Where("tombstoned = ?", false).Find(&items).Error; err != nil {
		return types.NewError(types.ErrMemory, "export items").WithCause(err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func joinSummary(texts []string) string {
	joined := strings.Join(texts, " ")
	return truncateText(joined, 500)
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
