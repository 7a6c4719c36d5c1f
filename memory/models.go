// Package memory implements the persistent memory store: content-typed
// records with a chunked vector index, PII redaction, scoring,
// per-user working memory, consolidation, pruning, tombstones and an
// audit log.
package memory

import "time"

// MemoryItem is one stored record.
type MemoryItem struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Kind         string    `gorm:"size:20;not null;index" json:"kind"`
	RawText      string    `gorm:"type:text;not null" json:"raw_text"`
	Summary      string    `gorm:"type:text" json:"summary"`
	Tags         string    `gorm:"type:text" json:"tags"` // comma-separated
	Importance   float64   `gorm:"default:0.5" json:"importance"`
	Consent      bool      `gorm:"not null" json:"consent"`
	PrivacyLevel string    `gorm:"size:20;default:low;index" json:"privacy_level"`
	Tombstoned   bool      `gorm:"default:false;index" json:"tombstoned"`
	CreatedAt    time.Time `json:"created_at"`
}

func (MemoryItem) TableName() string { return "memory_items" }

// Chunk is one PII-redacted, embedded slice of a memory item. The
// embedding is stored as a little-endian float32 blob.
type Chunk struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemoryID  string    `gorm:"size:64;not null;index" json:"memory_id"`
	Position  int       `gorm:"not null" json:"position"`
	ChunkText string    `gorm:"type:text;not null" json:"chunk_text"`
	Embedding []byte    `gorm:"type:blob" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (Chunk) TableName() string { return "embeddings" }

// EpisodicEvent mirrors the append-only episodic stream in SQLite; a
// JSONL file under the memory path shadows it for streaming readers.
type EpisodicEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	SessionID string    `gorm:"size:64;index" json:"session_id"`
	Query     string    `gorm:"type:text" json:"query"`
	Response  string    `gorm:"type:text" json:"response"`
	Reflection string   `gorm:"type:text" json:"reflection"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (EpisodicEvent) TableName() string { return "episodic_events" }

// SemanticFact is a consolidated fact distilled from episodic items.
type SemanticFact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemoryID  string    `gorm:"size:64;index" json:"memory_id"`
	Fact      string    `gorm:"type:text;not null" json:"fact"`
	Tags      string    `gorm:"type:text" json:"tags"`
	SourceIDs string    `gorm:"type:text" json:"source_ids"` // comma-separated memory ids
	CreatedAt time.Time `json:"created_at"`
}

func (SemanticFact) TableName() string { return "semantic_facts" }

// ProceduralItem is a registered procedure hint surfaced to the
// context preprocessor.
type ProceduralItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null;uniqueIndex" json:"name"`
	Path      string    `gorm:"size:500" json:"path"`
	Tags      string    `gorm:"type:text" json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProceduralItem) TableName() string { return "procedural_items" }

// WorkingMemoryEntry is one slot of the persistent per-user ring.
type WorkingMemoryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (WorkingMemoryEntry) TableName() string { return "working_memory" }

// AuditEntry records memory operations for observability.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Action    string    `gorm:"size:40;not null;index" json:"action"`
	MemoryID  string    `gorm:"size:64;index" json:"memory_id"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditEntry) TableName() string { return "audit_log" }

// UserProfile stores lightweight per-user facts such as the captured
// name.
type UserProfile struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Name      string    `gorm:"size:200" json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }
