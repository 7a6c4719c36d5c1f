package memory

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
)

// indexEntry is one chunk vector in the in-process index.
type indexEntry struct {
	chunkID  uint
	memoryID string
	vector   []float32
}

// vectorIndex is a brute-force cosine index over chunk embeddings.
// Rebuilt from SQLite on startup, after deletes past the tombstone
// ratio and on demand.
type vectorIndex struct {
	mu      sync.RWMutex
	entries []indexEntry
}

type indexHit struct {
	chunkID  uint
	memoryID string
	distance float64 // 1 - cosine similarity
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{}
}

func (idx *vectorIndex) add(chunkID uint, memoryID string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = append(idx.entries, indexEntry{
		chunkID:  chunkID,
		memoryID: memoryID,
		vector:   append([]float32(nil), vector...),
	})
}

func (idx *vectorIndex) removeMemory(memoryID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.memoryID != memoryID {
			kept = append(kept, e)
		}
	}
	idx.entries = kept
}

func (idx *vectorIndex) reset(entries []indexEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
}

func (idx *vectorIndex) size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// search returns the k nearest entries by cosine distance, ascending.
func (idx *vectorIndex) search(query []float32, k int) []indexHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]indexHit, 0, len(idx.entries))
	for _, e := range idx.entries {
		hits = append(hits, indexHit{
			chunkID:  e.chunkID,
			memoryID: e.memoryID,
			distance: 1.0 - cosineSimilarity(query, e.vector),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// maxSimilarity returns the highest cosine similarity to any entry,
// zero on an empty index.
func (idx *vectorIndex) maxSimilarity(query []float32) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := 0.0
	for _, e := range idx.entries {
		if sim := cosineSimilarity(query, e.vector); sim > best {
			best = sim
		}
	}
	return best
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// encodeVector serializes a float32 vector to a little-endian blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes a little-endian blob to a float32 vector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
