package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, cosineSimilarity(a, b), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity(a, c), 1e-6)
	assert.Equal(t, 0.0, cosineSimilarity(a, []float32{0, 0, 0}))
}

func TestVectorIndexSearchOrder(t *testing.T) {
	idx := newVectorIndex()
	idx.add(1, "m1", []float32{1, 0, 0})
	idx.add(2, "m2", []float32{0.9, 0.1, 0})
	idx.add(3, "m3", []float32{0, 1, 0})

	hits := idx.search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "m1", hits[0].memoryID)
	assert.Equal(t, "m2", hits[1].memoryID)
	assert.Less(t, hits[0].distance, hits[1].distance)
}

func TestVectorIndexRemoveMemory(t *testing.T) {
	idx := newVectorIndex()
	idx.add(1, "m1", []float32{1, 0})
	idx.add(2, "m1", []float32{0, 1})
	idx.add(3, "m2", []float32{1, 1})

	idx.removeMemory("m1")
	assert.Equal(t, 1, idx.size())
}

func TestEncodeDecodeVector(t *testing.T) {
	original := []float32{0.25, -1.5, 3.75, 0}
	decoded := decodeVector(encodeVector(original))
	assert.Equal(t, original, decoded)
}

func TestMaxSimilarityEmptyIndex(t *testing.T) {
	idx := newVectorIndex()
	assert.Equal(t, 0.0, idx.maxSimilarity([]float32{1, 0}))
}
