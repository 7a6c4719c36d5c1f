package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/cortexflow/types"
)

// MockEmbedder 返回可配置的固定向量，默认退化为逐字节哈希
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

// NewMockEmbedder 创建模拟嵌入器
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{vectors: map[string][]float32{}}
}

// WithVector 为指定文本固定向量
func (m *MockEmbedder) WithVector(text string, vec []float32) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
	return m
}

// WithError 设置返回错误
func (m *MockEmbedder) WithError(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockEmbedder) Name() string    { return "mock-embedder" }
func (m *MockEmbedder) Dimensions() int { return types.EmbeddingDim }

// Embed 实现 embedding.Provider
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}

	// 简单确定性伪向量：按字节折叠
	vec := make([]float32, types.EmbeddingDim)
	for i, b := range []byte(text) {
		vec[i%types.EmbeddingDim] += float32(b) / 255.0
	}
	return vec, nil
}

// Calls 返回调用次数
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
