// =============================================================================
// 🎭 MockProvider - LLM Provider 模拟实现
// =============================================================================
// 用于测试的 LLM Provider 模拟，支持自定义响应和错误注入
//
// 使用方法:
//
//	provider := mocks.NewMockProvider().
//	    WithResponse("Hello, World!")
//
//	// 或按调用顺序返回不同响应
//	provider := mocks.NewMockProvider().
//	    WithResponses("first", "second", "third")
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/cortexflow/llm"
)

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.CompletionRequest
	Response *llm.CompletionResponse
	Error    error
}

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response   string
	responses  []string
	respondFn  func(prompt string) string
	err        error
	failAfter  int // 在第 N 次调用后失败（0 = 不失败）
	delay      time.Duration

	// 调用记录
	calls     []MockProviderCall
	callCount int
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithResponses 设置按调用顺序返回的响应序列（超出后重复最后一条）
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithResponseFunc 设置按 prompt 生成响应的函数
func (m *MockProvider) WithResponseFunc(fn func(prompt string) string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respondFn = fn
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 在第 n 次调用后开始失败
func (m *MockProvider) WithFailAfter(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
	return m
}

// WithDelay 设置模拟延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

func (m *MockProvider) Name() string { return "mock" }

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	delay := m.delay
	err := m.err
	failAfter := m.failAfter

	text := m.response
	if m.respondFn != nil {
		text = m.respondFn(req.Prompt)
	} else if len(m.responses) > 0 {
		idx := count - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		text = m.responses[idx]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	shouldFail := err != nil && (failAfter == 0 || count > failAfter)
	if shouldFail {
		m.record(req, nil, err)
		return nil, err
	}

	resp := &llm.CompletionResponse{
		Text:      text,
		Provider:  "mock",
		Model:     "mock",
		CreatedAt: time.Now(),
	}
	m.record(req, resp, nil)
	return resp, nil
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (m *MockProvider) record(req *llm.CompletionRequest, resp *llm.CompletionResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
