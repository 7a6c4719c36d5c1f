// Package llm provides the language-model gateway: a unified provider
// abstraction plus timeout, retry and caching around single-shot
// completions.
package llm

import (
	"context"
	"time"
)

// CompletionRequest is a single-shot completion request.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Text             string    `json:"text"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// HealthStatus represents a provider health check result.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}

// Provider defines the unified LLM adapter interface.
type Provider interface {
	// Completion sends a synchronous completion request.
	Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// HealthCheck performs a lightweight health check.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string
}
