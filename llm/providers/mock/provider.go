// Package mock implements an offline deterministic provider so the
// engine can run without any API key configured.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/cortexflow/llm"
)

// Provider produces canned but prompt-aware responses. Classifier
// prompts get strict JSON back, critic prompts get a passing verdict,
// everything else gets a short reasoned answer. Deterministic: the same
// prompt always yields the same text.
type Provider struct{}

// New 创建 mock Provider
func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "mock" }

// Completion 离线补全
func (p *Provider) Completion(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Text:      p.respond(req.Prompt),
		Provider:  "mock",
		Model:     "mock",
		CreatedAt: time.Now(),
	}, nil
}

func (p *Provider) respond(prompt string) string {
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "query classifier"):
		return `{"intent": "get_information", "query_type": "logical", "labels": ["logical"], "label_confidences": {"logical": 0.8}, "content": "offline classification", "metadata": {"source": "mock"}, "confidence": 0.8, "reasoning_depth": "shallow"}`
	case strings.Contains(lower, "automated critic"):
		return `{"pass": true, "issues": [], "suggested_edits": []}`
	case strings.Contains(lower, "arbitration expert"),
		strings.Contains(lower, "clarification expert"),
		strings.Contains(lower, "evidence generation expert"):
		return "Resolution: both perspectives hold under different assumptions; the synthesis reconciles them by scoping each claim to its valid context."
	case strings.Contains(lower, "synthesis"):
		return "Combined answer drawn from the gated perspectives above."
	default:
		subject := firstLine(prompt)
		return fmt.Sprintf(
			"1. The question concerns: %s\n2. Relevant evidence and reasoning were considered logically.\n3. A clear, sound conclusion follows from the available evidence.",
			subject)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i > 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// HealthCheck 永远健康
func (p *Provider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
