// Package critique implements the per-agent self-critique loop: a
// structured JSON critic with an unstructured fallback, specialized
// criteria per agent type, a single bounded rewrite attempt and
// escalation when the rewrite still fails.
package critique

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/types"
)

// Issue severity keyword classes for confidence impact.
var (
	highSeverityKeywords   = []string{"error", "contradiction", "inconsistent", "wrong", "incorrect"}
	mediumSeverityKeywords = []string{"unclear", "vague", "missing", "incomplete"}
	lowSeverityKeywords    = []string{"minor", "suggestion", "improvement"}
)

// specializedCriteria holds the focus areas and keyword lists each
// agent type is judged against on top of the generic critique.
type specializedCriteria struct {
	focus    []string
	keywords []string
}

var criteria = map[types.AgentType]specializedCriteria{
	types.AgentLogical: {
		focus:    []string{"logical consistency", "evidence quality", "reasoning validity"},
		keywords: []string{"logical", "evidence", "proof", "reasoning", "valid", "sound"},
	},
	types.AgentEmotional: {
		focus:    []string{"empathy", "emotional intelligence", "human impact"},
		keywords: []string{"emotion", "feel", "empathy", "human", "personal"},
	},
	types.AgentCreative: {
		focus:    []string{"originality", "innovation", "imagination"},
		keywords: []string{"creative", "novel", "original", "innovative", "imaginative"},
	},
	types.AgentStrategic: {
		focus:    []string{"long-term thinking", "resource optimization", "risk assessment"},
		keywords: []string{"strategy", "plan", "long-term", "resource", "risk"},
	},
	types.AgentVerifier: {
		focus:    []string{"factual accuracy", "source verification", "evidence quality"},
		keywords: []string{"fact", "verify", "source", "evidence", "accurate"},
	},
	types.AgentArbiter: {
		focus:    []string{"fairness", "balance", "conflict resolution"},
		keywords: []string{"fair", "balanced", "neutral", "resolve", "compromise"},
	},
}

var genericCriteria = specializedCriteria{
	focus:    []string{"general quality", "clarity", "accuracy"},
	keywords: []string{"quality", "clear", "accurate"},
}

// Critic critiques and rewrites outputs of one agent type.
type Critic struct {
	agentType types.AgentType
	criteria  specializedCriteria
	gateway   *llm.Gateway
	logger    *zap.Logger
}

// NewCritic creates a critic for the given agent type.
func NewCritic(agentType types.AgentType, gateway *llm.Gateway, logger *zap.Logger) *Critic {
	c, ok := criteria[agentType]
	if !ok {
		c = genericCriteria
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Critic{
		agentType: agentType,
		criteria:  c,
		gateway:   gateway,
		logger:    logger.With(zap.String("component", "critic"), zap.String("agent", string(agentType))),
	}
}

// Critique evaluates one output. The structured JSON critic runs first;
// on parse failure the legacy unstructured critic is used. Specialized
// criteria add issues on top. On total critic failure the output is
// treated as passed with zero confidence impact.
func (c *Critic) Critique(ctx context.Context, out *types.AgentOutput) types.AgentCritique {
	issues, edits, err := c.runStructuredCritic(ctx, out)
	if err != nil {
		c.logger.Debug("structured critic failed, using legacy parser", zap.Error(err))
		issues, edits, err = c.runLegacyCritic(ctx, out)
		if err != nil {
			c.logger.Warn("critic unavailable, treating as passed", zap.Error(err))
			return types.AgentCritique{
				Agent:     c.agentType,
				Passed:    true,
				CreatedAt: time.Now(),
			}
		}
	}

	issues = append(issues, c.analyzeSpecializedCriteria(out)...)

	return types.AgentCritique{
		Agent:            c.agentType,
		Passed:           passedByIssues(issues),
		Issues:           issues,
		SuggestedEdits:   edits,
		ConfidenceImpact: confidenceImpact(issues, edits),
		CreatedAt:        time.Now(),
	}
}

// Rewrite produces an improved output addressing the critique. The new
// output gains 0.1 confidence (capped at 1.0) and an incremented
// iteration counter.
func (c *Critic) Rewrite(ctx context.Context, out *types.AgentOutput, crit types.AgentCritique) (*types.AgentOutput, error) {
	prompt := c.buildRewritePrompt(out, crit)
	response, err := c.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	confidence := out.Confidence + 0.1
	if confidence > 1.0 {
		confidence = 1.0
	}

	rewritten := &types.AgentOutput{
		Agent:               out.Agent,
		TextDraft:           response,
		ReasoningTrace:      extractTrace(response),
		Confidence:          confidence,
		ConfidenceRationale: out.ConfidenceRationale,
		Citations:           out.Citations,
		MemoryHits:          out.MemoryHits,
		Iteration:           out.Iteration + 1,
		CreatedAt:           time.Now(),
	}
	rewritten.Sanitize()
	return rewritten, nil
}

// passedByIssues implements the default pass criterion: no issues, or
// every issue marked minor.
func passedByIssues(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(strings.ToLower(issue), "minor") {
			return false
		}
	}
	return true
}

type structuredVerdict struct {
	Pass           bool     `json:"pass"`
	Issues         []string `json:"issues"`
	SuggestedEdits []string `json:"suggested_edits"`
}

func (c *Critic) runStructuredCritic(ctx context.Context, out *types.AgentOutput) ([]string, []string, error) {
	draftJSON, _ := json.Marshal(out.TextDraft)
	traceJSON, _ := json.Marshal(out.ReasoningTrace)
	prompt := fmt.Sprintf(`You are an automated critic. Input: AGENT_OUTPUT (JSON) and CONTEXT.
Return JSON strictly in this schema:
{ "pass": true|false, "issues": ["short reason"], "suggested_edits": ["exact sentences to remove/replace or rewrite instructions"] }
Focus on: unsupported factual claims, inconsistency between reasoning trace and conclusion, overconfident language, format compliance.

AGENT_OUTPUT:
{
  "agent": "%s",
  "textDraft": %s,
  "reasoningTrace": %s,
  "confidence": %.2f
}
`, c.agentType, draftJSON, traceJSON, out.Confidence)

	response, err := c.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	payload := extractJSONObject(response)
	if payload == "" {
		return nil, nil, types.NewError(types.ErrCritique, "no JSON object in critic response")
	}
	var verdict structuredVerdict
	if err := json.Unmarshal([]byte(payload), &verdict); err != nil {
		return nil, nil, types.NewError(types.ErrCritique, "critic JSON parse failure").WithCause(err)
	}
	return verdict.Issues, verdict.SuggestedEdits, nil
}

func (c *Critic) runLegacyCritic(ctx context.Context, out *types.AgentOutput) ([]string, []string, error) {
	prompt := c.buildLegacyPrompt(out)
	response, err := c.gateway.Complete(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}
	issues, edits := parseLegacyResponse(response)
	return issues, edits, nil
}

func (c *Critic) buildLegacyPrompt(out *types.AgentOutput) string {
	var traceLines strings.Builder
	for _, step := range out.ReasoningTrace {
		fmt.Fprintf(&traceLines, "- %s\n", step)
	}
	return fmt.Sprintf(`You are a quality control expert for %s reasoning. Your job is to critique the following output for quality issues.

Critique the output for:
1. Contradictions or inconsistencies
2. Vague or unclear statements
3. Missing evidence or reasoning
4. Logical fallacies or errors
5. Inappropriate tone or style
6. Missing important considerations
7. Overconfidence or underconfidence

If no significant issues are found, respond with "No significant issues found."

Output format:
ISSUES:
- [Issue 1]: [Description] - [Suggestion]

SUGGESTED_EDITS:
- [Edit 1]

AGENT OUTPUT TO CRITIQUE:
Agent: %s
Response: %s

Reasoning Trace:
%s
Citations: %d
Memory Hits: %d

Please provide your critique:
`, c.agentType, c.agentType, out.TextDraft, traceLines.String(), len(out.Citations), len(out.MemoryHits))
}

func (c *Critic) buildRewritePrompt(out *types.AgentOutput, crit types.AgentCritique) string {
	var issueLines, editLines strings.Builder
	for _, issue := range crit.Issues {
		fmt.Fprintf(&issueLines, "- %s\n", issue)
	}
	for _, edit := range crit.SuggestedEdits {
		fmt.Fprintf(&editLines, "- %s\n", edit)
	}
	return fmt.Sprintf(`You are a %s reasoning expert. Rewrite the following output to address the critique issues while maintaining the core message and improving quality.

Focus on:
- Addressing all identified issues
- Maintaining the original intent
- Improving clarity and precision
- Strengthening evidence and reasoning
- Ensuring appropriate tone and style

ORIGINAL OUTPUT:
%s

CRITIQUE ISSUES:
%s
SUGGESTED EDITS:
%s
Please provide the improved version:
`, c.agentType, out.TextDraft, issueLines.String(), editLines.String())
}

// parseLegacyResponse extracts ISSUES / SUGGESTED_EDITS sections; when
// absent, sentences containing issue keywords are collected.
func parseLegacyResponse(response string) ([]string, []string) {
	var issues, edits []string
	section := ""
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ISSUES:"):
			section = "issues"
		case strings.HasPrefix(upper, "SUGGESTED_EDITS:"):
			section = "edits"
		case strings.HasPrefix(line, "- "):
			content := strings.TrimSpace(line[2:])
			if content == "" {
				continue
			}
			if section == "issues" {
				issues = append(issues, content)
			} else if section == "edits" {
				edits = append(edits, content)
			}
		}
	}

	if len(issues) == 0 && len(edits) == 0 && !strings.Contains(strings.ToLower(response), "no significant issues") {
		for _, sentence := range strings.Split(response, ".") {
			lower := strings.ToLower(sentence)
			for _, kw := range []string{"issue", "problem", "concern", "error"} {
				if strings.Contains(lower, kw) {
					issues = append(issues, strings.TrimSpace(sentence))
					break
				}
			}
		}
	}
	return issues, edits
}

// analyzeSpecializedCriteria adds one issue when the draft uses fewer
// than two relevant keywords. A focus area the draft does not mention
// adds an issue only when none of the keywords appear; with at least one
// keyword present, missing focus areas add no issues.
func (c *Critic) analyzeSpecializedCriteria(out *types.AgentOutput) []string {
	text := strings.ToLower(out.TextDraft)

	keywordCount := 0
	for _, kw := range c.criteria.keywords {
		if strings.Contains(text, kw) {
			keywordCount++
		}
	}

	var issues []string
	for _, focus := range c.criteria.focus {
		if !strings.Contains(text, focus) && keywordCount == 0 {
			issues = append(issues, fmt.Sprintf("Missing %s considerations", focus))
		}
	}
	if keywordCount < 2 {
		issues = append(issues, fmt.Sprintf("Insufficient %s perspective (only %d relevant terms)", c.agentType, keywordCount))
	}
	return issues
}

// confidenceImpact scores issues by severity class:
// −0.3 per high, −0.15 per medium, −0.05 per low, +0.05 per suggested
// edit, clamped to [−0.5, 0.5].
func confidenceImpact(issues, edits []string) float64 {
	high, medium, low := 0, 0, 0
	for _, issue := range issues {
		lower := strings.ToLower(issue)
		if containsAny(lower, highSeverityKeywords) {
			high++
		}
		if containsAny(lower, mediumSeverityKeywords) {
			medium++
		}
		if containsAny(lower, lowSeverityKeywords) {
			low++
		}
	}

	impact := -(float64(high)*0.3 + float64(medium)*0.15 + float64(low)*0.05)
	impact += float64(len(edits)) * 0.05

	if impact < -0.5 {
		return -0.5
	}
	if impact > 0.5 {
		return 0.5
	}
	return impact
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// extractTrace mirrors the reasoner's trace extraction for rewrites.
func extractTrace(response string) []string {
	var steps []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") ||
			strings.HasPrefix(line, "1.") || strings.HasPrefix(line, "2.") ||
			strings.HasPrefix(line, "3.") || strings.HasPrefix(line, "4.") ||
			strings.HasPrefix(line, "5.") ||
			strings.Contains(lower, "step") || strings.Contains(lower, "reasoning") {
			steps = append(steps, line)
		}
	}
	if len(steps) == 0 {
		for _, s := range strings.Split(response, ".") {
			s = strings.TrimSpace(s)
			if s != "" {
				steps = append(steps, s+".")
			}
			if len(steps) == 5 {
				break
			}
		}
	}
	if len(steps) > 5 {
		steps = steps[:5]
	}
	return steps
}

// extractJSONObject returns the substring between the first '{' and the
// last '}', the tolerant extraction used for LLM JSON replies.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
