// Package reasoners implements the local reasoner suite: six typed
// perspectives that run in parallel over one context bundle and produce
// candidate answers with traces, confidence and evidence.
package reasoners

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/types"
)

const (
	defaultConfidenceThreshold = 0.3
	defaultMaxReasoningSteps   = 5
	maxCitations               = 5
	maxMemoryHits              = 5
)

var (
	uncertaintyWords = []string{"maybe", "perhaps", "might", "could", "unclear", "not sure", "possibly"}
	certaintyWords   = []string{"definitely", "certainly", "sure", "clearly", "obviously", "confident"}

	stepLineRE      = regexp.MustCompile(`^(\d+\.|[-*•])\s*`)
	bracketCiteRE   = regexp.MustCompile(`\[(\d+)\]`)
	parenCiteRE     = regexp.MustCompile(`\(([^)]{2,60})\)`)
	accordingToRE   = regexp.MustCompile(`(?i)according to ([^,.]+)`)
	asStatedRE      = regexp.MustCompile(`(?i)as stated in ([^,.]+)`)
	researchShowsRE = regexp.MustCompile(`(?i)research shows ([^,.]+)`)
)

// Reasoner is one cortical-column analogue: a role, a prompt template
// and the extraction/scoring machinery shared by every agent type.
type Reasoner struct {
	agentType           types.AgentType
	role                string
	promptTemplate      string
	confidenceThreshold float64
	maxReasoningSteps   int

	gateway *llm.Gateway
	logger  *zap.Logger
}

// New creates a reasoner for the given type. Unknown types are
// rejected.
func New(agentType types.AgentType, gateway *llm.Gateway, logger *zap.Logger) (*Reasoner, error) {
	spec, ok := specs[agentType]
	if !ok {
		return nil, types.NewError(types.ErrInput, fmt.Sprintf("unknown agent type %q", agentType))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{
		agentType:           agentType,
		role:                spec.role,
		promptTemplate:      spec.promptTemplate,
		confidenceThreshold: defaultConfidenceThreshold,
		maxReasoningSteps:   defaultMaxReasoningSteps,
		gateway:             gateway,
		logger:              logger.With(zap.String("component", "reasoner"), zap.String("agent", string(agentType))),
	}, nil
}

// Type returns the reasoner's agent type.
func (r *Reasoner) Type() types.AgentType { return r.agentType }

// Role returns the reasoner's role string.
func (r *Reasoner) Role() string { return r.role }

// Run executes one reasoning pass over the context.
func (r *Reasoner) Run(ctx context.Context, bundle *types.ContextBundle, mod neuromod.Modulation) (*types.AgentOutput, error) {
	prompt := r.buildPrompt(bundle, mod)

	response, err := r.gateway.CompleteWithTemperature(ctx, prompt, mod.Temperature)
	if err != nil {
		return nil, err
	}

	trace := r.extractReasoningTrace(response)
	confidence := r.calculateConfidence(response, trace, mod)

	out := &types.AgentOutput{
		Agent:               r.agentType,
		TextDraft:           response,
		ReasoningTrace:      trace,
		Confidence:          confidence,
		ConfidenceRationale: r.confidenceRationale(trace, mod),
		Citations:           extractCitations(response),
		MemoryHits:          extractMemoryHits(response, bundle),
		Iteration:           0,
		CreatedAt:           time.Now(),
	}
	out.Sanitize()
	return out, nil
}

func (r *Reasoner) buildPrompt(bundle *types.ContextBundle, mod neuromod.Modulation) string {
	return fmt.Sprintf(`%s

Role: %s
Query: %s

Context:
- Modality: %s
- Reasoning Depth: %s
- Labels: %s
- Memory Context: %s

Instructions:
- Provide a clear, focused response from your %s perspective
- Show your reasoning steps clearly
- Be confident but acknowledge uncertainty when appropriate
- Confidence level should be: %.2f
- Temperature for creativity: %.2f

Response:
`,
		r.promptTemplate,
		r.role,
		bundle.Percept.RawText,
		bundle.Percept.Modality,
		bundle.ReasoningDepth,
		strings.Join(bundle.Labels, ", "),
		formatMemoryContext(bundle.Memories),
		r.role,
		mod.Confidence,
		mod.Temperature,
	)
}

// extractReasoningTrace scans for numbered or bulleted lines; when none
// exist the response is split into sentences, capped at the step limit.
func (r *Reasoner) extractReasoningTrace(response string) []string {
	var steps []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if stepLineRE.MatchString(line) || strings.Contains(lower, "step") || strings.Contains(lower, "reasoning") {
			steps = append(steps, line)
		}
	}

	if len(steps) == 0 {
		for _, s := range strings.Split(response, ".") {
			s = strings.TrimSpace(s)
			if s != "" {
				steps = append(steps, s+".")
			}
			if len(steps) == r.maxReasoningSteps {
				break
			}
		}
	}

	if len(steps) > r.maxReasoningSteps {
		steps = steps[:r.maxReasoningSteps]
	}
	return steps
}

// calculateConfidence combines length, trace depth and certainty cues,
// then applies the neuromodulated confidence factor. Result in [0,1].
func (r *Reasoner) calculateConfidence(response string, trace []string, mod neuromod.Modulation) float64 {
	const base = 0.5
	lower := strings.ToLower(response)

	lengthFactor := float64(len(response)) / 500.0
	if lengthFactor > 1.0 {
		lengthFactor = 1.0
	}
	traceFactor := float64(len(trace)) / 3.0
	if traceFactor > 1.0 {
		traceFactor = 1.0
	}

	uncertaintyHits := 0
	for _, w := range uncertaintyWords {
		if strings.Contains(lower, w) {
			uncertaintyHits++
		}
	}
	uncertaintyFactor := 1.0 - float64(uncertaintyHits)*0.1
	if uncertaintyFactor < 0 {
		uncertaintyFactor = 0
	}

	certaintyHits := 0
	for _, w := range certaintyWords {
		if strings.Contains(lower, w) {
			certaintyHits++
		}
	}
	confidenceFactor := 1.0 + float64(certaintyHits)*0.05
	if confidenceFactor > 1.0 {
		confidenceFactor = 1.0
	}

	confidence := (base + lengthFactor + traceFactor + uncertaintyFactor + confidenceFactor) / 5.0
	confidence *= mod.Confidence

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func (r *Reasoner) confidenceRationale(trace []string, mod neuromod.Modulation) string {
	var reasons []string
	if len(trace) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d reasoning steps", len(trace)))
	}
	if mod.AttentionFactor > 1.0 {
		reasons = append(reasons, "heightened attention")
	}
	if mod.ExploreFactor > 1.0 {
		reasons = append(reasons, "some exploration")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "balanced assessment")
	}
	return strings.Join(reasons, ", ") + "."
}

// extractCitations finds bracketed numbers, parenthetical sources and
// "according to ..." style references, capped at five.
func extractCitations(response string) []types.Citation {
	var citations []types.Citation
	add := func(source string) {
		if len(citations) < maxCitations {
			citations = append(citations, types.Citation{
				Source: strings.TrimSpace(source),
				Score:  0.8,
				Type:   "text_reference",
			})
		}
	}

	for _, m := range bracketCiteRE.FindAllStringSubmatch(response, -1) {
		add(m[1])
	}
	for _, m := range parenCiteRE.FindAllStringSubmatch(response, -1) {
		add(m[1])
	}
	for _, re := range []*regexp.Regexp{accordingToRE, asStatedRE, researchShowsRE} {
		for _, m := range re.FindAllStringSubmatch(response, -1) {
			add(m[1])
		}
	}
	return citations
}

// extractMemoryHits matches response words against provided memories;
// an overlap of more than two words counts as a hit, scored
// min(overlap/10, 1), capped at five.
func extractMemoryHits(response string, bundle *types.ContextBundle) []types.MemoryHit {
	responseWords := wordSet(strings.ToLower(response))

	var hits []types.MemoryHit
	for kind, snippets := range bundle.Memories {
		for _, snippet := range snippets {
			memoryWords := wordSet(strings.ToLower(snippet.Text))
			overlap := 0
			for w := range memoryWords {
				if _, ok := responseWords[w]; ok {
					overlap++
				}
			}
			if overlap <= 2 {
				continue
			}
			score := float64(overlap) / 10.0
			if score > 1.0 {
				score = 1.0
			}
			hits = append(hits, types.MemoryHit{
				ID:      snippet.ID,
				Score:   score,
				Kind:    kind,
				Snippet: truncate(snippet.Text, 100),
			})
			if len(hits) == maxMemoryHits {
				return hits
			}
		}
	}
	return hits
}

func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatMemoryContext(memories map[string][]types.MemorySnippet) string {
	if len(memories) == 0 {
		return "No relevant memories found."
	}
	var parts []string
	for _, kind := range []string{"episodic", "semantic", "reflective", "procedural"} {
		if snippets := memories[kind]; len(snippets) > 0 {
			parts = append(parts, fmt.Sprintf("%s%s: %d items", strings.ToUpper(kind[:1]), kind[1:], len(snippets)))
		}
	}
	if len(parts) == 0 {
		return "No relevant memories found."
	}
	return strings.Join(parts, "; ")
}
