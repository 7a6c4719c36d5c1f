package coherence

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/types"
)

// Analysis is the result of one coherence pass.
type Analysis struct {
	CoherenceScore float64                    `json:"coherence_score"`
	Conflicts      []types.ConflictTicket     `json:"conflicts,omitempty"`
	Resolutions    []types.ConflictResolution `json:"resolutions,omitempty"`
	IsCoherent     bool                       `json:"is_coherent"`
}

// Engine detects conflicts across agent outputs, resolves them through
// targeted LLM prompts and computes the cycle coherence score.
type Engine struct {
	detector  *Detector
	gateway   *llm.Gateway
	threshold float64
	logger    *zap.Logger
}

// NewEngine creates a coherence engine. threshold <= 0 selects the
// default of 0.85.
func NewEngine(gateway *llm.Gateway, threshold float64, logger *zap.Logger) *Engine {
	if threshold <= 0 {
		threshold = 0.85
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		detector:  NewDetector(),
		gateway:   gateway,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "coherence")),
	}
}

// Analyze runs detection, resolution and scoring over one iteration's
// outputs. Resolutions run concurrently (one LLM call each) but are
// returned in conflict order. Detection or resolution failures degrade
// to fewer resolutions; they never abort the cycle.
func (e *Engine) Analyze(ctx context.Context, outputs []types.AgentOutput) Analysis {
	conflicts := e.detector.DetectConflicts(outputs)

	resolved := make([]*types.ConflictResolution, len(conflicts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, conflict := range conflicts {
		i, conflict := i, conflict
		g.Go(func() error {
			resolution, err := e.resolve(gctx, conflict, outputs)
			if err != nil {
				e.logger.Warn("conflict resolution failed",
					zap.String("conflict", conflict.ID), zap.Error(err))
				return nil
			}
			resolved[i] = &resolution
			return nil
		})
	}
	_ = g.Wait()

	var resolutions []types.ConflictResolution
	for _, r := range resolved {
		if r != nil {
			resolutions = append(resolutions, *r)
		}
	}

	score := Score(outputs, conflicts)
	return Analysis{
		CoherenceScore: score,
		Conflicts:      conflicts,
		Resolutions:    resolutions,
		IsCoherent:     score >= e.threshold,
	}
}

// Score computes mean(confidence) − Σ(severity·0.2) + 0.1·|outputs with
// evidence|, clamped to [0,1].
func Score(outputs []types.AgentOutput, conflicts []types.ConflictTicket) float64 {
	if len(outputs) == 0 {
		return 0.0
	}

	avgConfidence := 0.0
	evidenceBonus := 0.0
	for _, out := range outputs {
		avgConfidence += out.Confidence
		if out.HasEvidence() {
			evidenceBonus += 0.1
		}
	}
	avgConfidence /= float64(len(outputs))

	penalty := 0.0
	for _, c := range conflicts {
		penalty += c.Severity * 0.2
	}

	score := avgConfidence - penalty + evidenceBonus
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}

func (e *Engine) resolve(ctx context.Context, conflict types.ConflictTicket, outputs []types.AgentOutput) (types.ConflictResolution, error) {
	involved := make([]types.AgentOutput, 0, len(conflict.ConflictingAgents))
	for _, out := range outputs {
		for _, agent := range conflict.ConflictingAgents {
			if out.Agent == agent {
				involved = append(involved, out)
				break
			}
		}
	}

	switch conflict.Type {
	case types.ConflictContradiction:
		return e.runResolution(ctx, conflict, "contradiction_resolution", "arbitration", 0.7,
			arbitrationPrompt(conflict, involved))
	case types.ConflictInconsistency:
		return e.runResolution(ctx, conflict, "inconsistency_resolution", "clarification", 0.8,
			clarificationPrompt(conflict, involved))
	case types.ConflictMissingEvidence:
		lacking := findLackingEvidence(involved)
		if lacking == nil {
			return types.ConflictResolution{
				ConflictID: conflict.ID, Type: "no_resolution_needed", Confidence: 1.0,
			}, nil
		}
		return e.runResolution(ctx, conflict, "evidence_resolution", "evidence_generation", 0.6,
			evidencePrompt(lacking))
	default:
		return types.ConflictResolution{
			ConflictID: conflict.ID,
			Type:       "generic_resolution",
			Strategy:   "generic",
			Resolution: fmt.Sprintf("Generic resolution for %s", conflict.Type),
			Confidence: 0.5,
		}, nil
	}
}

func (e *Engine) runResolution(ctx context.Context, conflict types.ConflictTicket, kind, strategy string, confidence float64, prompt string) (types.ConflictResolution, error) {
	text, err := e.gateway.Complete(ctx, prompt)
	if err != nil {
		return types.ConflictResolution{}, err
	}
	return types.ConflictResolution{
		ConflictID: conflict.ID,
		Type:       kind,
		Strategy:   strategy,
		Resolution: text,
		Confidence: confidence,
	}, nil
}

func findLackingEvidence(outputs []types.AgentOutput) *types.AgentOutput {
	for i := range outputs {
		if !outputs[i].HasEvidence() {
			return &outputs[i]
		}
	}
	return nil
}

func formatOutputs(outputs []types.AgentOutput) string {
	var sb strings.Builder
	for _, out := range outputs {
		fmt.Fprintf(&sb, "%s: %s\n", out.Agent, out.TextDraft)
	}
	return sb.String()
}

func arbitrationPrompt(conflict types.ConflictTicket, outputs []types.AgentOutput) string {
	return fmt.Sprintf(`You are an arbitration expert. Resolve the following contradiction between different perspectives.

Conflict: %s

Conflicting outputs:
%s
Resolution approach:
1. Identify the core disagreement
2. Find common ground or shared principles
3. Propose a balanced resolution that acknowledges both perspectives
4. Provide a synthesized response that addresses the contradiction

Synthesized resolution:
`, conflict.Description, formatOutputs(outputs))
}

func clarificationPrompt(conflict types.ConflictTicket, outputs []types.AgentOutput) string {
	return fmt.Sprintf(`You are a clarification expert. Resolve the following inconsistency between different perspectives.

Inconsistency: %s

Conflicting outputs:
%s
Resolution approach:
1. Identify the specific inconsistency
2. Clarify the relationship between the perspectives
3. Show how they can coexist or complement each other
4. Provide a clear, consistent synthesis

Clarified synthesis:
`, conflict.Description, formatOutputs(outputs))
}

func evidencePrompt(lacking *types.AgentOutput) string {
	return fmt.Sprintf(`You are an evidence generation expert. Help strengthen the following claim with supporting evidence.

Claim needing evidence: %s
Agent: %s

Evidence generation approach:
1. Identify the key claims that need support
2. Suggest specific types of evidence that would strengthen the argument
3. Provide reasoning for why this evidence would be valuable
4. Suggest how to find or generate this evidence

Evidence suggestions:
`, lacking.TextDraft, lacking.Agent)
}
