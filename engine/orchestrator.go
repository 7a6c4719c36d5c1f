// Package engine implements the orchestrator: the end-to-end pipeline
// from perception through parallel reasoning, critique, coherence,
// gating and broadcast to synthesis, with neuromodulator feedback and
// optional memory persistence. It also speaks the line-delimited JSON
// job protocol used by the CLI front-ends.
package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/coherence"
	"github.com/BaSui01/cortexflow/config"
	"github.com/BaSui01/cortexflow/critique"
	"github.com/BaSui01/cortexflow/gating"
	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/memory"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/perception"
	"github.com/BaSui01/cortexflow/reasoners"
	"github.com/BaSui01/cortexflow/router"
	"github.com/BaSui01/cortexflow/types"
	"github.com/BaSui01/cortexflow/workspace"
)

const (
	// qualityTarget stops the iteration loop early.
	qualityTarget = 0.95
	// qualityEpsilon is the no-change detection threshold.
	qualityEpsilon = 0.01
	// maxSelectedAgents caps the agents engaged per cycle.
	maxSelectedAgents = 8
	// fallbackAnswer is returned when no candidate survives gating.
	fallbackAnswer = "I could not produce a sufficiently validated answer to this query. Please rephrase or provide more context."
)

var nameCaptureRE = regexp.MustCompile(`(?i)\b(?:my name is|call me)\s+([A-Za-z][A-Za-z'-]*)`)

// Events receives pipeline progress. All methods may be called from the
// orchestrator goroutine only. A nil Events is valid.
type Events interface {
	OnToken(agent, token string)
	OnIteration(record types.IterationRecord)
}

// Orchestrator wires the cognitive pipeline together.
type Orchestrator struct {
	cfg config.EngineConfig

	adapter      *perception.Adapter
	preprocessor *router.Preprocessor
	classifier   *router.Classifier
	executor     *reasoners.Executor
	critiqueMgr  *critique.Manager
	coherenceEng *coherence.Engine
	gatingEng    *gating.Engine
	wsManager    *workspace.Manager
	controller   *neuromod.Controller
	gateway      *llm.Gateway
	store        *memory.Store // nil when memory is disabled

	seenLabels map[string]struct{}
	logger     *zap.Logger
}

// Deps bundles the orchestrator collaborators.
type Deps struct {
	Adapter      *perception.Adapter
	Preprocessor *router.Preprocessor
	Classifier   *router.Classifier
	Executor     *reasoners.Executor
	CritiqueMgr  *critique.Manager
	CoherenceEng *coherence.Engine
	GatingEng    *gating.Engine
	WSManager    *workspace.Manager
	Controller   *neuromod.Controller
	Gateway      *llm.Gateway
	Store        *memory.Store
}

// New creates an orchestrator.
func New(cfg config.EngineConfig, deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CriticMaxAllowedIssues != nil {
		deps.CritiqueMgr.SetMaxAllowedIssues(cfg.CriticMaxAllowedIssues)
	}
	return &Orchestrator{
		cfg:          cfg,
		adapter:      deps.Adapter,
		preprocessor: deps.Preprocessor,
		classifier:   deps.Classifier,
		executor:     deps.Executor,
		critiqueMgr:  deps.CritiqueMgr,
		coherenceEng: deps.CoherenceEng,
		gatingEng:    deps.GatingEng,
		wsManager:    deps.WSManager,
		controller:   deps.Controller,
		gateway:      deps.Gateway,
		store:        deps.Store,
		seenLabels:   map[string]struct{}{},
		logger:       logger.With(zap.String("component", "orchestrator")),
	}
}

// Controller exposes the neuromodulation controller.
func (o *Orchestrator) Controller() *neuromod.Controller { return o.controller }

// Workspace exposes the workspace manager.
func (o *Orchestrator) Workspace() *workspace.Manager { return o.wsManager }

// Store exposes the memory store, nil when disabled.
func (o *Orchestrator) Store() *memory.Store { return o.store }

// ProcessQuery runs one full cycle.
func (o *Orchestrator) ProcessQuery(ctx context.Context, req types.QueryRequest) (*types.QueryResult, error) {
	return o.ProcessQueryWithEvents(ctx, req, nil)
}

// ProcessQueryWithEvents runs one full cycle, emitting progress events.
// Cancellation is checked after perception, after context building, at
// the start of every iteration and before synthesis; the steps inside
// one iteration are not separately checked. A cancelled cycle returns an
// error: in-flight reasoners finish but their outputs are discarded.
func (o *Orchestrator) ProcessQueryWithEvents(ctx context.Context, req types.QueryRequest, events Events) (*types.QueryResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrInput, "empty query")
	}
	if req.Mode == "" {
		req.Mode = o.cfg.DefaultMode
	}
	if !types.ValidMode(req.Mode) {
		return nil, types.NewError(types.ErrInput, fmt.Sprintf("invalid mode %q", req.Mode))
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	o.gatingEng.ResetCycle()
	o.captureUserContext(ctx, req)

	// 1. Perception + context.
	percept, err := o.adapter.Process(ctx, req.Text, map[string]any{
		"session_id":    req.SessionID,
		"user_id":       req.UserID,
		"privacy_flags": req.PrivacyFlags,
		"mode":          string(req.Mode),
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	// 2. Classification (pre-context collection updates working memory).
	query := o.classifier.Classify(ctx, req.Text, "", req.UserID)
	if query.QueryType == "" || query.Intent == "parse_error" || query.Intent == "error" {
		query.QueryType = types.QueryLogical
		query.ReasoningDepth = types.DepthAuto
	}
	bundle := o.buildBundle(ctx, percept, query, req)
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	o.emitNoveltyFeedback(query.Labels)

	// 3. Agent selection.
	selected := o.selectAgents(query)
	o.logger.Info("cycle started",
		zap.String("job_id", req.JobID),
		zap.String("query_type", string(query.QueryType)),
		zap.Strings("labels", query.Labels),
		zap.Int("agents", len(selected)),
	)

	loopDepth := req.LoopDepth
	if loopDepth <= 0 {
		loopDepth = 1
	}
	if loopDepth > o.cfg.MaxIterations {
		loopDepth = o.cfg.MaxIterations
	}

	// 4. Iteration loop.
	var (
		trace         []types.IterationRecord
		lastQuality   = -1.0
		finalAnalysis coherence.Analysis
		gatedAll      []types.BroadcastItem
	)

	for iteration := 0; iteration < loopDepth; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		record, analysis, gated := o.runIteration(ctx, iteration, selected, bundle, query)
		trace = append(trace, record)
		finalAnalysis = analysis
		gatedAll = append(gatedAll, gated...)

		if events != nil {
			events.OnIteration(record)
		}

		if record.QualityScore >= qualityTarget {
			o.logger.Debug("quality target reached", zap.Float64("quality", record.QualityScore))
			break
		}
		if lastQuality >= 0 && math.Abs(record.QualityScore-lastQuality) < qualityEpsilon {
			o.logger.Debug("no quality change, stopping early")
			break
		}
		lastQuality = record.QualityScore
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	// 5. Synthesis.
	finalAnswer, quality := o.synthesize(ctx, req, gatedAll, trace, events)

	// 6. Feedback.
	o.controller.ProcessFeedback(neuromod.FeedbackSuccess, quality)
	if quality <= 0.3 {
		o.controller.ProcessFeedback(neuromod.FeedbackFailure, 0.5)
	}

	// 7. Memory write.
	coherent := finalAnalysis.IsCoherent
	if req.AllowMemoryWrite && o.store != nil && coherent {
		o.persistCycle(ctx, req, query, finalAnswer, finalAnalysis)
	}

	result := &types.QueryResult{
		JobID:          req.JobID,
		FinalAnswer:    finalAnswer,
		IterationTrace: trace,
		QualityScore:   quality,
		Coherence:      finalAnalysis.CoherenceScore,
		CoherenceOK:    coherent,
		Quarantine:     o.gatingEng.Quarantine(),
		MetaReport:     o.metaReport(req.JobID, selected, trace, finalAnalysis),
	}
	return result, nil
}

// runIteration executes steps (a)-(g) of one pipeline iteration.
func (o *Orchestrator) runIteration(ctx context.Context, iteration int, selected []types.AgentType, bundle *types.ContextBundle, query types.StructuredQuery) (types.IterationRecord, coherence.Analysis, []types.BroadcastItem) {
	// (a) modulation parameters
	modulations := map[types.AgentType]neuromod.Modulation{}
	for _, agent := range selected {
		modulations[agent] = o.controller.ModulateAgentBehavior(agent, 1.0, 0.7)
	}

	// (b) parallel reasoning
	outputs := o.executor.Execute(ctx, selected, bundle, modulations)
	for i := range outputs {
		outputs[i].Iteration = iteration
	}

	// (c) critique / rewrite
	critiques, outputs := o.critiqueMgr.CritiqueAll(ctx, outputs)

	// (d) coherence analysis
	analysis := o.coherenceEng.Analyze(ctx, outputs)

	// (e) broadcast candidates
	candidates := o.buildCandidates(iteration, outputs, critiques, analysis)

	// (f) gating + broadcast
	gated := o.gatingEng.EvaluateCandidates(candidates, gating.Context{
		Neuromodulators: o.controller.State(),
		QueryIntent:     intentLabels(query),
	})
	for _, item := range gated {
		o.wsManager.BroadcastAndStore(item, true)
	}

	// (g) quality assessment
	quality := assessQuality(gated, analysis.CoherenceScore, critiques)

	return types.IterationRecord{
		Index:          iteration,
		AgentOutputs:   outputs,
		Critiques:      critiques,
		Conflicts:      analysis.Conflicts,
		Resolutions:    analysis.Resolutions,
		GatedItems:     gated,
		CoherenceScore: analysis.CoherenceScore,
		QualityScore:   quality,
		Timestamp:      time.Now(),
	}, analysis, gated
}

// buildCandidates forms one broadcast candidate per output, tagging it
// with critique and verifier metadata, the speculative flag and the
// disclaimer when confidence is low. Conflict resolutions are attached
// to the candidates of the affected agents.
func (o *Orchestrator) buildCandidates(iteration int, outputs []types.AgentOutput, critiques []types.AgentCritique, analysis coherence.Analysis) []types.BroadcastItem {
	verifierReport := distillVerifier(outputs)

	critiqueByAgent := map[types.AgentType]types.AgentCritique{}
	for _, crit := range critiques {
		critiqueByAgent[crit.Agent] = crit
	}

	resolutionsByAgent := map[types.AgentType][]types.ConflictResolution{}
	for i, conflict := range analysis.Conflicts {
		if i >= len(analysis.Resolutions) {
			break
		}
		for _, agent := range conflict.ConflictingAgents {
			resolutionsByAgent[agent] = append(resolutionsByAgent[agent], analysis.Resolutions[i])
		}
	}

	candidates := make([]types.BroadcastItem, 0, len(outputs))
	for _, out := range outputs {
		crit := critiqueByAgent[out.Agent]
		speculative := out.Confidence < types.SpeculativeConfidence

		metadata := map[string]any{
			"agent_critique": map[string]any{
				"passed":   crit.Passed,
				"issues":   len(crit.Issues),
				"escalate": crit.Escalate,
			},
			"speculative_flag": speculative,
		}
		if verifierReport != nil {
			metadata["verifier"] = map[string]any{
				"passed": verifierReport.Passed,
				"score":  verifierReport.Score,
				"notes":  verifierReport.Notes,
			}
		}
		if speculative {
			metadata["disclaimer"] = types.SpeculativeDisclaimer
		}
		if resolutions := resolutionsByAgent[out.Agent]; len(resolutions) > 0 {
			metadata["conflict_resolutions"] = resolutions
		}

		candidates = append(candidates, types.BroadcastItem{
			ID:           uuid.NewString(),
			Text:         out.TextDraft,
			Contributors: []types.AgentType{out.Agent},
			Confidence:   out.Confidence,
			Speculative:  speculative,
			Iteration:    iteration,
			CreatedAt:    time.Now(),
			Metadata:     metadata,
		})
	}
	return candidates
}

// distillVerifier computes the structural verifier report from the
// Verifier reasoner's output: confidence at or above the evidence
// threshold plus at least one citation or memory hit.
func distillVerifier(outputs []types.AgentOutput) *types.VerifierReport {
	for _, out := range outputs {
		if out.Agent != types.AgentVerifier {
			continue
		}
		const evidenceThreshold = 0.5
		passed := out.Confidence >= evidenceThreshold && out.HasEvidence()
		notes := []string{fmt.Sprintf("%d citations, %d memory hits", len(out.Citations), len(out.MemoryHits))}
		if !passed {
			notes = append(notes, "verification criteria not met")
		}
		return &types.VerifierReport{Passed: passed, Score: out.Confidence, Notes: notes}
	}
	return nil
}

// selectAgents always includes Logical, adds label matches, expands
// toward the full suite on deep paths and caps the set.
func (o *Orchestrator) selectAgents(query types.StructuredQuery) []types.AgentType {
	set := map[types.AgentType]struct{}{types.AgentLogical: {}}

	add := func(agent types.AgentType) {
		if len(set) < maxSelectedAgents {
			set[agent] = struct{}{}
		}
	}

	byLabel := map[string]types.AgentType{
		"logical":    types.AgentLogical,
		"emotional":  types.AgentEmotional,
		"creative":   types.AgentCreative,
		"strategic":  types.AgentStrategic,
		"factual":    types.AgentVerifier,
		"reflective": types.AgentArbiter,
	}
	if agent, ok := byLabel[string(query.QueryType)]; ok {
		add(agent)
	}
	for _, label := range query.Labels {
		if agent, ok := byLabel[label]; ok {
			add(agent)
		}
	}

	if query.ReasoningDepth == types.DepthDeep {
		for _, agent := range types.AllAgentTypes {
			add(agent)
		}
	}

	ordered := make([]types.AgentType, 0, len(set))
	for _, agent := range types.AllAgentTypes {
		if _, ok := set[agent]; ok {
			ordered = append(ordered, agent)
		}
	}
	return ordered
}

func (o *Orchestrator) buildBundle(ctx context.Context, percept *types.Percept, query types.StructuredQuery, req types.QueryRequest) *types.ContextBundle {
	pre := o.preprocessor.Preprocess(ctx, req.UserID, req.Text)

	labels := query.Labels
	if len(labels) == 0 && query.QueryType != "" {
		labels = []string{string(query.QueryType)}
	}

	return &types.ContextBundle{
		Percept:          percept,
		Memories:         o.preprocessor.MemoriesByKind(ctx, req.Text),
		Labels:           labels,
		LabelConfidences: query.LabelConfidences,
		ReasoningDepth:   query.ReasoningDepth,
		WorkingMemory:    pre.WorkingMemory,
		Metadata: map[string]any{
			"intent":     query.Intent,
			"query_type": string(query.QueryType),
			"mode":       string(req.Mode),
		},
	}
}

// synthesize composes the final answer from the gated items. With no
// gated items the fallback message is returned with quality capped at
// 0.3. Disclaimers from speculative items are carried verbatim.
func (o *Orchestrator) synthesize(ctx context.Context, req types.QueryRequest, gated []types.BroadcastItem, trace []types.IterationRecord, events Events) (string, float64) {
	quality := 0.0
	if len(trace) > 0 {
		quality = trace[len(trace)-1].QualityScore
	}

	if len(gated) == 0 {
		if quality > 0.3 {
			quality = 0.3
		}
		o.emitAnswer(events, fallbackAnswer)
		return fallbackAnswer, quality
	}

	var sb strings.Builder
	var disclaimers []string
	for _, item := range gated {
		fmt.Fprintf(&sb, "[%s] %s\n\n", contributorNames(item.Contributors), item.Text)
		if item.Speculative {
			if d, ok := item.Metadata["disclaimer"].(string); ok {
				disclaimers = appendUnique(disclaimers, d)
			}
		}
	}

	prompt := fmt.Sprintf(`You are the final synthesis stage of a multi-perspective reasoning system. Compose one coherent answer to the user's query from the validated perspectives below. Preserve substance, remove redundancy, and keep the response %s.

Query: %s

Validated perspectives:
%s
Final answer:
`, req.Mode, req.Text, sb.String())

	answer, err := o.gateway.Complete(ctx, prompt)
	if err != nil {
		o.logger.Warn("synthesis failed, falling back to best gated item", zap.Error(err))
		answer = bestItem(gated).Text
	}

	for _, disclaimer := range disclaimers {
		if !strings.Contains(answer, disclaimer) {
			answer = answer + "\n\n" + disclaimer
		}
	}

	o.emitAnswer(events, answer)
	return answer, quality
}

func (o *Orchestrator) emitAnswer(events Events, answer string) {
	if events == nil {
		return
	}
	for _, word := range strings.Fields(answer) {
		events.OnToken("actor", word+" ")
	}
	events.OnToken("actor", "\n")
}

// persistCycle writes the episodic record, the semantic summary for
// substantial answers and the reflective note when coherence feedback
// exists.
func (o *Orchestrator) persistCycle(ctx context.Context, req types.QueryRequest, query types.StructuredQuery, answer string, analysis coherence.Analysis) {
	episodic := fmt.Sprintf("Q: %s\nA: %s", req.Text, answer)
	if _, err := o.store.Write(ctx, memory.WriteRequest{
		Kind:       types.MemoryEpisodic,
		Text:       episodic,
		Tags:       append([]string{string(query.QueryType)}, query.Labels...),
		Importance: 0.5,
		Consent:    true,
	}); err != nil {
		o.logger.Warn("episodic write failed", zap.Error(err))
	}
	if err := o.store.RecordEpisode(ctx, req.UserID, req.SessionID, req.Text, answer, ""); err != nil {
		o.logger.Warn("episode log failed", zap.Error(err))
	}

	if len(answer) > 300 {
		if _, err := o.store.Write(ctx, memory.WriteRequest{
			Kind:       types.MemorySemantic,
			Text:       answer,
			Tags:       append([]string{string(query.QueryType)}, query.Labels...),
			Importance: 0.6,
			Consent:    true,
		}); err != nil {
			o.logger.Warn("semantic write failed", zap.Error(err))
		}
	}

	if feedback := coherenceFeedback(analysis); feedback != "" {
		if _, err := o.store.Write(ctx, memory.WriteRequest{
			Kind:       types.MemoryReflective,
			Text:       fmt.Sprintf("Coherence feedback for %q: %s", req.Text, feedback),
			Tags:       []string{"coherence"},
			Importance: 0.4,
			Consent:    true,
		}); err != nil {
			o.logger.Warn("reflective write failed", zap.Error(err))
		}
	}
}

// captureUserContext detects "my name is X" style statements and stores
// the name when memory writes are allowed.
func (o *Orchestrator) captureUserContext(ctx context.Context, req types.QueryRequest) {
	if o.store == nil || !req.AllowMemoryWrite || req.UserID == "" {
		return
	}
	if m := nameCaptureRE.FindStringSubmatch(req.Text); m != nil {
		if err := o.store.SetUserName(ctx, req.UserID, m[1]); err != nil {
			o.logger.Warn("name capture failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) emitNoveltyFeedback(labels []string) {
	for _, label := range labels {
		if _, seen := o.seenLabels[label]; !seen {
			o.seenLabels[label] = struct{}{}
			o.controller.ProcessFeedback(neuromod.FeedbackNovelty, 0.5)
		}
	}
}

func (o *Orchestrator) metaReport(jobID string, selected []types.AgentType, trace []types.IterationRecord, analysis coherence.Analysis) types.MetaSelfReport {
	escalations := 0
	conflictsResolved := 0
	path := make([]string, 0, len(trace))
	confidence := 0.0

	for _, record := range trace {
		for _, crit := range record.Critiques {
			if crit.Escalate {
				escalations++
			}
		}
		conflictsResolved += len(record.Resolutions)
		path = append(path, fmt.Sprintf("iteration %d: %d outputs, %d gated, quality %.2f",
			record.Index, len(record.AgentOutputs), len(record.GatedItems), record.QualityScore))
		for _, item := range record.GatedItems {
			confidence += item.Confidence
		}
	}

	gatedTotal := 0
	for _, record := range trace {
		gatedTotal += len(record.GatedItems)
	}
	if gatedTotal > 0 {
		confidence /= float64(gatedTotal)
	}

	var nextSteps []string
	if escalations > 0 {
		nextSteps = append(nextSteps, "review escalated critiques")
	}
	if !analysis.IsCoherent {
		nextSteps = append(nextSteps, "re-run with deeper reasoning to resolve conflicts")
	}

	return types.MetaSelfReport{
		JobID:              jobID,
		AgentsRun:          selected,
		Iterations:         len(trace),
		CoherenceOK:        analysis.IsCoherent,
		ConfidenceEstimate: confidence,
		ConflictsResolved:  conflictsResolved,
		Escalations:        escalations,
		NextSteps:          nextSteps,
		ReasoningPath:      path,
	}
}

// assessQuality averages mean gated confidence, coherence score and
// critique pass rate.
func assessQuality(gated []types.BroadcastItem, coherenceScore float64, critiques []types.AgentCritique) float64 {
	meanConfidence := 0.0
	for _, item := range gated {
		meanConfidence += item.Confidence
	}
	if len(gated) > 0 {
		meanConfidence /= float64(len(gated))
	}

	passRate := 0.0
	for _, crit := range critiques {
		if crit.Passed {
			passRate++
		}
	}
	if len(critiques) > 0 {
		passRate /= float64(len(critiques))
	}

	quality := (meanConfidence + coherenceScore + passRate) / 3.0
	if quality > 1.0 {
		quality = 1.0
	}
	return quality
}

func coherenceFeedback(analysis coherence.Analysis) string {
	if analysis.IsCoherent || len(analysis.Conflicts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(analysis.Conflicts))
	for _, conflict := range analysis.Conflicts {
		parts = append(parts, conflict.Description)
	}
	return strings.Join(parts, "; ")
}

// intentLabels maps the classification onto the gating intent
// vocabulary (emotional queries count as personal).
func intentLabels(query types.StructuredQuery) []string {
	labels := append([]string{}, query.Labels...)
	labels = appendUnique(labels, string(query.QueryType))
	if query.QueryType == types.QueryEmotional || contains(labels, "emotional") {
		labels = appendUnique(labels, "personal")
	}
	return labels
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func contributorNames(contributors []types.AgentType) string {
	names := make([]string, len(contributors))
	for i, c := range contributors {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func bestItem(items []types.BroadcastItem) types.BroadcastItem {
	best := items[0]
	for _, item := range items[1:] {
		if item.Confidence > best.Confidence {
			best = item
		}
	}
	return best
}

func cancelled(err error) error {
	return types.NewError(types.ErrCancelled, "query cycle cancelled").WithCause(err)
}
