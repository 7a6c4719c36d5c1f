package gating

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/types"
)

// QualityGateReason is the reason prefix recorded for quarantined items.
const QualityGateReason = "Blocked by quality gate"

// historyLimit bounds the gating decision history.
const historyLimit = 1000

type decisionRecord struct {
	at         time.Time
	admitted   bool
	confidence float64
	reason     string
}

// Engine coordinates the hard quality gate, the confidence/resource
// policy and the quarantine. The quality gate runs first: a broadcast
// candidate is admissible only when its metadata shows a passed critique
// or a passed verifier report; everything else is quarantined, never
// rejected silently.
type Engine struct {
	policy    Policy
	resources *ResourceTracker
	logger    *zap.Logger

	mu         sync.Mutex
	quarantine []types.QuarantineEntry
	history    []decisionRecord
}

// NewEngine creates a gating engine with the given policy. A nil policy
// gets the deterministic default.
func NewEngine(policy Policy, resources *ResourceTracker, logger *zap.Logger) *Engine {
	if policy == nil {
		policy = NewDeterministicPolicy()
	}
	if resources == nil {
		resources = NewResourceTracker(100.0, 0.1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy:    policy,
		resources: resources,
		logger:    logger.With(zap.String("component", "gating")),
	}
}

// Resources exposes the resource tracker.
func (e *Engine) Resources() *ResourceTracker { return e.resources }

// EvaluateCandidates gates a batch of candidates and returns the
// admitted ones in input order.
func (e *Engine) EvaluateCandidates(candidates []types.BroadcastItem, ctx Context) []types.BroadcastItem {
	ctx.ResourceBudget = e.resources.RemainingBudget()
	ctx.SpeculativeRatio = e.resources.SpeculativeRatio()

	var gated []types.BroadcastItem
	for _, candidate := range candidates {
		if reason, blocked := e.qualityGate(candidate); blocked {
			e.quarantineCandidate(candidate, reason)
			continue
		}

		d := e.policy.ShouldGate(candidate, ctx)
		e.record(d.Admit, d.Confidence, d.Reason)

		if d.Admit {
			gated = append(gated, candidate)
			e.resources.Consume(candidate)
			// Keep the context's view of budget and ratio current so a
			// batch drains resources the same way sequential calls would.
			ctx.ResourceBudget = e.resources.RemainingBudget()
			ctx.SpeculativeRatio = e.resources.SpeculativeRatio()
		} else {
			e.logger.Debug("candidate rejected", zap.String("id", candidate.ID), zap.String("reason", d.Reason))
		}
	}
	return gated
}

// qualityGate admits only candidates whose metadata shows a passed
// critique or verifier. Returns the quarantine reason when blocked.
func (e *Engine) qualityGate(candidate types.BroadcastItem) (string, bool) {
	if critique, ok := candidate.Critique(); ok {
		if passed, _ := critique["passed"].(bool); passed {
			return "", false
		}
	}
	if verifier, ok := candidate.Verifier(); ok {
		if passed, _ := verifier["passed"].(bool); passed {
			return "", false
		}
	}
	return QualityGateReason + ": no critic/verifier pass", true
}

func (e *Engine) quarantineCandidate(candidate types.BroadcastItem, reason string) {
	e.mu.Lock()
	e.quarantine = append(e.quarantine, types.QuarantineEntry{Item: candidate, Reason: reason})
	e.mu.Unlock()

	e.record(false, 0.0, reason)
	e.logger.Info("candidate quarantined",
		zap.String("id", candidate.ID),
		zap.String("reason", reason),
	)
}

// Quarantine returns a copy of the quarantined entries.
func (e *Engine) Quarantine() []types.QuarantineEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.QuarantineEntry, len(e.quarantine))
	copy(out, e.quarantine)
	return out
}

// ResetCycle clears the quarantine and the speculative window at a
// query-cycle boundary.
func (e *Engine) ResetCycle() {
	e.mu.Lock()
	e.quarantine = nil
	e.mu.Unlock()
	e.resources.ResetWindow()
}

func (e *Engine) record(admitted bool, confidence float64, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, decisionRecord{
		at:         time.Now(),
		admitted:   admitted,
		confidence: confidence,
		reason:     reason,
	})
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}

// Stats reports gating counters for the meta report.
func (e *Engine) Stats() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := len(e.history)
	if total == 0 {
		return map[string]any{"total_decisions": 0, "gating_rate": 0.0, "avg_confidence": 0.0}
	}
	admitted, confSum := 0, 0.0
	for _, d := range e.history {
		if d.admitted {
			admitted++
		}
		confSum += d.confidence
	}
	return map[string]any{
		"total_decisions": total,
		"gating_rate":     float64(admitted) / float64(total),
		"avg_confidence":  confSum / float64(total),
		"resource_usage":  e.resources.Stats(),
	}
}
