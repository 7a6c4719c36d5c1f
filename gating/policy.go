// Package gating implements the admission control between reasoning and
// the global workspace: a hard quality gate, a confidence/resource
// policy, and the quarantine that preserves blocked candidates for
// observability.
package gating

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/cortexflow/types"
)

// Context carries the state a gating decision depends on. Identical
// candidates under an identical context always yield identical
// decisions.
type Context struct {
	Neuromodulators  types.NeuromodulatorState
	ResourceBudget   float64
	SpeculativeRatio float64
	QueryIntent      []string
}

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Admit      bool
	Confidence float64
	Reason     string
}

// Policy decides whether a candidate passes the confidence/resource
// gate (the quality gate runs before any policy).
type Policy interface {
	ShouldGate(candidate types.BroadcastItem, ctx Context) Decision
}

// DeterministicPolicy applies the rule set:
// neuromodulator-adjusted confidence, minimum threshold, speculative
// ratio cap, resource floor and intent-based priority boost.
type DeterministicPolicy struct {
	MinConfidenceThreshold float64
	MaxSpeculativeRatio    float64
	PriorityBoostFactor    float64
}

// NewDeterministicPolicy returns the policy with default thresholds.
func NewDeterministicPolicy() *DeterministicPolicy {
	return &DeterministicPolicy{
		MinConfidenceThreshold: 0.3,
		MaxSpeculativeRatio:    0.5,
		PriorityBoostFactor:    1.2,
	}
}

// ShouldGate applies the deterministic rules in order.
func (p *DeterministicPolicy) ShouldGate(candidate types.BroadcastItem, ctx Context) Decision {
	adjusted := p.applyNeuromodulators(candidate.Confidence, ctx.Neuromodulators, candidate.Contributors)

	if adjusted < p.MinConfidenceThreshold {
		return Decision{false, adjusted,
			fmt.Sprintf("Below confidence threshold (%.2f < %.2f)", adjusted, p.MinConfidenceThreshold)}
	}
	if candidate.Speculative && ctx.SpeculativeRatio >= p.MaxSpeculativeRatio {
		return Decision{false, adjusted,
			fmt.Sprintf("Speculative ratio limit exceeded (%.2f >= %.2f)", ctx.SpeculativeRatio, p.MaxSpeculativeRatio)}
	}
	if ctx.ResourceBudget < 0.1 && adjusted < 0.7 {
		return Decision{false, adjusted, "Low resource budget, only high-confidence items allowed"}
	}

	boost := p.priorityBoost(candidate.Contributors, ctx.QueryIntent)
	final := adjusted * boost

	return Decision{
		Admit:      final >= p.MinConfidenceThreshold,
		Confidence: final,
		Reason: fmt.Sprintf("Confidence: %.2f, Speculative: %v, Priority boost: %.2f",
			final, candidate.Speculative, boost),
	}
}

// applyNeuromodulators adjusts confidence by attention gain, by
// exploration noise for creative/strategic contributors, and by a
// positive reward signal. Capped at 1.0.
func (p *DeterministicPolicy) applyNeuromodulators(confidence float64, state types.NeuromodulatorState, contributors []types.AgentType) float64 {
	adjusted := confidence * (1.0 + (state.AttentionGain-1.0)*0.3)

	if hasAny(contributors, types.AgentCreative, types.AgentStrategic) {
		adjusted *= 1.0 + state.ExploreNoise*0.2
	}
	if state.RewardSignal > 0 {
		adjusted *= 1.0 + state.RewardSignal*0.1
	}

	if adjusted > 1.0 {
		adjusted = 1.0
	}
	return adjusted
}

// priorityBoost multiplies when a contributor type matches the query
// intent: logical↔logical, creative↔creative, verifier↔factual,
// emotional↔personal.
func (p *DeterministicPolicy) priorityBoost(contributors []types.AgentType, intent []string) float64 {
	boost := 1.0
	for _, label := range intent {
		switch label {
		case "logical":
			if hasAny(contributors, types.AgentLogical) {
				boost *= p.PriorityBoostFactor
			}
		case "creative":
			if hasAny(contributors, types.AgentCreative) {
				boost *= p.PriorityBoostFactor
			}
		case "factual":
			if hasAny(contributors, types.AgentVerifier) {
				boost *= p.PriorityBoostFactor
			}
		case "personal":
			if hasAny(contributors, types.AgentEmotional) {
				boost *= p.PriorityBoostFactor
			}
		}
	}
	return boost
}

func hasAny(contributors []types.AgentType, wanted ...types.AgentType) bool {
	for _, c := range contributors {
		for _, w := range wanted {
			if c == w {
				return true
			}
		}
	}
	return false
}

// AdaptivePolicy layers feedback-driven re-scaling over the
// deterministic rules: the adjusted confidence is multiplied by 0.95
// when the recent success rate exceeds 0.8 and by 1.05 when it falls
// below 0.5, and the minimum threshold drifts by ±1% within [0.1,0.9].
type AdaptivePolicy struct {
	*DeterministicPolicy

	mu       sync.Mutex
	outcomes []outcome
	now      func() time.Time
}

type outcome struct {
	at      time.Time
	success bool
}

// NewAdaptivePolicy wraps a deterministic policy with adaptation.
func NewAdaptivePolicy(base *DeterministicPolicy) *AdaptivePolicy {
	if base == nil {
		base = NewDeterministicPolicy()
	}
	return &AdaptivePolicy{DeterministicPolicy: base, now: time.Now}
}

// ShouldGate applies the base rules then the adaptive re-scaling.
func (p *AdaptivePolicy) ShouldGate(candidate types.BroadcastItem, ctx Context) Decision {
	d := p.DeterministicPolicy.ShouldGate(candidate, ctx)

	adjustment := 1.0
	rate := p.recentSuccessRate()
	if rate > 0.8 {
		adjustment = 0.95
	} else if rate < 0.5 {
		adjustment = 1.05
	}
	d.Confidence *= adjustment

	p.updateThreshold(rate)
	d.Reason = fmt.Sprintf("%s (adaptive: %.2f)", d.Reason, d.Confidence)
	return d
}

// RecordFeedback records an external outcome for an admitted item.
func (p *AdaptivePolicy) RecordFeedback(_ string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome{at: p.now(), success: success})

	// keep only the last 24 hours
	cutoff := p.now().Add(-24 * time.Hour)
	kept := p.outcomes[:0]
	for _, o := range p.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	p.outcomes = kept
}

func (p *AdaptivePolicy) recentSuccessRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-time.Hour)
	total, succeeded := 0, 0
	for _, o := range p.outcomes {
		if o.at.After(cutoff) {
			total++
			if o.success {
				succeeded++
			}
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(succeeded) / float64(total)
}

func (p *AdaptivePolicy) updateThreshold(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate > 0.8 {
		p.MinConfidenceThreshold *= 0.99
	} else if rate < 0.5 {
		p.MinConfidenceThreshold *= 1.01
	}
	if p.MinConfidenceThreshold < 0.1 {
		p.MinConfidenceThreshold = 0.1
	}
	if p.MinConfidenceThreshold > 0.9 {
		p.MinConfidenceThreshold = 0.9
	}
}
