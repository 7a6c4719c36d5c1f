package gating

import (
	"sync"
	"time"

	"github.com/BaSui01/cortexflow/types"
)

// ResourceTracker maintains the gating budget: consumption per admitted
// candidate, restored over time by decayRate·maxBudget per elapsed
// minute up to the maximum. Restoration is linear in elapsed time, not
// exponential. The budget never goes negative.
type ResourceTracker struct {
	mu            sync.Mutex
	maxBudget     float64
	currentBudget float64
	decayRate     float64 // restoration rate per minute
	lastUpdate    time.Time

	speculativeRecent int
	totalRecent       int

	now func() time.Time
}

// NewResourceTracker creates a tracker at full budget.
func NewResourceTracker(maxBudget, decayRate float64) *ResourceTracker {
	if maxBudget <= 0 {
		maxBudget = 100.0
	}
	if decayRate <= 0 {
		decayRate = 0.1
	}
	return &ResourceTracker{
		maxBudget:     maxBudget,
		currentBudget: maxBudget,
		decayRate:     decayRate,
		lastUpdate:    time.Now(),
		now:           time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (t *ResourceTracker) WithClock(now func() time.Time) *ResourceTracker {
	t.now = now
	t.lastUpdate = now()
	return t
}

// EstimateItemCost prices a broadcast item: base + (1 − confidence) +
// length factor.
func EstimateItemCost(item types.BroadcastItem) float64 {
	return 1.0 + (1.0 - item.Confidence) + float64(len(item.Text))/1000.0
}

// EstimateOutputCost prices an agent output: base + (1 − confidence) +
// trace factor.
func EstimateOutputCost(out types.AgentOutput) float64 {
	return 0.5 + (1.0 - out.Confidence) + float64(len(out.ReasoningTrace))/10.0
}

// Consume deducts the cost of an admitted item and records whether it
// was speculative for the ratio window.
func (t *ResourceTracker) Consume(item types.BroadcastItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyRestorationLocked()

	cost := EstimateItemCost(item)
	t.currentBudget -= cost
	if t.currentBudget < 0 {
		t.currentBudget = 0
	}

	t.totalRecent++
	if item.Speculative {
		t.speculativeRecent++
	}
}

// RemainingBudget returns the restored current budget.
func (t *ResourceTracker) RemainingBudget() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyRestorationLocked()
	return t.currentBudget
}

// SpeculativeRatio returns the share of speculative items among recent
// admissions. The window resets at cycle boundaries via ResetWindow.
func (t *ResourceTracker) SpeculativeRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totalRecent == 0 {
		return 0.0
	}
	return float64(t.speculativeRecent) / float64(t.totalRecent)
}

// ResetWindow clears the speculative-ratio counters.
func (t *ResourceTracker) ResetWindow() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speculativeRecent = 0
	t.totalRecent = 0
}

func (t *ResourceTracker) applyRestorationLocked() {
	now := t.now()
	minutes := now.Sub(t.lastUpdate).Minutes()
	if minutes <= 0 {
		return
	}
	t.lastUpdate = now
	t.currentBudget += t.decayRate * minutes * t.maxBudget
	if t.currentBudget > t.maxBudget {
		t.currentBudget = t.maxBudget
	}
}

// Stats reports budget usage.
func (t *ResourceTracker) Stats() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyRestorationLocked()
	return map[string]any{
		"current_budget":   t.currentBudget,
		"max_budget":       t.maxBudget,
		"usage_percentage": (t.maxBudget - t.currentBudget) / t.maxBudget,
	}
}
