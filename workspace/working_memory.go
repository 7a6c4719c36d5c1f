package workspace

import (
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/cortexflow/types"
)

// WMConfig bounds the working memory.
type WMConfig struct {
	MaxSlots  int     // Miller's 7±2
	DecayRate float64 // per minute
}

// DefaultWMConfig returns the 7-slot default.
func DefaultWMConfig() WMConfig {
	return WMConfig{MaxSlots: 7, DecayRate: 0.1}
}

// dropDecay is the decay level at which a slot is discarded.
const dropDecay = 0.01

// WorkingMemory maintains the active representations of the executive
// loop. Decay is applied lazily on every access: each slot's decay is
// multiplied by (1 − decayRate·Δminutes) and slots at or below the drop
// threshold are removed. On insert past capacity the lowest
// (priority, decay) slot is evicted.
type WorkingMemory struct {
	config WMConfig

	mu        sync.Mutex
	slots     []types.ActiveRepresentation
	lastDecay time.Time

	now func() time.Time
}

// NewWorkingMemory creates a working memory.
func NewWorkingMemory(config WMConfig) *WorkingMemory {
	if config.MaxSlots <= 0 {
		config.MaxSlots = 7
	}
	if config.DecayRate <= 0 {
		config.DecayRate = 0.1
	}
	return &WorkingMemory{
		config:    config,
		lastDecay: time.Now(),
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *WorkingMemory) WithClock(now func() time.Time) *WorkingMemory {
	m.now = now
	m.lastDecay = now()
	return m
}

// Add inserts a new representation, evicting if over capacity.
func (m *WorkingMemory) Add(content string, sourceAgents []types.AgentType, priority float64, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()

	m.slots = append(m.slots, types.ActiveRepresentation{
		Content:      content,
		SourceAgents: sourceAgents,
		Priority:     priority,
		Decay:        1.0,
		Metadata:     metadata,
		CreatedAt:    m.now(),
	})

	if len(m.slots) > m.config.MaxSlots {
		sort.SliceStable(m.slots, func(i, j int) bool {
			if m.slots[i].Priority != m.slots[j].Priority {
				return m.slots[i].Priority > m.slots[j].Priority
			}
			return m.slots[i].Decay > m.slots[j].Decay
		})
		m.slots = m.slots[:m.config.MaxSlots]
	}
}

// Representations returns slots at or above the priority threshold.
func (m *WorkingMemory) Representations(minPriority float64) []types.ActiveRepresentation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()

	var out []types.ActiveRepresentation
	for _, rep := range m.slots {
		if rep.Priority >= minPriority {
			out = append(out, rep)
		}
	}
	return out
}

// ByAgent returns slots a given agent contributed to.
func (m *WorkingMemory) ByAgent(agent types.AgentType) []types.ActiveRepresentation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()

	var out []types.ActiveRepresentation
	for _, rep := range m.slots {
		for _, a := range rep.SourceAgents {
			if a == agent {
				out = append(out, rep)
				break
			}
		}
	}
	return out
}

// Contents returns the slot contents in slot order: insertion order
// until an eviction, which re-sorts the slots by descending
// (priority, decay).
func (m *WorkingMemory) Contents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()

	out := make([]string, len(m.slots))
	for i, rep := range m.slots {
		out[i] = rep.Content
	}
	return out
}

// UpdatePriority sets the priority of the slot with matching content.
func (m *WorkingMemory) UpdatePriority(content string, priority float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].Content == content {
			m.slots[i].Priority = priority
			return true
		}
	}
	return false
}

// Remove deletes the slot with matching content.
func (m *WorkingMemory) Remove(content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].Content == content {
			m.slots = append(m.slots[:i], m.slots[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the working memory.
func (m *WorkingMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = nil
}

// Len returns the current slot count.
func (m *WorkingMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()
	return len(m.slots)
}

func (m *WorkingMemory) applyDecayLocked() {
	now := m.now()
	minutes := now.Sub(m.lastDecay).Minutes()
	if minutes <= 0 {
		return
	}
	m.lastDecay = now

	factor := 1.0 - m.config.DecayRate*minutes
	if factor < 0 {
		factor = 0
	}
	kept := m.slots[:0]
	for _, rep := range m.slots {
		rep.Decay *= factor
		if rep.Decay > dropDecay {
			kept = append(kept, rep)
		}
	}
	m.slots = kept
}

// Stats reports working-memory counters.
func (m *WorkingMemory) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDecayLocked()

	avgPriority, avgDecay := 0.0, 0.0
	for _, rep := range m.slots {
		avgPriority += rep.Priority
		avgDecay += rep.Decay
	}
	n := len(m.slots)
	if n > 0 {
		avgPriority /= float64(n)
		avgDecay /= float64(n)
	}
	return map[string]any{
		"active_slots": n,
		"max_slots":    m.config.MaxSlots,
		"avg_priority": avgPriority,
		"avg_decay":    avgDecay,
	}
}
