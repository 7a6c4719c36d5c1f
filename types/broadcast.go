package types

import "time"

// SpeculativeConfidence is the confidence level below which a broadcast
// candidate is tagged speculative and must carry a disclaimer.
const SpeculativeConfidence = 0.6

// SpeculativeDisclaimer is carried verbatim into the final synthesis
// whenever a speculative item is used.
const SpeculativeDisclaimer = "Note: parts of this answer are speculative and should be verified independently."

// BroadcastItem is a gated candidate visible in the global workspace.
type BroadcastItem struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	Contributors []AgentType    `json:"contributors"`
	Confidence   float64        `json:"confidence"`
	Speculative  bool           `json:"speculative"`
	Iteration    int            `json:"iteration"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Critique returns the agent_critique metadata entry, if present.
func (b *BroadcastItem) Critique() (map[string]any, bool) {
	return b.metaMap("agent_critique")
}

// Verifier returns the verifier metadata entry, if present.
func (b *BroadcastItem) Verifier() (map[string]any, bool) {
	return b.metaMap("verifier")
}

func (b *BroadcastItem) metaMap(key string) (map[string]any, bool) {
	if b.Metadata == nil {
		return nil, false
	}
	m, ok := b.Metadata[key].(map[string]any)
	return m, ok
}

// HasContributor reports whether the given agent contributed to the item.
func (b *BroadcastItem) HasContributor(agent AgentType) bool {
	for _, c := range b.Contributors {
		if c == agent {
			return true
		}
	}
	return false
}

// ActiveRepresentation is one working-memory slot.
type ActiveRepresentation struct {
	Content      string         `json:"content"`
	SourceAgents []AgentType    `json:"source_agents"`
	Priority     float64        `json:"priority"`
	Decay        float64        `json:"decay"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Neuromodulator clamp ranges and resting targets.
const (
	AttentionGainMin    = 0.1
	AttentionGainMax    = 2.0
	AttentionGainTarget = 1.0

	ExploreNoiseMin    = 0.0
	ExploreNoiseMax    = 1.0
	ExploreNoiseTarget = 0.2

	RewardSignalMin    = -1.0
	RewardSignalMax    = 1.0
	RewardSignalTarget = 0.0
)

// NeuromodulatorState holds the three global scalar modulators.
// attention_gain is the ACh analog, explore_noise the NE analog and
// reward_signal the DA analog.
type NeuromodulatorState struct {
	AttentionGain float64   `json:"attention_gain"`
	ExploreNoise  float64   `json:"explore_noise"`
	RewardSignal  float64   `json:"reward_signal"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultNeuromodulatorState returns the resting state.
func DefaultNeuromodulatorState() NeuromodulatorState {
	return NeuromodulatorState{
		AttentionGain: AttentionGainTarget,
		ExploreNoise:  ExploreNoiseTarget,
		RewardSignal:  RewardSignalTarget,
		UpdatedAt:     time.Now(),
	}
}

// Clamp forces every modulator into its valid range.
func (s *NeuromodulatorState) Clamp() {
	s.AttentionGain = clampFloat(s.AttentionGain, AttentionGainMin, AttentionGainMax)
	s.ExploreNoise = clampFloat(s.ExploreNoise, ExploreNoiseMin, ExploreNoiseMax)
	s.RewardSignal = clampFloat(s.RewardSignal, RewardSignalMin, RewardSignalMax)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
