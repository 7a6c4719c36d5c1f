package types

// AgentType identifies a typed local reasoner perspective.
type AgentType string

const (
	AgentLogical   AgentType = "logical"
	AgentEmotional AgentType = "emotional"
	AgentCreative  AgentType = "creative"
	AgentStrategic AgentType = "strategic"
	AgentVerifier  AgentType = "verifier"
	AgentArbiter   AgentType = "arbiter"
)

// AllAgentTypes lists the full reasoner suite in canonical order.
// Outputs collected in completion order are re-sorted into this order
// before critique, coherence and broadcasting so downstream processing
// is deterministic.
var AllAgentTypes = []AgentType{
	AgentLogical,
	AgentEmotional,
	AgentCreative,
	AgentStrategic,
	AgentVerifier,
	AgentArbiter,
}

var agentOrder = map[AgentType]int{
	AgentLogical:   0,
	AgentEmotional: 1,
	AgentCreative:  2,
	AgentStrategic: 3,
	AgentVerifier:  4,
	AgentArbiter:   5,
}

// Order returns the canonical sort position of the agent type.
// Unknown types sort last.
func (a AgentType) Order() int {
	if o, ok := agentOrder[a]; ok {
		return o
	}
	return len(agentOrder)
}

// Valid reports whether the agent type is one of the known six.
func (a AgentType) Valid() bool {
	_, ok := agentOrder[a]
	return ok
}

// ModalityType identifies the detected input modality.
type ModalityType string

const (
	ModalityText       ModalityType = "text"
	ModalityImage      ModalityType = "image"
	ModalityAudio      ModalityType = "audio"
	ModalityCode       ModalityType = "code"
	ModalityMultimodal ModalityType = "multimodal"
)

// QueryType is the primary classification of a query.
// The value set doubles as the label vocabulary for multi-label routing.
type QueryType string

const (
	QueryLogical    QueryType = "logical"
	QueryEmotional  QueryType = "emotional"
	QueryStrategic  QueryType = "strategic"
	QueryCreative   QueryType = "creative"
	QueryFactual    QueryType = "factual"
	QueryReflective QueryType = "reflective"
)

// ReasoningDepth controls how much of the suite the orchestrator engages.
type ReasoningDepth string

const (
	DepthShallow ReasoningDepth = "shallow"
	DepthDeep    ReasoningDepth = "deep"
	DepthAuto    ReasoningDepth = "auto"
)
