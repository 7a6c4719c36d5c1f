package types

import "time"

// Mode selects the response style of a query cycle.
type Mode string

const (
	ModeConcise    Mode = "concise"
	ModeDetailed   Mode = "detailed"
	ModeCreative   Mode = "creative"
	ModeAnalytical Mode = "analytical"
)

// ValidMode reports whether the mode is one of the supported four.
func ValidMode(m Mode) bool {
	switch m {
	case ModeConcise, ModeDetailed, ModeCreative, ModeAnalytical:
		return true
	}
	return false
}

// QueryRequest is one job submitted to the engine, via CLI flag, the
// stdin JSONL protocol or the HTTP surface.
type QueryRequest struct {
	JobID            string          `json:"jobId"`
	SessionID        string          `json:"sessionId,omitempty"`
	UserID           string          `json:"userId,omitempty"`
	Text             string          `json:"text"`
	Mode             Mode            `json:"mode,omitempty"`
	LoopDepth        int             `json:"loopDepth,omitempty"`
	AllowMemoryWrite bool            `json:"allowMemoryWrite,omitempty"`
	PrivacyFlags     map[string]bool `json:"privacyFlags,omitempty"`
}

// IterationRecord traces one pipeline iteration for observability.
type IterationRecord struct {
	Index          int                  `json:"index"`
	AgentOutputs   []AgentOutput        `json:"agent_outputs"`
	Critiques      []AgentCritique      `json:"critiques"`
	Conflicts      []ConflictTicket     `json:"conflicts,omitempty"`
	Resolutions    []ConflictResolution `json:"resolutions,omitempty"`
	GatedItems     []BroadcastItem      `json:"gated_items"`
	CoherenceScore float64              `json:"coherence_score"`
	QualityScore   float64              `json:"quality_score"`
	Timestamp      time.Time            `json:"timestamp"`
}

// QuarantineEntry is a candidate blocked at the quality gate, kept for
// observability.
type QuarantineEntry struct {
	Item   BroadcastItem `json:"item"`
	Reason string        `json:"reason"`
}

// MetaSelfReport summarises one full query cycle.
type MetaSelfReport struct {
	JobID              string      `json:"job_id"`
	AgentsRun          []AgentType `json:"agents_run"`
	Iterations         int         `json:"iterations"`
	CoherenceOK        bool        `json:"coherence_ok"`
	ConfidenceEstimate float64     `json:"confidence_estimate"`
	ConflictsResolved  int         `json:"conflicts_resolved"`
	Escalations        int         `json:"escalations"`
	NextSteps          []string    `json:"next_steps,omitempty"`
	ReasoningPath      []string    `json:"reasoning_path,omitempty"`
}

// QueryResult is the full outcome of one query cycle.
type QueryResult struct {
	JobID          string            `json:"job_id"`
	FinalAnswer    string            `json:"final_answer"`
	IterationTrace []IterationRecord `json:"iteration_trace"`
	QualityScore   float64           `json:"quality_score"`
	Coherence      float64           `json:"coherence"`
	CoherenceOK    bool              `json:"coherence_ok"`
	Quarantine     []QuarantineEntry `json:"quarantine"`
	MetaReport     MetaSelfReport    `json:"meta_report"`
}
