package types

import (
	"regexp"
	"time"
)

// Citation is a source reference extracted from a reasoner response.
type Citation struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Type   string  `json:"type"`
}

// MemoryHit records that a reasoner response overlapped a provided memory.
type MemoryHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Kind    string  `json:"kind"`
	Snippet string  `json:"snippet"`
}

// AgentOutput is the candidate answer produced by one local reasoner.
type AgentOutput struct {
	Agent               AgentType   `json:"agent"`
	TextDraft           string      `json:"text_draft"`
	ReasoningTrace      []string    `json:"reasoning_trace"`
	Confidence          float64     `json:"confidence"`
	ConfidenceRationale string      `json:"confidence_rationale"`
	Citations           []Citation  `json:"citations,omitempty"`
	MemoryHits          []MemoryHit `json:"memory_hits,omitempty"`
	Iteration           int         `json:"iteration"`
	CreatedAt           time.Time   `json:"created_at"`
}

// inlineConfidenceRE matches bare decimal tokens like "0.85" in prose.
var inlineConfidenceRE = regexp.MustCompile(`\b0\.\d+\b`)

// Sanitize enforces the output contract: the draft must never leak a
// numeric confidence token into prose, and a rationale must exist.
// Offending tokens are replaced with "[confidence elided]".
func (o *AgentOutput) Sanitize() {
	if inlineConfidenceRE.MatchString(o.TextDraft) {
		o.TextDraft = inlineConfidenceRE.ReplaceAllString(o.TextDraft, "[confidence elided]")
	}
	if o.ConfidenceRationale == "" {
		o.ConfidenceRationale = "balanced assessment."
	}
}

// HasEvidence reports whether the output carries any citation or memory hit.
func (o *AgentOutput) HasEvidence() bool {
	return len(o.Citations) > 0 || len(o.MemoryHits) > 0
}

// AgentCritique is the self-critique verdict for one agent output.
type AgentCritique struct {
	Agent            AgentType `json:"agent"`
	Passed           bool      `json:"passed"`
	Issues           []string  `json:"issues,omitempty"`
	SuggestedEdits   []string  `json:"suggested_edits,omitempty"`
	ConfidenceImpact float64   `json:"confidence_impact"`
	Escalate         bool      `json:"escalate"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConflictType classifies a cross-agent conflict.
type ConflictType string

const (
	ConflictContradiction   ConflictType = "contradiction"
	ConflictInconsistency   ConflictType = "inconsistency"
	ConflictMissingEvidence ConflictType = "missing_evidence"
)

// ConflictTicket records a detected conflict between two or more agents.
type ConflictTicket struct {
	ID                  string       `json:"id"`
	ConflictingAgents   []AgentType  `json:"conflicting_agents"`
	Type                ConflictType `json:"type"`
	Description         string       `json:"description"`
	Severity            float64      `json:"severity"`
	SuggestedResolution string       `json:"suggested_resolution,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// ConflictResolution is the outcome of resolving one conflict ticket.
type ConflictResolution struct {
	ConflictID string  `json:"conflict_id"`
	Type       string  `json:"type"`
	Strategy   string  `json:"strategy"`
	Resolution string  `json:"resolution"`
	Confidence float64 `json:"confidence"`
}

// VerifierReport is the structural verdict distilled from the Verifier
// reasoner's output: confidence over an evidence threshold plus at
// least one citation or memory hit.
type VerifierReport struct {
	Passed bool     `json:"passed"`
	Score  float64  `json:"score"`
	Notes  []string `json:"notes,omitempty"`
}
