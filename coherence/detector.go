// Package coherence implements the meta-coherence engine: cross-agent
// conflict detection (contradiction, inconsistency, missing evidence)
// and LLM-assisted resolution.
//
// Claims are currently extracted and compared with string heuristics,
// but they are modeled as explicit values so a graph-based detector
// (claims as nodes, negates/qualifies/evidences edges) can replace the
// comparison without changing the package API.
package coherence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/cortexflow/types"
)

// maxClaims caps how many declarative claims are extracted per output.
const maxClaims = 5

// Severity by conflict type.
const (
	severityContradiction   = 0.8
	severityInconsistency   = 0.6
	severityMissingEvidence = 0.4
)

var negationPairs = [][2]string{
	{"is", "is not"},
	{"are", "are not"},
	{"can", "cannot"},
	{"will", "will not"},
	{"should", "should not"},
	{"must", "must not"},
}

var oppositePairs = [][2]string{
	{"good", "bad"},
	{"right", "wrong"},
	{"true", "false"},
	{"correct", "incorrect"},
	{"valid", "invalid"},
	{"success", "failure"},
}

var inconsistencyIndicators = []string{
	"however", "but", "although", "despite", "on the other hand",
	"conversely", "alternatively", "meanwhile", "in contrast",
}

var discourseMarkers = []string{"however", "although", "despite"}

// ExtractClaims pulls up to maxClaims declarative sentences from a
// draft: non-question, non-exclamatory sentences of more than three
// words that do not open with a discourse marker.
func ExtractClaims(text string) []string {
	sentences := strings.Split(text, ".")
	var claims []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" || strings.ContainsAny(s, "?!") {
			continue
		}
		if len(strings.Fields(s)) <= 3 {
			continue
		}
		lower := strings.ToLower(s)
		if hasPrefixAny(lower, discourseMarkers) {
			continue
		}
		claims = append(claims, s)
		if len(claims) == maxClaims {
			break
		}
	}
	return claims
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Detector finds conflicts between agent outputs by pairwise claim
// comparison.
type Detector struct{}

// NewDetector creates a conflict detector.
func NewDetector() *Detector { return &Detector{} }

// DetectConflicts compares every pair of outputs from distinct agents.
func (d *Detector) DetectConflicts(outputs []types.AgentOutput) []types.ConflictTicket {
	var conflicts []types.ConflictTicket
	for i := 0; i < len(outputs); i++ {
		for j := i + 1; j < len(outputs); j++ {
			if conflict := d.compare(&outputs[i], &outputs[j]); conflict != nil {
				conflicts = append(conflicts, *conflict)
			}
		}
	}
	return conflicts
}

func (d *Detector) compare(a, b *types.AgentOutput) *types.ConflictTicket {
	if a.Agent == b.Agent {
		return nil
	}

	claimsA := ExtractClaims(a.TextDraft)
	claimsB := ExtractClaims(b.TextDraft)

	if ticket := d.findContradiction(claimsA, claimsB, a.Agent, b.Agent); ticket != nil {
		return ticket
	}
	if ticket := d.findInconsistency(claimsA, claimsB, a.Agent, b.Agent); ticket != nil {
		return ticket
	}
	return d.findMissingEvidence(a, b)
}

func (d *Detector) findContradiction(claimsA, claimsB []string, agentA, agentB types.AgentType) *types.ConflictTicket {
	for _, ca := range claimsA {
		for _, cb := range claimsB {
			if areContradictory(ca, cb) {
				return newTicket(types.ConflictContradiction, severityContradiction,
					[]types.AgentType{agentA, agentB},
					fmt.Sprintf("Contradiction between %s and %s", agentA, agentB),
					fmt.Sprintf("Reconcile conflicting claims: %q vs %q", ca, cb))
			}
		}
	}
	return nil
}

func (d *Detector) findInconsistency(claimsA, claimsB []string, agentA, agentB types.AgentType) *types.ConflictTicket {
	for _, ca := range claimsA {
		for _, cb := range claimsB {
			if areInconsistent(ca, cb) {
				return newTicket(types.ConflictInconsistency, severityInconsistency,
					[]types.AgentType{agentA, agentB},
					fmt.Sprintf("Inconsistency between %s and %s", agentA, agentB),
					fmt.Sprintf("Clarify relationship between: %q and %q", ca, cb))
			}
		}
	}
	return nil
}

func (d *Detector) findMissingEvidence(a, b *types.AgentOutput) *types.ConflictTicket {
	evidenceA := a.HasEvidence()
	evidenceB := b.HasEvidence()

	var lacking *types.AgentOutput
	switch {
	case evidenceA && !evidenceB:
		lacking = b
	case evidenceB && !evidenceA:
		lacking = a
	default:
		return nil
	}

	return newTicket(types.ConflictMissingEvidence, severityMissingEvidence,
		[]types.AgentType{a.Agent, b.Agent},
		fmt.Sprintf("%s lacks supporting evidence", lacking.Agent),
		fmt.Sprintf("Provide evidence for %s claims", lacking.Agent))
}

func newTicket(kind types.ConflictType, severity float64, agents []types.AgentType, description, resolution string) *types.ConflictTicket {
	return &types.ConflictTicket{
		ID:                  fmt.Sprintf("%s_%s", kind, uuid.NewString()),
		ConflictingAgents:   agents,
		Type:                kind,
		Description:         description,
		Severity:            severity,
		SuggestedResolution: resolution,
		CreatedAt:           time.Now(),
	}
}

func areContradictory(claimA, claimB string) bool {
	a := strings.ToLower(claimA)
	b := strings.ToLower(claimB)

	for _, pair := range negationPairs {
		positive, negative := pair[0], pair[1]
		if strings.Contains(a, positive) && strings.Contains(b, negative) {
			return true
		}
		if strings.Contains(b, positive) && strings.Contains(a, negative) {
			return true
		}
	}
	for _, pair := range oppositePairs {
		if strings.Contains(a, pair[0]) && strings.Contains(b, pair[1]) {
			return true
		}
		if strings.Contains(b, pair[0]) && strings.Contains(a, pair[1]) {
			return true
		}
	}
	return false
}

func areInconsistent(claimA, claimB string) bool {
	a := strings.ToLower(claimA)
	b := strings.ToLower(claimB)
	for _, indicator := range inconsistencyIndicators {
		if strings.Contains(a, indicator) || strings.Contains(b, indicator) {
			return true
		}
	}
	return false
}
