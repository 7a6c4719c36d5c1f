package critique

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/types"
)

// historyLimit bounds the rolling critique statistics.
const historyLimit = 1000

type critiqueRecord struct {
	at     time.Time
	agent  types.AgentType
	passed bool
	issues int
	edits  int
}

// Manager owns the per-type critics and drives the critique → rewrite →
// re-critique loop with a single rewrite attempt per output.
type Manager struct {
	gateway *llm.Gateway
	logger  *zap.Logger

	mu              sync.Mutex
	critics         map[types.AgentType]*Critic
	history         []critiqueRecord
	maxAllowedIssues *int
}

// NewManager creates a critique manager.
func NewManager(gateway *llm.Gateway, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gateway: gateway,
		logger:  logger.With(zap.String("component", "critique_manager")),
		critics: make(map[types.AgentType]*Critic),
	}
}

// SetMaxAllowedIssues relaxes the pass criterion: when set, an output
// passes whenever its issue count is at or below the limit. Pass nil to
// restore the strict criterion.
func (m *Manager) SetMaxAllowedIssues(limit *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAllowedIssues = limit
}

// CritiqueOutput runs the full loop for one output and returns the
// final critique plus the output to carry forward. An already-passing
// output is returned unchanged, so re-running the manager on it is a
// no-op.
func (m *Manager) CritiqueOutput(ctx context.Context, out types.AgentOutput) (types.AgentCritique, types.AgentOutput) {
	critic := m.criticFor(out.Agent)

	crit := critic.Critique(ctx, &out)
	m.applyRelaxation(&crit)
	m.record(out.Agent, crit)

	if crit.Passed {
		return crit, out
	}

	rewritten, err := critic.Rewrite(ctx, &out, crit)
	if err != nil {
		m.logger.Warn("rewrite failed, keeping original output",
			zap.String("agent", string(out.Agent)), zap.Error(err))
		crit.Escalate = true
		return crit, out
	}

	second := critic.Critique(ctx, rewritten)
	m.applyRelaxation(&second)
	if !second.Passed {
		second.Escalate = true
	}
	m.record(out.Agent, second)

	return second, *rewritten
}

// CritiqueAll runs the loop over a batch in order.
func (m *Manager) CritiqueAll(ctx context.Context, outputs []types.AgentOutput) ([]types.AgentCritique, []types.AgentOutput) {
	critiques := make([]types.AgentCritique, 0, len(outputs))
	finals := make([]types.AgentOutput, 0, len(outputs))
	for _, out := range outputs {
		crit, final := m.CritiqueOutput(ctx, out)
		critiques = append(critiques, crit)
		finals = append(finals, final)
	}
	return critiques, finals
}

func (m *Manager) criticFor(agent types.AgentType) *Critic {
	m.mu.Lock()
	defer m.mu.Unlock()
	critic, ok := m.critics[agent]
	if !ok {
		critic = NewCritic(agent, m.gateway, m.logger)
		m.critics[agent] = critic
	}
	return critic
}

func (m *Manager) applyRelaxation(crit *types.AgentCritique) {
	m.mu.Lock()
	limit := m.maxAllowedIssues
	m.mu.Unlock()
	if limit != nil && len(crit.Issues) <= *limit {
		crit.Passed = true
	}
}

func (m *Manager) record(agent types.AgentType, crit types.AgentCritique) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, critiqueRecord{
		at:     time.Now(),
		agent:  agent,
		passed: crit.Passed,
		issues: len(crit.Issues),
		edits:  len(crit.SuggestedEdits),
	})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

// Stats reports pass rate, issues per critique and the recent pass
// rate over the last hundred records.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.history)
	if total == 0 {
		return map[string]any{"total_critiques": 0, "pass_rate": 0.0, "avg_issues": 0.0, "recent_pass_rate": 0.0}
	}

	passed, issueSum := 0, 0
	for _, rec := range m.history {
		if rec.passed {
			passed++
		}
		issueSum += rec.issues
	}

	recent := m.history
	if len(recent) > 100 {
		recent = recent[len(recent)-100:]
	}
	recentPassed := 0
	for _, rec := range recent {
		if rec.passed {
			recentPassed++
		}
	}

	return map[string]any{
		"total_critiques":  total,
		"pass_rate":        float64(passed) / float64(total),
		"avg_issues":       float64(issueSum) / float64(total),
		"recent_pass_rate": float64(recentPassed) / float64(len(recent)),
	}
}
