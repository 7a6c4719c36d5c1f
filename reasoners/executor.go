package reasoners

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/internal/pool"
	"github.com/BaSui01/cortexflow/llm"
	"github.com/BaSui01/cortexflow/neuromod"
	"github.com/BaSui01/cortexflow/types"
)

// Executor runs a set of reasoners in parallel with bounded
// concurrency. A failing reasoner yields a degraded zero-confidence
// output so the pipeline always proceeds with the full set.
type Executor struct {
	gateway    *llm.Gateway
	maxWorkers int
	logger     *zap.Logger
}

// NewExecutor creates a parallel executor. maxWorkers <= 0 selects the
// default of 4.
func NewExecutor(gateway *llm.Gateway, maxWorkers int, logger *zap.Logger) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		gateway:    gateway,
		maxWorkers: maxWorkers,
		logger:     logger.With(zap.String("component", "reasoner_executor")),
	}
}

// Execute runs the selected agent types over the bundle. Outputs are
// collected in completion order but returned sorted by agent type so
// downstream processing is deterministic.
func (e *Executor) Execute(ctx context.Context, agentTypes []types.AgentType, bundle *types.ContextBundle, modulations map[types.AgentType]neuromod.Modulation) []types.AgentOutput {
	p := pool.New(e.maxWorkers)

	var mu sync.Mutex
	results := make([]types.AgentOutput, 0, len(agentTypes))
	collect := func(out types.AgentOutput) {
		mu.Lock()
		results = append(results, out)
		mu.Unlock()
	}

	for _, agentType := range agentTypes {
		agentType := agentType
		task := func(taskCtx context.Context) error {
			out, err := e.runOne(taskCtx, agentType, bundle, modulations[agentType])
			if err != nil {
				e.logger.Warn("reasoner failed",
					zap.String("agent", string(agentType)), zap.Error(err))
				collect(degradedOutput(agentType, err))
				return err
			}
			collect(*out)
			return nil
		}
		if err := p.Submit(ctx, task); err != nil {
			// Submission only fails when the cycle is cancelled.
			collect(degradedOutput(agentType, err))
		}
	}
	p.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Agent.Order() < results[j].Agent.Order()
	})
	return results
}

func (e *Executor) runOne(ctx context.Context, agentType types.AgentType, bundle *types.ContextBundle, mod neuromod.Modulation) (*types.AgentOutput, error) {
	r, err := New(agentType, e.gateway, e.logger)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, bundle, mod)
}

// degradedOutput is the zero-confidence placeholder for a failed
// reasoner.
func degradedOutput(agentType types.AgentType, err error) types.AgentOutput {
	out := types.AgentOutput{
		Agent:               agentType,
		TextDraft:           fmt.Sprintf("Error in %s reasoning: %v", agentType, err),
		ReasoningTrace:      []string{fmt.Sprintf("Error occurred: %v", err)},
		Confidence:          0.0,
		ConfidenceRationale: "degraded output after reasoner failure.",
		CreatedAt:           time.Now(),
	}
	out.Sanitize()
	return out
}
