// Package jobs schedules background memory maintenance: periodic
// consolidation of episodic items into semantic facts and pruning of
// old, low-importance episodes. Jobs yield to foreground queries by
// running on the cron goroutine, never inside a query cycle.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/memory"
)

// Summarizer produces the semantic-fact text for a batch of episodic
// texts. A nil summarizer falls back to the store's joined summary.
type Summarizer func(texts []string) string

// Scheduler runs memory maintenance on a cron schedule.
type Scheduler struct {
	store     *memory.Store
	summarize Summarizer
	schedule  string
	logger    *zap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a maintenance scheduler. schedule accepts cron
// specs including descriptors like "@hourly".
func NewScheduler(store *memory.Store, summarize Summarizer, schedule string, logger *zap.Logger) *Scheduler {
	if schedule == "" {
		schedule = "@hourly"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		summarize: summarize,
		schedule:  schedule,
		logger:    logger.With(zap.String("component", "memory_jobs")),
	}
}

// Start registers the maintenance entry and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runOnce); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("memory maintenance scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	consolidated, pruned, err := s.RunMaintenance(ctx)
	if err != nil {
		s.logger.Warn("maintenance run failed", zap.Error(err))
		return
	}
	s.logger.Info("maintenance run complete",
		zap.Int("consolidated", consolidated),
		zap.Int("pruned", pruned),
	)
}

// RunMaintenance runs one consolidation plus prune pass, usable from
// the CLI and the HTTP maintain endpoint as well as the cron loop.
func (s *Scheduler) RunMaintenance(ctx context.Context) (consolidated, pruned int, err error) {
	var summarize func([]string) string
	if s.summarize != nil {
		summarize = s.summarize
	}
	consolidated, err = s.store.Consolidate(ctx, summarize)
	if err != nil {
		return 0, 0, err
	}
	pruned, err = s.store.Prune(ctx)
	if err != nil {
		return consolidated, 0, err
	}
	return consolidated, pruned, nil
}
