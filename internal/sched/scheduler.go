package sched

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is one sweep run. It reads fresh state every invocation; no state is
// carried between runs.
type Job func(ctx context.Context) error

// Scheduler triggers a job on a fixed interval. A tick is skipped while the
// previous run is still in flight, which bounds overlap without locking,
// and each run gets a wall-clock budget via context timeout.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	logger   *zap.Logger
	running  atomic.Bool
}

// New creates a new scheduler
func New(name string, interval, timeout time.Duration, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		timeout:  timeout,
		job:      job,
		logger:   logger,
	}
}

// Run loops until the context is cancelled. The first run fires after one
// full interval so startup dependencies settle first.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.String("job", s.name),
		zap.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.String("job", s.name))
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sweep still running, skipping tick", zap.String("job", s.name))
		return
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.job(runCtx); err != nil {
		s.logger.Error("sweep failed", zap.String("job", s.name), zap.Error(err))
	}
}
