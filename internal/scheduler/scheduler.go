// Package scheduler drives recurring scout runs and hands each run's
// findings to the digest notifier.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/scout"
)

// Runner executes one scout cycle.
type Runner interface {
	Run(ctx context.Context) (*scout.RunResult, error)
}

// Notifier delivers a run digest. A nil Notifier disables digests.
type Notifier interface {
	SendRunDigest(ctx context.Context, runAt time.Time, totalFetched int, newOpps []model.ScoredOpportunity) error
}

// Options configures the schedule.
type Options struct {
	Interval   time.Duration // cadence between runs, default 6h
	RunOnStart bool          // fire a run immediately instead of waiting a full interval
}

// Scheduler ticks the scout coordinator at a fixed cadence.
type Scheduler struct {
	runner   Runner
	notifier Notifier
	opts     Options
	log      *zap.Logger
}

func New(runner Runner, notifier Notifier, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	return &Scheduler{
		runner:   runner,
		notifier: notifier,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "scheduler")),
	}
}

// Start blocks until ctx is cancelled, running the scout every interval.
// A run already in progress (for example one triggered over the API) is
// skipped, not queued.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.opts.Interval))

	if s.opts.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, scout.ErrRunInProgress) {
			s.log.Info("run already in progress, skipping tick")
			return
		}
		s.log.Error("scheduled run failed", zap.Error(err))
		return
	}

	s.log.Info("scheduled run complete",
		zap.Int("fetched", result.TotalFetched),
		zap.Int("new", len(result.NewOpportunities)))

	if s.notifier == nil || len(result.NewOpportunities) == 0 {
		return
	}
	if err := s.notifier.SendRunDigest(ctx, result.RunAt, result.TotalFetched, result.NewOpportunities); err != nil {
		s.log.Warn("digest delivery failed", zap.Error(err))
	}
}
