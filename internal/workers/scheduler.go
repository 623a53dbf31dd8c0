// Package workers runs the periodic maintenance jobs: expiring idle
// sessions, purging the catalog cache and probing store health.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/magefree/tabletop-server-go/internal/config"
	"go.uber.org/zap"
)

// Sweeper deletes sessions past their ttl.
type Sweeper interface {
	Sweep(ctx context.Context, lobbyTTL, finishedTTL time.Duration) (int, error)
}

// Purger drops expired cache entries.
type Purger interface {
	Purge() int
}

// Checker refreshes a health status.
type Checker interface {
	Check(ctx context.Context) error
}

// Scheduler owns the gocron scheduler and the context its jobs run under.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, logger: logger, ctx: ctx, cancel: cancel}, nil
}

func (s *Scheduler) every(name string, interval time.Duration, task func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", name)
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { task(s.ctx) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.logger.Info("scheduled job", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// AddSweep schedules session expiry as configured.
func (s *Scheduler) AddSweep(cfg config.SweeperConfig, target Sweeper) error {
	return s.every("sweep-sessions", cfg.Interval, func(ctx context.Context) {
		SweepOnce(ctx, target, cfg.LobbyTTL, cfg.FinishedTTL, s.logger)
	})
}

// SweepOnce runs a single expiry pass.
func SweepOnce(ctx context.Context, target Sweeper, lobbyTTL, finishedTTL time.Duration, logger *zap.Logger) int {
	removed, err := target.Sweep(ctx, lobbyTTL, finishedTTL)
	if err != nil {
		logger.Warn("session sweep failed", zap.Int("removed", removed), zap.Error(err))
		return removed
	}
	if removed > 0 {
		logger.Info("expired sessions", zap.Int("removed", removed))
	}
	return removed
}

// AddCachePurge schedules removal of expired catalog entries.
func (s *Scheduler) AddCachePurge(interval time.Duration, cache Purger) error {
	return s.every("purge-catalog-cache", interval, func(context.Context) {
		if n := cache.Purge(); n > 0 {
			s.logger.Debug("purged catalog cache", zap.Int("entries", n))
		}
	})
}

// AddHealthProbe schedules a store health check.
func (s *Scheduler) AddHealthProbe(interval time.Duration, checker Checker) error {
	return s.every("probe-health", interval, func(ctx context.Context) {
		if err := checker.Check(ctx); err != nil {
			s.logger.Warn("health probe failed", zap.Error(err))
		}
	})
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}
