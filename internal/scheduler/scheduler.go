// Package scheduler implements the tick-driven sync decision loop: it
// determines due (tenant, resource) pairs under tier policy and dispatches
// fetch jobs through a leasing discipline.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/driftline-systems/driftline/internal/connector"
	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

// Config holds parsed scheduler settings.
type Config struct {
	TickInterval    time.Duration
	Workers         int64
	FetchTimeout    time.Duration
	LeaseSafety     float64
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BackoffFactor   float64
	FailuresToAlert int
}

// ParseConfig resolves a SchedulerConfig into concrete durations.
func ParseConfig(c *types.SchedulerConfig) Config {
	cfg := Config{
		TickInterval:    types.DefaultTickInterval,
		Workers:         types.DefaultWorkers,
		FetchTimeout:    types.DefaultFetchTimeout,
		LeaseSafety:     types.DefaultLeaseSafety,
		BackoffBase:     10 * time.Minute,
		BackoffMax:      6 * time.Hour,
		BackoffFactor:   2.0,
		FailuresToAlert: 5,
	}
	if c == nil {
		return cfg
	}
	cfg.TickInterval = types.ParseDurationOr(c.TickInterval, cfg.TickInterval)
	cfg.FetchTimeout = types.ParseDurationOr(c.FetchTimeout, cfg.FetchTimeout)
	cfg.BackoffBase = types.ParseDurationOr(c.BackoffBase, cfg.BackoffBase)
	cfg.BackoffMax = types.ParseDurationOr(c.BackoffMax, cfg.BackoffMax)
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.LeaseSafety > 0 {
		cfg.LeaseSafety = c.LeaseSafety
	}
	if c.BackoffFactor > 0 {
		cfg.BackoffFactor = c.BackoffFactor
	}
	if c.FailuresToAlert > 0 {
		cfg.FailuresToAlert = c.FailuresToAlert
	}
	return cfg
}

// LeaseTTL returns the fetch lease duration: expected fetch time times a
// safety factor, so a crashed worker's lease expires on its own.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(float64(c.FetchTimeout) * c.LeaseSafety)
}

// Scheduler runs the sync tick loop.
type Scheduler struct {
	store      store.Store
	quotas     *quota.Registry
	connectors *connector.Guarded
	alertFn    func(types.Alert)
	logger     *slog.Logger
	config     Config

	workers *semaphore.Weighted
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(st store.Store, q *quota.Registry, conns *connector.Guarded, alertFn func(types.Alert), logger *slog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = types.DefaultWorkers
	}
	return &Scheduler{
		store:      st,
		quotas:     q,
		connectors: conns,
		alertFn:    alertFn,
		logger:     logger,
		config:     cfg,
		workers:    semaphore.NewWeighted(cfg.Workers),
		now:        time.Now,
	}
}

// Start begins the scheduler tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("scheduler started", "tick", s.config.TickInterval)

		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()

		// Run immediately on start
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("tick failed", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					s.logger.Error("tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) fireAlert(alert types.Alert) {
	if s.alertFn != nil {
		s.alertFn(alert)
	}
}
