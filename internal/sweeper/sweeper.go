// Package sweeper implements the retention sweeper: it reaps expired,
// non-retained content rows on its own slower cadence.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/store"
	"github.com/driftline-systems/driftline/pkg/types"
)

const sweepLeaseKey = "sweep:global"

// Sweeper deletes content rows whose expiry has passed and whose retention
// reason is empty. A second pass with no new expirations deletes nothing.
type Sweeper struct {
	store     store.Store
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Sweeper.
func New(st store.Store, logger *slog.Logger, cfg *types.SweeperConfig) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	interval := time.Hour
	batch := 500
	if cfg != nil {
		interval = types.ParseDurationOr(cfg.Interval, interval)
		if cfg.BatchSize > 0 {
			batch = cfg.BatchSize
		}
	}
	return &Sweeper{store: st, logger: logger, interval: interval, batchSize: batch, now: time.Now}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sweeper started", "interval", s.interval)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sweeper stopping")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) {
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
		s.logger.Info("sweeper stopped")
	case <-ctx.Done():
		s.logger.Warn("sweeper stop timed out")
	}
}

// Sweep runs one full reap pass across all tenants under a global lease so
// only one sweeper instance sweeps per cycle. Returns rows deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	acquired, err := s.store.AcquireLease(ctx, sweepLeaseKey, s.interval)
	if err != nil {
		return 0, fmt.Errorf("acquiring sweep lease: %w", err)
	}
	if !acquired {
		s.logger.Debug("sweep lease held, skipping")
		return 0, nil
	}
	defer func() {
		if err := s.store.ReleaseLease(ctx, sweepLeaseKey); err != nil {
			s.logger.Error("failed to release sweep lease", "error", err)
		}
	}()

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing tenants: %w", err)
	}

	now := s.now()
	total := 0
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		tenantTotal := 0
		for {
			deleted, err := s.store.DeleteExpiredContent(ctx, tenantID, now, s.batchSize)
			if err != nil {
				s.logger.Error("sweep batch failed", "tenant", tenantID, "error", err)
				break // one tenant's failure never blocks the others
			}
			tenantTotal += deleted
			if deleted < s.batchSize {
				break
			}
		}

		if tenantTotal > 0 {
			total += tenantTotal
			metrics.ContentSwept.Add(float64(tenantTotal))
			if err := s.store.AppendActivity(ctx, types.ActivityEvent{
				EventID:   ulid.Make().String(),
				TenantID:  tenantID,
				Kind:      types.ActivityRetentionSweep,
				Details:   map[string]interface{}{"deleted": tenantTotal},
				Timestamp: now,
			}); err != nil {
				s.logger.Error("failed to append sweep activity", "tenant", tenantID, "error", err)
			}
		}
	}

	s.logger.Info("sweep completed", "deleted", total)
	return total, nil
}
