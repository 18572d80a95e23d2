// Package commands implements the CLI subcommands for the driftline binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftline-systems/driftline/internal/alert"
	"github.com/driftline-systems/driftline/internal/config"
	"github.com/driftline-systems/driftline/internal/connector"
	"github.com/driftline-systems/driftline/internal/quota"
	"github.com/driftline-systems/driftline/internal/store"
	ddbstore "github.com/driftline-systems/driftline/internal/store/dynamodb"
	"github.com/driftline-systems/driftline/pkg/types"
)

// localSourcesDir is where the built-in local connector reads from.
const localSourcesDir = "./sources"

// runtime bundles the components every subcommand wires the same way.
type runtime struct {
	cfg        *types.ProjectConfig
	store      store.Store
	quotas     *quota.Registry
	connectors *connector.Guarded
	dispatcher *alert.Dispatcher
	logger     *slog.Logger
}

// newRuntime loads driftline.yaml from the working directory and connects
// the storage backend.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newRuntimeWithConfig(ctx, cfg)
}

func newRuntimeWithConfig(ctx context.Context, cfg *types.ProjectConfig) (*runtime, error) {
	logger := slog.Default()

	st, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	reg := connector.NewRegistry()
	if err := reg.Register(connector.NewLocal(localSourcesDir)); err != nil {
		return nil, fmt.Errorf("registering local connector: %w", err)
	}

	schedCfg := cfg.Scheduler
	if schedCfg == nil {
		schedCfg = &types.SchedulerConfig{}
	}
	fetchTimeout := types.ParseDurationOr(schedCfg.FetchTimeout, types.DefaultFetchTimeout)

	return &runtime{
		cfg:        cfg,
		store:      st,
		quotas:     quota.NewRegistry(st, cfg.Tiers, cfg.DefaultTier, logger),
		connectors: connector.NewGuarded(reg, fetchTimeout),
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

func newStore(cfg *types.ProjectConfig) (store.Store, error) {
	switch cfg.Store {
	case "dynamodb":
		return ddbstore.New(cfg.DynamoDB)
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
}

func (r *runtime) close(ctx context.Context) {
	if err := r.store.Stop(ctx); err != nil {
		r.logger.Error("store shutdown failed", "error", err)
	}
}
