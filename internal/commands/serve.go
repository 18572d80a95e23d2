package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/detector"
	"github.com/driftline-systems/driftline/internal/executor"
	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/scheduler"
	"github.com/driftline-systems/driftline/internal/sweeper"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd runs the sync scheduler, recurring executor, retention
// sweeper, and signal detector until interrupted.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync, execution, retention, and detection loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}

			alertFn := rt.dispatcher.AlertFunc()
			sched := scheduler.New(rt.store, rt.quotas, rt.connectors, alertFn, rt.logger,
				scheduler.ParseConfig(rt.cfg.Scheduler))
			swp := sweeper.New(rt.store, rt.logger, rt.cfg.Sweeper)
			exec := executor.New(rt.store, rt.quotas, rt.connectors, executor.NewDigestGenerator(),
				alertFn, rt.logger, executor.ParseConfig(rt.cfg.Executor))
			det := detector.New(rt.store, exec.TriggerSignal, rt.logger, rt.cfg.Detector)

			var metricsSrv *metrics.Server
			if rt.cfg.Metrics != nil && rt.cfg.Metrics.Addr != "" {
				metricsSrv = metrics.NewServer(rt.cfg.Metrics.Addr, rt.logger)
				metricsSrv.Start()
			}

			sched.Start(ctx)
			swp.Start(ctx)
			exec.Start(ctx)
			det.Start(ctx)
			rt.logger.Info("driftline running", "store", rt.cfg.Store)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				rt.logger.Info("shutting down", "signal", sig.String())
			case <-ctx.Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			det.Stop(stopCtx)
			exec.Stop(stopCtx)
			swp.Stop(stopCtx)
			sched.Stop(stopCtx)
			if metricsSrv != nil {
				if err := metricsSrv.Stop(stopCtx); err != nil {
					rt.logger.Error("metrics server shutdown failed", "error", err)
				}
			}
			rt.close(stopCtx)
			return nil
		},
	}
}
