package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/scheduler"
)

// NewTickCmd runs a single scheduler pass and exits. Per-resource fetch
// failures are recorded as backoff state, not surfaced as a non-zero exit;
// only a coordinator-level failure fails the command.
func NewTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one sync pass across all tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			sched := scheduler.New(rt.store, rt.quotas, rt.connectors, rt.dispatcher.AlertFunc(),
				rt.logger, scheduler.ParseConfig(rt.cfg.Scheduler))
			if err := sched.Tick(ctx); err != nil {
				return fmt.Errorf("tick failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tick complete")
			return nil
		},
	}
}
