package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/detector"
	"github.com/driftline-systems/driftline/internal/executor"
)

// NewDetectCmd runs a single detector scan across all tenants. Emitted
// signals trigger executions for matching signal-run deliverables.
func NewDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Run one signal detection scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			exec := executor.New(rt.store, rt.quotas, rt.connectors, executor.NewDigestGenerator(),
				rt.dispatcher.AlertFunc(), rt.logger, executor.ParseConfig(rt.cfg.Executor))
			det := detector.New(rt.store, exec.TriggerSignal, rt.logger, rt.cfg.Detector)
			if err := det.Scan(ctx); err != nil {
				return fmt.Errorf("detection scan failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "scan complete")
			return nil
		},
	}
}
