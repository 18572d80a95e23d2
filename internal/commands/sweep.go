package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/sweeper"
)

// NewSweepCmd runs a single retention sweep and reports how many
// expired content items were removed.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep over expired content",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			swp := sweeper.New(rt.store, rt.logger, rt.cfg.Sweeper)
			deleted, err := swp.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired items\n", deleted)
			return nil
		},
	}
}
