package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/executor"
	"github.com/driftline-systems/driftline/pkg/types"
)

// NewExecuteCmd runs a single deliverable execution and prints the
// staged draft.
func NewExecuteCmd() *cobra.Command {
	var showDraft bool

	cmd := &cobra.Command{
		Use:   "execute <deliverable-id>",
		Short: "Execute a deliverable and stage a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			exec := executor.New(rt.store, rt.quotas, rt.connectors, executor.NewDigestGenerator(),
				rt.dispatcher.AlertFunc(), rt.logger, executor.ParseConfig(rt.cfg.Executor))

			v, err := exec.Execute(ctx, args[0])
			if err != nil {
				return fmt.Errorf("execution failed: %w", err)
			}

			out := cmd.OutOrStdout()
			switch v.Status {
			case types.VersionStaged:
				color.New(color.FgGreen).Fprintf(out, "staged version %d of %s\n", v.Sequence, v.DeliverableID)
			case types.VersionFailed:
				color.New(color.FgRed).Fprintf(out, "version %d of %s failed: %s\n", v.Sequence, v.DeliverableID, v.FailureReason)
			default:
				fmt.Fprintf(out, "version %d of %s is %s\n", v.Sequence, v.DeliverableID, v.Status)
			}
			if showDraft && v.Draft != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, v.Draft)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDraft, "draft", false, "print the generated draft")
	return cmd
}
