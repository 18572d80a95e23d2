package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/assembler"
)

// NewContextCmd assembles and prints a tenant's working-context bundle.
func NewContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <tenant-id>",
		Short: "Assemble the budgeted working-context bundle for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenantID := args[0]

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			asm := assembler.New(rt.store, rt.quotas, rt.logger, rt.cfg.Assembler)
			bundle, err := asm.Assemble(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("assembling context: %w", err)
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			yellow := color.New(color.FgYellow)
			red := color.New(color.FgRed)

			bold.Fprintf(out, "Context for %s (%d/%d chars)\n\n", tenantID, bundle.UsedChars, bundle.BudgetChars)

			bold.Fprintln(out, "Facts:")
			if len(bundle.Facts) == 0 {
				fmt.Fprintln(out, "  none")
			}
			for _, f := range bundle.Facts {
				fmt.Fprintf(out, "  %s: %s\n", f.Key, f.Value)
			}

			fmt.Fprintln(out)
			bold.Fprintln(out, "Recent activity:")
			if len(bundle.Activity) == 0 {
				fmt.Fprintln(out, "  none")
			}
			for _, ev := range bundle.Activity {
				fmt.Fprintf(out, "  %s  %s  %s\n", ev.Timestamp.Format("2006-01-02 15:04"), ev.Kind, ev.Message)
			}

			fmt.Fprintln(out)
			bold.Fprintln(out, "Active deliverables:")
			if len(bundle.Deliverables) == 0 {
				fmt.Fprintln(out, "  none")
			}
			for _, d := range bundle.Deliverables {
				freq := string(d.Frequency)
				if freq == "" {
					freq = "ad-hoc"
				}
				line := fmt.Sprintf("  %s  %s (%s)", d.ID, d.Name, freq)
				if d.LastStatus != "" {
					line += fmt.Sprintf(", last version %s", d.LastStatus)
				}
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out)
			bold.Fprintln(out, "Freshness:")
			for _, pf := range bundle.Freshness {
				switch {
				case pf.Suspended > 0:
					red.Fprintf(out, "  %-12s %d resources, %d suspended\n", pf.Platform, pf.Resources, pf.Suspended)
				case pf.NeverSynced > 0:
					yellow.Fprintf(out, "  %-12s %d resources, %d never synced\n", pf.Platform, pf.Resources, pf.NeverSynced)
				default:
					fmt.Fprintf(out, "  %-12s %d resources, oldest sync %s\n", pf.Platform, pf.Resources, formatAge(pf.OldestSync))
				}
			}
			return nil
		},
	}
}
