package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/pkg/types"
)

// NewStatusCmd prints a tenant's tier usage, sync cursors, and
// deliverables.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tenant-id>",
		Short: "Show quota, sync, and deliverable state for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenantID := args[0]

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			red := color.New(color.FgRed)

			q, err := rt.store.GetQuota(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("loading quota: %w", err)
			}
			if q == nil {
				yellow.Fprintf(out, "tenant %s has no quota record\n", tenantID)
				return nil
			}

			tier, ok := rt.cfg.TierByName(q.Tier)
			bold.Fprintf(out, "Tenant %s (tier %s)\n\n", tenantID, q.Tier)

			bold.Fprintln(out, "Usage:")
			classes := make([]types.ResourceClass, 0, len(q.Usage))
			for class := range q.Usage {
				classes = append(classes, class)
			}
			sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
			for _, class := range classes {
				used := q.Usage[class]
				if limit := tier.Limit(class); ok && limit > 0 {
					line := fmt.Sprintf("  %-24s %d / %d\n", class, used, limit)
					if used >= limit {
						red.Fprint(out, line)
					} else {
						fmt.Fprint(out, line)
					}
				} else {
					fmt.Fprintf(out, "  %-24s %d\n", class, used)
				}
			}

			cursors, err := rt.store.ListCursors(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("loading cursors: %w", err)
			}
			fmt.Fprintln(out)
			bold.Fprintln(out, "Sources:")
			if len(cursors) == 0 {
				fmt.Fprintln(out, "  none selected")
			}
			for _, c := range cursors {
				switch {
				case c.Suspended:
					red.Fprintf(out, "  %s/%s  suspended: %s\n", c.Resource.Platform, c.Resource.ID, c.SuspendedReason)
				case c.ConsecutiveFailures > 0:
					yellow.Fprintf(out, "  %s/%s  %d consecutive failures, last success %s\n",
						c.Resource.Platform, c.Resource.ID, c.ConsecutiveFailures, formatAge(c.LastSuccess))
				default:
					green.Fprintf(out, "  %s/%s  synced %s\n", c.Resource.Platform, c.Resource.ID, formatAge(c.LastSuccess))
				}
			}

			deliverables, err := rt.store.ListDeliverables(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("loading deliverables: %w", err)
			}
			fmt.Fprintln(out)
			bold.Fprintln(out, "Deliverables:")
			if len(deliverables) == 0 {
				fmt.Fprintln(out, "  none")
			}
			for _, d := range deliverables {
				fmt.Fprintf(out, "  %s  %s (%s)\n", d.ID, d.Name, d.Status)
			}
			return nil
		},
	}
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
