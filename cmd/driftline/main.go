package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "driftline",
		Short: "Tier-governed content sync and deliverable generation",
		Long: `Driftline keeps a rolling window of tenant content synced from external
platforms, assembles it into budgeted working context, and executes
deliverable generation jobs under per-tenant tier policy.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewServeCmd(),
		commands.NewTickCmd(),
		commands.NewExecuteCmd(),
		commands.NewSweepCmd(),
		commands.NewDetectCmd(),
		commands.NewStatusCmd(),
		commands.NewContextCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
