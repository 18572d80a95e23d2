package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftline-systems/driftline/internal/config"
)

const exampleConfig = `# Driftline project configuration.
store: dynamodb

dynamodb:
  tableName: driftline
  region: us-east-1
  # Point at DynamoDB Local for development.
  endpoint: http://localhost:8000
  createTable: true

tiers:
  - name: starter
    frequency: daily
    limits:
      platforms: 2
      sources_per_platform: 5
      active_deliverables: 1
      monthly_interactions: 100
  - name: growth
    frequency: 6-hourly
    limits:
      platforms: 5
      sources_per_platform: 25
      active_deliverables: 5
      monthly_interactions: 1000
  - name: scale
    frequency: hourly
    limits:
      platforms: 20
      sources_per_platform: 100
      active_deliverables: 25
      monthly_interactions: 10000

defaultTier: starter

scheduler:
  tickInterval: 5m
  workers: 8

sweeper:
  interval: 1h
  batchSize: 500

detector:
  interval: 24h
  inactivityDays: 7
  cooldown: 72h

executor:
  tickInterval: 5m

metrics:
  addr: ":9090"

alerts:
  - type: console
`

const exampleSource = `Welcome to Driftline.

Drop files under sources/<resource-id>/ and the local connector picks up
anything modified since the last sync.
`

// NewInitCmd scaffolds a project: config file plus a sources directory
// the local connector can sync from.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a driftline project in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(config.FileName); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.FileName)
			}

			if err := os.WriteFile(config.FileName, []byte(exampleConfig), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", config.FileName, err)
			}

			exampleDir := filepath.Join(localSourcesDir, "getting-started")
			if err := os.MkdirAll(exampleDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", exampleDir, err)
			}
			readme := filepath.Join(exampleDir, "welcome.txt")
			if _, err := os.Stat(readme); os.IsNotExist(err) {
				if err := os.WriteFile(readme, []byte(exampleSource), 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", readme, err)
				}
			}

			green := color.New(color.FgGreen)
			green.Fprintf(cmd.OutOrStdout(), "Created %s\n", config.FileName)
			green.Fprintf(cmd.OutOrStdout(), "Created %s\n", exampleDir)
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Next steps:")
			fmt.Fprintln(cmd.OutOrStdout(), "  1. Start DynamoDB Local: docker run -p 8000:8000 amazon/dynamodb-local")
			fmt.Fprintln(cmd.OutOrStdout(), "  2. Run the loops:        driftline serve")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
