package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline-systems/driftline/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad_Valid(t *testing.T) {
	dir := writeConfig(t, `
store: dynamodb
dynamodb:
  tableName: driftline
  region: us-east-1
defaultTier: starter
tiers:
  - name: starter
    frequency: daily
    limits:
      platforms: 2
      sources_per_platform: 5
      active_deliverables: 1
  - name: pro
    frequency: hourly
    limits:
      platforms: 10
      sources_per_platform: 50
      active_deliverables: 10
scheduler:
  tickInterval: 1m
  workers: 4
alerts:
  - type: console
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.Store)
	assert.Equal(t, "driftline", cfg.DynamoDB.TableName)
	require.Len(t, cfg.Tiers, 2)
	assert.Equal(t, types.FreqHourly, cfg.Tiers[1].Frequency)
	assert.Equal(t, int64(50), cfg.Tiers[1].Limit(types.ClassSourcesPerPlatform))
	assert.Equal(t, "starter", cfg.DefaultTier)
	require.NotNil(t, cfg.Scheduler)
	assert.Equal(t, "1m", cfg.Scheduler.TickInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing store", `
tiers:
  - name: starter
    frequency: daily
`},
		{"unknown store", `
store: cassandra
tiers:
  - name: starter
    frequency: daily
`},
		{"missing dynamodb section", `
store: dynamodb
tiers:
  - name: starter
    frequency: daily
`},
		{"missing table name", `
store: dynamodb
dynamodb:
  region: us-east-1
tiers:
  - name: starter
    frequency: daily
`},
		{"no tiers", `
store: dynamodb
dynamodb:
  tableName: driftline
`},
		{"duplicate tier", `
store: dynamodb
dynamodb:
  tableName: driftline
tiers:
  - name: starter
    frequency: daily
  - name: starter
    frequency: hourly
`},
		{"bad frequency", `
store: dynamodb
dynamodb:
  tableName: driftline
tiers:
  - name: starter
    frequency: weekly
`},
		{"unknown default tier", `
store: dynamodb
dynamodb:
  tableName: driftline
defaultTier: enterprise
tiers:
  - name: starter
    frequency: daily
`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}
