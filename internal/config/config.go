// Package config handles loading and validation of driftline.yaml project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/driftline-systems/driftline/pkg/types"
)

// FileName is the project configuration file name.
const FileName = "driftline.yaml"

// Load reads and parses driftline.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Store == "" {
		return fmt.Errorf("store is required")
	}
	if cfg.Store != "dynamodb" {
		return fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.DynamoDB == nil {
		return fmt.Errorf("dynamodb config is required when store is dynamodb")
	}
	if cfg.DynamoDB.TableName == "" {
		return fmt.Errorf("dynamodb.tableName is required")
	}
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	seen := make(map[string]bool, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier name is required")
		}
		if seen[tier.Name] {
			return fmt.Errorf("duplicate tier %q", tier.Name)
		}
		seen[tier.Name] = true
		switch tier.Frequency {
		case types.FreqHourly, types.Freq6Hourly, types.FreqDaily:
		default:
			return fmt.Errorf("tier %q has unknown frequency %q", tier.Name, tier.Frequency)
		}
	}
	if cfg.DefaultTier != "" && !seen[cfg.DefaultTier] {
		return fmt.Errorf("defaultTier %q is not a configured tier", cfg.DefaultTier)
	}
	return nil
}
