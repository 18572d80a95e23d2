package types

import "time"

// SchedulerConfig configures the sync scheduler tick loop.
type SchedulerConfig struct {
	TickInterval    string  `yaml:"tickInterval,omitempty" json:"tickInterval,omitempty"`       // default "5m"
	Workers         int64   `yaml:"workers,omitempty" json:"workers,omitempty"`                 // default 8
	FetchTimeout    string  `yaml:"fetchTimeout,omitempty" json:"fetchTimeout,omitempty"`       // default "30s"
	LeaseSafety     float64 `yaml:"leaseSafety,omitempty" json:"leaseSafety,omitempty"`         // lease TTL = fetchTimeout * safety, default 3
	BackoffBase     string  `yaml:"backoffBase,omitempty" json:"backoffBase,omitempty"`         // default "10m"
	BackoffMax      string  `yaml:"backoffMax,omitempty" json:"backoffMax,omitempty"`           // default "6h"
	BackoffFactor   float64 `yaml:"backoffFactor,omitempty" json:"backoffFactor,omitempty"`     // default 2.0
	FailuresToAlert int     `yaml:"failuresToAlert,omitempty" json:"failuresToAlert,omitempty"` // default 5
}

// TickInterval parsing defaults.
const (
	DefaultTickInterval = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
	DefaultLeaseSafety  = 3.0
	DefaultWorkers      = 8
)

// SweeperConfig configures the retention sweeper cadence.
type SweeperConfig struct {
	Interval  string `yaml:"interval,omitempty" json:"interval,omitempty"`   // default "1h"
	BatchSize int    `yaml:"batchSize,omitempty" json:"batchSize,omitempty"` // default 500
}

// DetectorConfig configures the signal detector batch scan.
type DetectorConfig struct {
	Interval       string `yaml:"interval,omitempty" json:"interval,omitempty"`             // default "24h"
	InactivityDays int    `yaml:"inactivityDays,omitempty" json:"inactivityDays,omitempty"` // default 7
	DeadlineDays   int    `yaml:"deadlineDays,omitempty" json:"deadlineDays,omitempty"`     // default 3
	Cooldown       string `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`             // default "72h"
}

// AssemblerConfig bounds the working-context bundle.
type AssemblerConfig struct {
	BudgetChars  int `yaml:"budgetChars,omitempty" json:"budgetChars,omitempty"`   // default 12000
	MaxFacts     int `yaml:"maxFacts,omitempty" json:"maxFacts,omitempty"`         // default 20
	MaxActivity  int `yaml:"maxActivity,omitempty" json:"maxActivity,omitempty"`   // default 50
	MaxDelivered int `yaml:"maxDelivered,omitempty" json:"maxDelivered,omitempty"` // default 10
}

// ExecutorConfig configures deliverable execution.
type ExecutorConfig struct {
	TickInterval    string `yaml:"tickInterval,omitempty" json:"tickInterval,omitempty"`       // recurring-execution pass, default "5m"
	GenerateTimeout string `yaml:"generateTimeout,omitempty" json:"generateTimeout,omitempty"` // default "2m"
	MaxAttempts     int    `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`         // default 3
	RetryBackoff    string `yaml:"retryBackoff,omitempty" json:"retryBackoff,omitempty"`       // default "5s"
	LeaseTTL        string `yaml:"leaseTtl,omitempty" json:"leaseTtl,omitempty"`               // default "10m"
	MaxFacts        int    `yaml:"maxFacts,omitempty" json:"maxFacts,omitempty"`               // default 10
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region" json:"region"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ContentTTL  string `yaml:"contentTtl,omitempty" json:"contentTtl,omitempty"` // default "168h"
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
)

// AlertLevel grades alert severity.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type AlertType `yaml:"type" json:"type"`
	URL  string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path string    `yaml:"path,omitempty" json:"path,omitempty"`
}

// Alert represents a user-visible notification to be dispatched: a source
// that needs reconnecting, a version that failed to generate, a quota
// rejection.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	TenantID  string                 `json:"tenantId,omitempty"`
	Platform  string                 `json:"platform,omitempty"`
	Subject   string                 `json:"subject,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"` // e.g. ":9090"; empty disables the listener
}

// ProjectConfig represents the top-level driftline.yaml configuration.
type ProjectConfig struct {
	Store       string           `yaml:"store"` // "dynamodb"
	DynamoDB    *DynamoDBConfig  `yaml:"dynamodb,omitempty"`
	Scheduler   *SchedulerConfig `yaml:"scheduler,omitempty"`
	Sweeper     *SweeperConfig   `yaml:"sweeper,omitempty"`
	Detector    *DetectorConfig  `yaml:"detector,omitempty"`
	Assembler   *AssemblerConfig `yaml:"assembler,omitempty"`
	Executor    *ExecutorConfig  `yaml:"executor,omitempty"`
	Metrics     *MetricsConfig   `yaml:"metrics,omitempty"`
	Tiers       []TierConfig     `yaml:"tiers"`
	DefaultTier string           `yaml:"defaultTier,omitempty"`
	Alerts      []AlertConfig    `yaml:"alerts,omitempty"`
}

// TierByName returns the named tier, falling back to the default tier and
// then to the first configured tier.
func (c *ProjectConfig) TierByName(name string) (TierConfig, bool) {
	for _, t := range c.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	if name != c.DefaultTier && c.DefaultTier != "" {
		return c.TierByName(c.DefaultTier)
	}
	if len(c.Tiers) > 0 {
		return c.Tiers[0], true
	}
	return TierConfig{}, false
}

// ParseDurationOr parses s, returning fallback when s is empty or invalid.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
