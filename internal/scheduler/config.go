package scheduler

import (
	"time"

	"github.com/smallbiznis/recurra/internal/config"
)

// Config controls job schedules and batch sizes.
type Config struct {
	Enabled             bool
	BatchSize           int
	RelayBatchSize      int
	JobTimeout          time.Duration
	// RetryBackoff is how long a subscription whose scheduled charge failed
	// is left alone before the next automatic attempt.
	RetryBackoff        time.Duration
	ProcessDueSchedule  string
	AutoResolveSchedule string
	OutboxRelaySchedule string
	EnabledJobs         []string
}

func DefaultConfig() Config {
	return Config{
		BatchSize:           50,
		RelayBatchSize:      100,
		JobTimeout:          30 * time.Second,
		RetryBackoff:        time.Hour,
		ProcessDueSchedule:  "@every 1m",
		AutoResolveSchedule: "@every 10m",
		OutboxRelaySchedule: "@every 5s",
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:             cfg.SchedulerEnabled,
		BatchSize:           cfg.SchedulerBatchSize,
		ProcessDueSchedule:  cfg.ProcessDueSchedule,
		AutoResolveSchedule: cfg.AutoResolveSchedule,
		OutboxRelaySchedule: cfg.OutboxRelaySchedule,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RelayBatchSize <= 0 {
		c.RelayBatchSize = defaults.RelayBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.ProcessDueSchedule == "" {
		c.ProcessDueSchedule = defaults.ProcessDueSchedule
	}
	if c.AutoResolveSchedule == "" {
		c.AutoResolveSchedule = defaults.AutoResolveSchedule
	}
	if c.OutboxRelaySchedule == "" {
		c.OutboxRelaySchedule = defaults.OutboxRelaySchedule
	}
	return c
}
