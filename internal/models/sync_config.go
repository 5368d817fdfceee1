package models

import "time"

// Schedule holds the enable flag and cron expression of one job family.
type Schedule struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"`
}

// RetryConfig controls backoff of failed jobs. Delays are milliseconds.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
	InitialDelay      int64   `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay          int64   `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// AlertingConfig controls terminal failure notifications.
type AlertingConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	EmailRecipients []string `json:"email_recipients" yaml:"email_recipients"`
	SlackChannel    string   `json:"slack_channel,omitempty" yaml:"slack_channel"`
}

// SyncConfig is the per-tenant scheduling and retry policy.
type SyncConfig struct {
	ID               string         `json:"id"`
	BusinessEntityID string         `json:"business_entity_id"`
	GA4              Schedule       `json:"ga4"`
	N8n              Schedule       `json:"n8n"`
	Cleanup          Schedule       `json:"cleanup"`
	RetryConfig      RetryConfig    `json:"retry_config"`
	Alerting         AlertingConfig `json:"alerting"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ScheduleFor returns the schedule of a job family.
func (c *SyncConfig) ScheduleFor(family string) (Schedule, bool) {
	switch family {
	case JobTypeGA4Daily:
		return c.GA4, true
	case JobTypeN8nRealtime:
		return c.N8n, true
	case JobTypeCleanup:
		return c.Cleanup, true
	default:
		return Schedule{}, false
	}
}

// EnabledFamilies returns families with an enabled schedule.
func (c *SyncConfig) EnabledFamilies() []string {
	var out []string
	for _, f := range SyncFamilies {
		if s, _ := c.ScheduleFor(f); s.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// ApplyDefaults fills zero values with onboarding defaults.
// MaxRetries is defaulted only when no retry policy is given at all: an explicit
// zero next to other retry fields means "do not retry".
func (c *SyncConfig) ApplyDefaults() {
	if c.GA4.Schedule == "" {
		c.GA4.Schedule = DefaultGA4Schedule
	}
	if c.N8n.Schedule == "" {
		c.N8n.Schedule = DefaultN8nSchedule
	}
	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = DefaultCleanupSchedule
	}
	if c.RetryConfig == (RetryConfig{}) {
		c.RetryConfig.MaxRetries = DefaultMaxRetries
	}
	if c.RetryConfig.InitialDelay == 0 {
		c.RetryConfig.InitialDelay = DefaultInitialDelayMs
	}
	if c.RetryConfig.MaxDelay == 0 {
		c.RetryConfig.MaxDelay = DefaultMaxDelayMs
	}
	if c.RetryConfig.BackoffMultiplier == 0 {
		c.RetryConfig.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

// DefaultSyncConfig returns the onboarding config for a tenant.
func DefaultSyncConfig(tenantID string) *SyncConfig {
	cfg := &SyncConfig{
		BusinessEntityID: tenantID,
		GA4:              Schedule{Enabled: true},
		N8n:              Schedule{Enabled: true},
		Cleanup:          Schedule{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}
