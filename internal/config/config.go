package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bizpulse/internal/models"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Google     GoogleConfig     `yaml:"google"`
	Alerting   AlertingConfig   `yaml:"alerting"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// DeferWebhooks stores n8n events as pending; the n8n realtime job processes them.
	DeferWebhooks bool `yaml:"defer_webhooks"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// SchedulerConfig holds process-wide knobs of the sync scheduler.
type SchedulerConfig struct {
	JobTimeout         time.Duration `yaml:"job_timeout"`
	RetrySweepInterval time.Duration `yaml:"retry_sweep_interval"`
	RetrySweepBatch    int           `yaml:"retry_sweep_batch"`
	LeaseTTL           time.Duration `yaml:"lease_ttl"`
	RetentionDays      int           `yaml:"retention_days"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	TenantsFile        string        `yaml:"tenants_file"`
}

type GoogleConfig struct {
	CredentialsFile string  `yaml:"credentials_file"`
	GA4RequestsPerS float64 `yaml:"ga4_requests_per_second"`
	GA4Burst        int     `yaml:"ga4_burst"`
}

type AlertingConfig struct {
	Slack SlackConfig `yaml:"slack"`
	SMTP  SMTPConfig  `yaml:"smtp"`
}

type SlackConfig struct {
	Token          string `yaml:"token"`
	DefaultChannel string `yaml:"default_channel"`
	APIURL         string `yaml:"api_url"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real environment wins
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Scheduler.RetentionDays < 0 {
		return errors.New("scheduler.retention_days must not be negative")
	}
	if c.Scheduler.RetrySweepInterval > 0 && c.Scheduler.RetrySweepInterval < time.Second {
		return errors.New("scheduler.retry_sweep_interval must be at least 1s")
	}
	// аренда не должна истечь раньше таймаута задачи
	if c.Scheduler.LeaseTTL < c.Scheduler.JobTimeout {
		return fmt.Errorf("scheduler.lease_ttl (%s) must not be shorter than scheduler.job_timeout (%s)",
			c.Scheduler.LeaseTTL, c.Scheduler.JobTimeout)
	}
	if c.Database.Backup.Enabled {
		if c.Database.Backup.StoragePath == "" {
			return errors.New("database.backup.storage_path is required when backups are enabled")
		}
		if err := ValidateCronExpression(c.Database.Backup.Schedule); err != nil {
			return fmt.Errorf("database.backup.schedule: %w", err)
		}
	}
	if c.API.Auth.Enabled {
		for _, k := range c.API.Auth.APIKeys {
			if strings.TrimSpace(k.Key) == "" {
				return fmt.Errorf("api key %q has empty key", k.Name)
			}
		}
	}
	return nil
}

// ValidateCronExpression checks a standard 5-field cron expression.
func ValidateCronExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return errors.New("cron expression is empty")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ValidateSyncConfig checks schedules and retry policy of a tenant config.
func ValidateSyncConfig(sc *models.SyncConfig) error {
	if sc == nil {
		return errors.New("sync config is nil")
	}
	if strings.TrimSpace(sc.BusinessEntityID) == "" {
		return errors.New("business entity id is required")
	}
	for _, family := range models.SyncFamilies {
		s, _ := sc.ScheduleFor(family)
		if !s.Enabled {
			continue
		}
		if err := ValidateCronExpression(s.Schedule); err != nil {
			return fmt.Errorf("%s: %w", family, err)
		}
	}

	rc := sc.RetryConfig
	if rc.MaxRetries < 0 {
		return errors.New("retry_config.max_retries must not be negative")
	}
	if rc.InitialDelay <= 0 {
		return errors.New("retry_config.initial_delay must be positive")
	}
	if rc.MaxDelay < rc.InitialDelay {
		return errors.New("retry_config.max_delay must be >= initial_delay")
	}
	if rc.BackoffMultiplier < 1 {
		return errors.New("retry_config.backoff_multiplier must be >= 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bizpulse-syncd"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Database.Backup.Schedule == "" {
		c.Database.Backup.Schedule = "30 1 * * *"
	}
	if c.Database.Backup.RetentionDays == 0 {
		c.Database.Backup.RetentionDays = 7
	}

	// Scheduler defaults
	if c.Scheduler.JobTimeout == 0 {
		c.Scheduler.JobTimeout = 10 * time.Minute
	}
	if c.Scheduler.RetrySweepInterval == 0 {
		c.Scheduler.RetrySweepInterval = time.Minute
	}
	if c.Scheduler.RetrySweepBatch == 0 {
		c.Scheduler.RetrySweepBatch = 50
	}
	if c.Scheduler.LeaseTTL == 0 {
		c.Scheduler.LeaseTTL = 15 * time.Minute
	}
	if c.Scheduler.RetentionDays == 0 {
		c.Scheduler.RetentionDays = models.DefaultRetentionDays
	}
	if c.Scheduler.ShutdownTimeout == 0 {
		c.Scheduler.ShutdownTimeout = 30 * time.Second
	}

	if c.Google.GA4RequestsPerS == 0 {
		c.Google.GA4RequestsPerS = 5
	}
	if c.Google.GA4Burst == 0 {
		c.Google.GA4Burst = 5
	}
	if c.Alerting.SMTP.Port == 0 {
		c.Alerting.SMTP.Port = 587
	}
}
