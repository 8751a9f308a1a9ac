// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig controls clip and subject persistence.
// Backend selects between "postgres" and "memory".
type DatabaseConfig struct {
	Backend         string `mapstructure:"backend"`
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// YouTubeConfig configures the Data API client.
type YouTubeConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	CallIntervalMs int    `mapstructure:"call_interval_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QuotaConfig bounds daily API unit spend.
type QuotaConfig struct {
	DailyLimit int `mapstructure:"daily_limit"`
}

// CrawlConfig governs the crawl orchestrator.
type CrawlConfig struct {
	BatchSize           int      `mapstructure:"batch_size"`
	InterBatchPauseSec  int      `mapstructure:"inter_batch_pause_seconds"`
	PerSubjectCap       int      `mapstructure:"per_subject_cap"`
	SubjectCostEstimate int      `mapstructure:"subject_cost_estimate"`
	RecencyWindowDays   int      `mapstructure:"recency_window_days"`
	MaxResults          int      `mapstructure:"max_results"`
	HighlightTerms      []string `mapstructure:"highlight_terms"`
}

// ClassifyConfig holds relevance gates and trust lists.
type ClassifyConfig struct {
	Keywords           []string `mapstructure:"keywords"`
	Disallowed         []string `mapstructure:"disallowed"`
	TrustedChannels    []string `mapstructure:"trusted_channels"`
	MinDurationSeconds int      `mapstructure:"min_duration_seconds"`
	MinViews           int64    `mapstructure:"min_views"`
}

// SchedulerConfig controls the cron scheduler loop.
type SchedulerConfig struct {
	JobsPath             string `mapstructure:"jobs_path"`
	TickSeconds          int    `mapstructure:"tick_seconds"`
	ReconcileIntervalMin int    `mapstructure:"reconcile_interval_minutes"`
}

// RunsConfig controls crawl run history persistence.
type RunsConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("youtube.call_interval_ms", 100)
	v.SetDefault("youtube.timeout_seconds", 15)
	v.SetDefault("quota.daily_limit", 10000)
	v.SetDefault("crawl.batch_size", 5)
	v.SetDefault("crawl.inter_batch_pause_seconds", 1)
	v.SetDefault("crawl.per_subject_cap", 50)
	v.SetDefault("crawl.subject_cost_estimate", 110)
	v.SetDefault("crawl.recency_window_days", 365)
	v.SetDefault("crawl.max_results", 50)
	v.SetDefault("crawl.highlight_terms", []string{"직캠", "fancam"})
	v.SetDefault("classify.keywords", []string{"직캠", "fancam", "fan cam", "focus"})
	v.SetDefault("classify.disallowed", []string{"reaction", "reaccion", "mirrored"})
	v.SetDefault("classify.min_duration_seconds", 30)
	v.SetDefault("classify.min_views", 1000)
	v.SetDefault("scheduler.jobs_path", "data/scheduled_jobs.json")
	v.SetDefault("scheduler.tick_seconds", 1)
	v.SetDefault("scheduler.reconcile_interval_minutes", 60)
	v.SetDefault("runs.path", "data/crawl_runs.json")
	v.SetDefault("runs.retention_days", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Database.Backend {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when backend is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.backend must be postgres or memory")
	}
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.SubjectCostEstimate <= 0 {
		return fmt.Errorf("crawl.subject_cost_estimate must be > 0")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CallInterval returns the minimum spacing between provider calls.
func (c YouTubeConfig) CallInterval() time.Duration {
	return time.Duration(c.CallIntervalMs) * time.Millisecond
}

// Timeout returns the provider HTTP timeout.
func (c YouTubeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConnLifetime returns the maximum database connection lifetime.
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMin) * time.Minute
}

// Retention returns the run history retention window.
func (c RunsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Tick returns the scheduler tick interval.
func (c SchedulerConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// ReconcileInterval returns the scheduler reconcile cadence.
func (c SchedulerConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMin) * time.Minute
}
