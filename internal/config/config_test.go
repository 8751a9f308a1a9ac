package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 45
auth:
  enabled: true
  api_key: secret
database:
  backend: postgres
  dsn: postgres://localhost/pulse
  max_conns: 20
youtube:
  api_key: yt-key
  call_interval_ms: 250
quota:
  daily_limit: 5000
crawl:
  batch_size: 3
  per_subject_cap: 25
  highlight_terms: ["직캠"]
classify:
  keywords: ["직캠", "fancam"]
  trusted_channels: ["MBCkpop"]
  min_views: 500
scheduler:
  jobs_path: /tmp/jobs.json
  tick_seconds: 2
runs:
  path: /tmp/runs.json
  retention_days: 7
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Database.Backend != "postgres" || cfg.Database.MaxConns != 20 {
		t.Fatalf("expected database overrides to apply: %+v", cfg.Database)
	}
	if cfg.YouTube.CallInterval() != 250*time.Millisecond {
		t.Fatalf("expected call interval 250ms, got %v", cfg.YouTube.CallInterval())
	}
	if cfg.Quota.DailyLimit != 5000 {
		t.Fatalf("expected quota limit 5000, got %d", cfg.Quota.DailyLimit)
	}
	if cfg.Crawl.BatchSize != 3 || cfg.Crawl.PerSubjectCap != 25 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if len(cfg.Classify.TrustedChannels) != 1 || cfg.Classify.TrustedChannels[0] != "MBCkpop" {
		t.Fatalf("expected trusted channels to load: %+v", cfg.Classify)
	}
	if cfg.Runs.Retention() != 7*24*time.Hour {
		t.Fatalf("expected 7 day retention, got %v", cfg.Runs.Retention())
	}
	// Defaults survive partial overrides.
	if cfg.Crawl.SubjectCostEstimate != 110 {
		t.Fatalf("expected default subject cost estimate, got %d", cfg.Crawl.SubjectCostEstimate)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Backend != "memory" {
		t.Fatalf("expected memory backend by default, got %q", cfg.Database.Backend)
	}
	if cfg.Quota.DailyLimit != 10000 {
		t.Fatalf("expected default quota 10000, got %d", cfg.Quota.DailyLimit)
	}
	if cfg.Scheduler.Tick() != time.Second {
		t.Fatalf("expected 1s tick, got %v", cfg.Scheduler.Tick())
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Database:  DatabaseConfig{Backend: "memory"},
		Quota:     QuotaConfig{DailyLimit: 10000},
		Crawl:     CrawlConfig{BatchSize: 5, SubjectCostEstimate: 110},
		Scheduler: SchedulerConfig{TickSeconds: 1},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.Database.Backend = "postgres"
				return c
			}(),
			want: "database.dsn",
		},
		{
			name: "unknown backend",
			cfg: func() Config {
				c := base
				c.Database.Backend = "mysql"
				return c
			}(),
			want: "database.backend",
		},
		{
			name: "invalid quota",
			cfg: func() Config {
				c := base
				c.Quota.DailyLimit = 0
				return c
			}(),
			want: "quota.daily_limit",
		},
		{
			name: "invalid batch size",
			cfg: func() Config {
				c := base
				c.Crawl.BatchSize = 0
				return c
			}(),
			want: "crawl.batch_size",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
