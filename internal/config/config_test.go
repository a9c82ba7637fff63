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
env: prod
server:
  port: 9090
  public_url: https://feeds.example.org
db:
  dsn: postgres://u:p@db:5432/feeds
  max_conns: 4
api:
  email: librarian@example.org
  timeout_seconds: 30
crossref:
  base_url: http://crossref.test/
  requests_per_second: 2
openalex:
  batch_size: 25
fetch:
  page_rows: 200
  limit: 400
  concurrency: 2
  queue_depth: 8
schedule:
  enabled: true
  refresh_cron: "15 3 * * *"
rss:
  item_limit: 50
cache:
  redis_addr: redis:6379
  ttl_seconds: 60
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.PublicURL != "https://feeds.example.org" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Development() {
		t.Fatalf("expected prod env")
	}
	if cfg.DB.DSN != "postgres://u:p@db:5432/feeds" || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides, got %+v", cfg.DB)
	}
	if cfg.API.Email != "librarian@example.org" {
		t.Fatalf("expected api email, got %q", cfg.API.Email)
	}
	if cfg.Crossref.BaseURL != "http://crossref.test/" || cfg.Crossref.RequestsPerSecond != 2 {
		t.Fatalf("expected crossref overrides, got %+v", cfg.Crossref)
	}
	if cfg.OpenAlex.BaseURL != "https://api.openalex.org/" || cfg.OpenAlex.BatchSize != 25 {
		t.Fatalf("expected openalex default url and batch override, got %+v", cfg.OpenAlex)
	}
	if cfg.Fetch != (FetchConfig{PageRows: 200, Limit: 400, Concurrency: 2, QueueDepth: 8}) {
		t.Fatalf("expected fetch overrides, got %+v", cfg.Fetch)
	}
	if cfg.Schedule.RefreshCron != "15 3 * * *" {
		t.Fatalf("expected cron override, got %q", cfg.Schedule.RefreshCron)
	}
	if cfg.RSS.ItemLimit != 50 || cfg.Cache.RedisAddr != "redis:6379" {
		t.Fatalf("expected rss/cache overrides")
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("expected request timeout 30s, got %v", got)
	}
	if got := cfg.CacheTTL(); got != time.Minute {
		t.Fatalf("expected cache ttl 1m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Development() {
		t.Fatalf("expected dev env by default")
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.PageRows != 100 || cfg.Fetch.Limit != 1000 || cfg.Fetch.Concurrency != 1 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Crossref.BaseURL != "https://api.crossref.org/" {
		t.Fatalf("unexpected crossref default: %q", cfg.Crossref.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Env:      "dev",
		Server:   ServerConfig{Port: 8000},
		DB:       DBConfig{DSN: "memory://"},
		API:      APIConfig{TimeoutSeconds: 10},
		OpenAlex: OpenAlexConfig{BatchSize: 50},
		Fetch:    FetchConfig{PageRows: 100, Limit: 1000, Concurrency: 1, QueueDepth: 4},
		Schedule: ScheduleConfig{Enabled: true, RefreshCron: "@hourly"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid env", func(c *Config) { c.Env = "staging" }, "env"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing dsn", func(c *Config) { c.DB.DSN = "" }, "db.dsn"},
		{"invalid timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }, "api.timeout_seconds"},
		{"page rows too large", func(c *Config) { c.Fetch.PageRows = 1001 }, "fetch.page_rows"},
		{"page rows zero", func(c *Config) { c.Fetch.PageRows = 0 }, "fetch.page_rows"},
		{"invalid limit", func(c *Config) { c.Fetch.Limit = 0 }, "fetch.limit"},
		{"invalid concurrency", func(c *Config) { c.Fetch.Concurrency = 0 }, "fetch.concurrency"},
		{"invalid queue depth", func(c *Config) { c.Fetch.QueueDepth = 0 }, "fetch.queue_depth"},
		{"batch too large", func(c *Config) { c.OpenAlex.BatchSize = 51 }, "openalex.batch_size"},
		{"missing cron", func(c *Config) { c.Schedule.RefreshCron = " " }, "schedule.refresh_cron"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateAllowsMissingCronWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Env:      "prod",
		Server:   ServerConfig{Port: 1},
		DB:       DBConfig{DSN: "memory://"},
		API:      APIConfig{TimeoutSeconds: 1},
		OpenAlex: OpenAlexConfig{BatchSize: 1},
		Fetch:    FetchConfig{PageRows: 1, Limit: 1, Concurrency: 1, QueueDepth: 1},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
