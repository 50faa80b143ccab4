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
auth:
  enabled: true
  api_key: secret
harvest:
  workers: 6
  max_docs_per_item: 8
  user_agent: harvest-agent
  respect_robots: false
  queue_depth: 128
search:
  endpoint: https://search.internal
  api_key: search-key
  max_results: 10
  blocked_domains: ["*.ru", "forum.example.com"]
http:
  timeout_seconds: 45
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
ratelimit:
  default_rps: 0.5
  default_burst: 2
scoring:
  acceptance: 0.8
  disagreement: 0.3
  visibility: 0.5
storage:
  backend: local
  base_dir: /tmp/blobs
db:
  dsn: postgres://localhost/specs
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
	if cfg.Harvest.Workers != 6 || cfg.Harvest.RespectRobots {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if len(cfg.Search.BlockedDomains) != 2 || cfg.Search.BlockedDomains[0] != "*.ru" {
		t.Fatalf("expected blocked domains loaded: %+v", cfg.Search.BlockedDomains)
	}
	if cfg.Scoring.Acceptance != 0.8 || cfg.Scoring.Visibility != 0.5 {
		t.Fatalf("expected scoring overrides: %+v", cfg.Scoring)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.BaseDir != "/tmp/blobs" {
		t.Fatalf("expected local storage config: %+v", cfg.Storage)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Harvest.Workers != 4 || cfg.Harvest.UserAgent != "spec-harvester/0.1" {
		t.Fatalf("unexpected harvest defaults: %+v", cfg.Harvest)
	}
	if cfg.Scoring.Acceptance != 0.75 || cfg.Scoring.Disagreement != 0.25 || cfg.Scoring.Visibility != 0.4 {
		t.Fatalf("unexpected scoring defaults: %+v", cfg.Scoring)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("unexpected storage default: %+v", cfg.Storage)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Harvest: HarvestConfig{Workers: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Scoring: ScoringConfig{Acceptance: 0.75, Disagreement: 0.25, Visibility: 0.4},
		Storage: StorageConfig{Backend: "memory"},
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
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Harvest.Workers = 0
				return c
			}(),
			want: "harvest.workers",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
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
		{
			name: "threshold out of range",
			cfg: func() Config {
				c := base
				c.Scoring.Acceptance = 1.5
				return c
			}(),
			want: "scoring.acceptance",
		},
		{
			name: "acceptance below visibility",
			cfg: func() Config {
				c := base
				c.Scoring.Acceptance = 0.3
				c.Scoring.Visibility = 0.4
				return c
			}(),
			want: "scoring.acceptance must be > scoring.visibility",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
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
