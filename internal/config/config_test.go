package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tradein/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  tls:
    cert_file: /etc/tradein/cert.pem
    key_file: /etc/tradein/key.pem
lead:
  base_url: https://leads.example.com
  api_key: test-key
  update_path: /v2/leads/update
  submit_path: /v2/leads/submit
  timeout: 5s
  notify: false
  default_region: MY
  breaker_failures: 3
  breaker_reset: 1m
grid:
  postgres_dsn: postgres://tradein@localhost/tradein
  table: grid_2025_06
  version: "2025-06"
extraction:
  alias_file: aliases.yaml
  phonetic_threshold: 0.9
sessions:
  idle_ttl: 30m
telemetry:
  service_name: tradein-sg
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	off := false
	want := &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":9000",
			LogLevel:   config.LogDebug,
			TLS:        &config.TLSConfig{CertFile: "/etc/tradein/cert.pem", KeyFile: "/etc/tradein/key.pem"},
		},
		Lead: config.LeadConfig{
			BaseURL:         "https://leads.example.com",
			APIKey:          "test-key",
			UpdatePath:      "/v2/leads/update",
			SubmitPath:      "/v2/leads/submit",
			Timeout:         5 * time.Second,
			Notify:          &off,
			DefaultRegion:   "MY",
			BreakerFailures: 3,
			BreakerReset:    time.Minute,
		},
		Grid: config.GridConfig{
			PostgresDSN: "postgres://tradein@localhost/tradein",
			Table:       "grid_2025_06",
			Version:     "2025-06",
		},
		Extraction: config.ExtractionConfig{AliasFile: "aliases.yaml", PhoneticThreshold: 0.9},
		Sessions:   config.SessionsConfig{IdleTTL: 30 * time.Minute},
		Telemetry:  config.TelemetryConfig{ServiceName: "tradein-sg"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Lead.NotifyEnabled() {
		t.Error("NotifyEnabled = true, want false")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Lead.Timeout != config.DefaultLeadTimeout {
		t.Errorf("lead.timeout: got %s, want %s", cfg.Lead.Timeout, config.DefaultLeadTimeout)
	}
	if cfg.Lead.UpdatePath != config.DefaultUpdatePath || cfg.Lead.SubmitPath != config.DefaultSubmitPath {
		t.Errorf("lead paths: got %q and %q", cfg.Lead.UpdatePath, cfg.Lead.SubmitPath)
	}
	if !cfg.Lead.NotifyEnabled() {
		t.Error("NotifyEnabled = false, want true by default")
	}
	if cfg.Lead.DefaultRegion != config.DefaultRegion {
		t.Errorf("default_region: got %q, want %q", cfg.Lead.DefaultRegion, config.DefaultRegion)
	}
	if cfg.Lead.BreakerFailures != config.DefaultBreakerFailures || cfg.Lead.BreakerReset != config.DefaultBreakerReset {
		t.Errorf("lead breaker: got %d and %s", cfg.Lead.BreakerFailures, cfg.Lead.BreakerReset)
	}
	if cfg.Grid.Path != config.DefaultGridPath || cfg.Grid.Table != config.DefaultGridTable {
		t.Errorf("grid: got %+v", cfg.Grid)
	}
	if cfg.Telemetry.ServiceName != config.DefaultServiceName {
		t.Errorf("service_name: got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_PostgresKeepsEmptyPath(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("grid:\n  postgres_dsn: postgres://localhost/grid\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Grid.Path != "" {
		t.Errorf("grid.path = %q, want empty when postgres_dsn is set", cfg.Grid.Path)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: red\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvLeadAPIKey, "from-env")
	t.Setenv(config.EnvLeadBaseURL, "https://env.example.com")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Lead.APIKey != "from-env" || cfg.Lead.BaseURL != "https://env.example.com" {
		t.Errorf("env overrides not applied: %+v", cfg.Lead)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		config.EnvLeadAPIKey:  "k",
		config.EnvGridPath:    "/srv/grid.csv",
		config.EnvPostgresDSN: "",
		config.EnvLogLevel:    "DEBUG",
		config.EnvListenAddr:  ":7000",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	cfg := &config.Config{Grid: config.GridConfig{PostgresDSN: "postgres://keep"}}
	config.ApplyEnv(cfg, lookup)

	if cfg.Lead.APIKey != "k" {
		t.Errorf("api_key: got %q", cfg.Lead.APIKey)
	}
	if cfg.Grid.Path != "/srv/grid.csv" {
		t.Errorf("grid.path: got %q", cfg.Grid.Path)
	}
	if cfg.Grid.PostgresDSN != "postgres://keep" {
		t.Errorf("empty env var overwrote postgres_dsn: %q", cfg.Grid.PostgresDSN)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.SlogLevel(); got != want {
			t.Errorf("%q.SlogLevel() = %v, want %v", in, got, want)
		}
	}
}
