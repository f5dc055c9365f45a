package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/MrWong99/tradein/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"listen addr", "server:\n  listen_addr: nope\n", "server.listen_addr"},
		{"tls half", "server:\n  tls:\n    cert_file: cert.pem\n", "server.tls"},
		{"lead scheme", "lead:\n  base_url: ftp://leads.example.com\n", "http or https"},
		{"lead host", "lead:\n  base_url: https://\n", "has no host"},
		{"update path", "lead:\n  update_path: api/update\n", "lead.update_path"},
		{"timeout low", "lead:\n  timeout: 10ms\n", "lead.timeout"},
		{"timeout high", "lead:\n  timeout: 2m\n", "lead.timeout"},
		{"breaker failures", "lead:\n  breaker_failures: -1\n", "lead.breaker_failures"},
		{"breaker reset", "lead:\n  breaker_reset: -5s\n", "lead.breaker_reset"},
		{"region", "lead:\n  default_region: ZZ\n", "lead.default_region"},
		{"table", "grid:\n  table: \"grid; drop\"\n", "grid.table"},
		{"phonetic", "extraction:\n  phonetic_threshold: 1.5\n", "extraction.phonetic_threshold"},
		{"idle ttl", "sessions:\n  idle_ttl: -1m\n", "sessions.idle_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
lead:
  default_region: ZZ
extraction:
  phonetic_threshold: -0.1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "lead.default_region", "extraction.phonetic_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyLeadURLIsAllowed(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	t.Parallel()

	f, err := os.Open("../../configs/tradein.example.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := config.LoadFromReader(f)
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Grid.Path == "" || cfg.Lead.BaseURL == "" {
		t.Errorf("example config lost fields: %+v", cfg)
	}
}
