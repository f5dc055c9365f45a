package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"gopkg.in/yaml.v3"
)

// Environment variables applied by [ApplyEnv] on top of the YAML file.
const (
	EnvLeadAPIKey  = "TRADEIN_LEAD_API_KEY"
	EnvLeadBaseURL = "TRADEIN_LEAD_BASE_URL"
	EnvGridPath    = "TRADEIN_GRID_PATH"
	EnvPostgresDSN = "TRADEIN_POSTGRES_DSN"
	EnvLogLevel    = "TRADEIN_LOG_LEVEL"
	EnvListenAddr  = "TRADEIN_LISTEN_ADDR"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. An empty path
// starts from an empty file.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
	}
	cfg, err := load(data, os.LookupEnv)
	if err != nil {
		if path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Environment variables are not consulted. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return load(data, nil)
}

// load decodes data, applies env overrides when lookup is non-nil, fills
// defaults and validates.
func load(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment-specific values from the
// environment. Unset and empty variables leave cfg unchanged.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvLeadAPIKey, &cfg.Lead.APIKey)
	set(EnvLeadBaseURL, &cfg.Lead.BaseURL)
	set(EnvGridPath, &cfg.Grid.Path)
	set(EnvPostgresDSN, &cfg.Grid.PostgresDSN)
	set(EnvListenAddr, &cfg.Server.ListenAddr)
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Lead.UpdatePath == "" {
		cfg.Lead.UpdatePath = DefaultUpdatePath
	}
	if cfg.Lead.SubmitPath == "" {
		cfg.Lead.SubmitPath = DefaultSubmitPath
	}
	if cfg.Lead.Timeout == 0 {
		cfg.Lead.Timeout = DefaultLeadTimeout
	}
	if cfg.Lead.DefaultRegion == "" {
		cfg.Lead.DefaultRegion = DefaultRegion
	}
	if cfg.Lead.BreakerFailures == 0 {
		cfg.Lead.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.Lead.BreakerReset == 0 {
		cfg.Lead.BreakerReset = DefaultBreakerReset
	}
	if cfg.Grid.Path == "" && cfg.Grid.PostgresDSN == "" {
		cfg.Grid.Path = DefaultGridPath
	}
	if cfg.Grid.Table == "" {
		cfg.Grid.Table = DefaultGridTable
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("server.listen_addr %q is invalid: %w", cfg.Server.ListenAddr, err))
		}
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Lead store
	if cfg.Lead.BaseURL == "" {
		slog.Warn("lead.base_url is empty; lead persistence is disabled")
	} else {
		u, err := url.Parse(cfg.Lead.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("lead.base_url %q is invalid: %w", cfg.Lead.BaseURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("lead.base_url %q must use http or https", cfg.Lead.BaseURL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("lead.base_url %q has no host", cfg.Lead.BaseURL))
		}
		if cfg.Lead.APIKey == "" {
			slog.Warn("lead.api_key is empty; the lead store will likely reject requests", "env", EnvLeadAPIKey)
		}
	}
	for name, p := range map[string]string{"lead.update_path": cfg.Lead.UpdatePath, "lead.submit_path": cfg.Lead.SubmitPath} {
		if p != "" && !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s %q must start with /", name, p))
		}
	}
	if t := cfg.Lead.Timeout; t != 0 && (t < MinLeadTimeout || t > MaxLeadTimeout) {
		errs = append(errs, fmt.Errorf("lead.timeout %s is out of range [%s, %s]", t, MinLeadTimeout, MaxLeadTimeout))
	}
	if cfg.Lead.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("lead.breaker_failures %d must not be negative", cfg.Lead.BreakerFailures))
	}
	if cfg.Lead.BreakerReset < 0 {
		errs = append(errs, fmt.Errorf("lead.breaker_reset %s must not be negative", cfg.Lead.BreakerReset))
	}
	if r := cfg.Lead.DefaultRegion; r != "" && !phonenumbers.GetSupportedRegions()[r] {
		errs = append(errs, fmt.Errorf("lead.default_region %q is not a supported phone region", r))
	}

	// Grid
	if strings.ContainsAny(cfg.Grid.Table, " \t\n;") {
		errs = append(errs, fmt.Errorf("grid.table %q is not a plain identifier", cfg.Grid.Table))
	}

	// Extraction
	if th := cfg.Extraction.PhoneticThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("extraction.phonetic_threshold %.2f is out of range [0, 1]", th))
	}

	// Sessions
	if cfg.Sessions.IdleTTL < 0 {
		errs = append(errs, fmt.Errorf("sessions.idle_ttl %s must not be negative", cfg.Sessions.IdleTTL))
	}

	return errors.Join(errs...)
}
