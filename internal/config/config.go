// Package config provides the configuration schema, loader and hot-reload
// watcher for the trade-in service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the trade-in server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultLeadTimeout = 15 * time.Second
	DefaultUpdatePath  = "/api/leads/update"
	DefaultSubmitPath  = "/api/leads/submit"
	DefaultRegion      = "SG"
	DefaultGridPath    = "data/price_grid.csv"
	DefaultGridTable   = "price_grid"
	DefaultServiceName = "tradein"

	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second

	// MinLeadTimeout and MaxLeadTimeout bound lead.timeout.
	MinLeadTimeout = time.Second
	MaxLeadTimeout = 60 * time.Second
)

// Config is the root configuration structure for the trade-in service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Lead       LeadConfig       `yaml:"lead"`
	Grid       GridConfig       `yaml:"grid"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds paths to the TLS certificate and private key.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// LeadConfig configures the hosted lead store.
type LeadConfig struct {
	// BaseURL is the store's origin, e.g. https://leads.example.com. When
	// empty, lead persistence is disabled and every save is a soft failure.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent in the x-api-key header.
	APIKey string `yaml:"api_key"`

	UpdatePath string        `yaml:"update_path"`
	SubmitPath string        `yaml:"submit_path"`
	Timeout    time.Duration `yaml:"timeout"`

	// Notify requests a notification e-mail on submission. Default: true.
	Notify *bool `yaml:"notify"`

	// DefaultRegion is the ISO 3166 region used to format phone numbers.
	DefaultRegion string `yaml:"default_region"`

	// BreakerFailures is the number of consecutive store failures that opens
	// the circuit breaker. Default: 5.
	BreakerFailures int `yaml:"breaker_failures"`

	// BreakerReset is how long an open breaker waits before probing the
	// store again. Default: 30s.
	BreakerReset time.Duration `yaml:"breaker_reset"`
}

// NotifyEnabled resolves Notify with its default.
func (l LeadConfig) NotifyEnabled() bool {
	return l.Notify == nil || *l.Notify
}

// GridConfig selects the price grid source. When both are set, PostgresDSN
// is tried first and Path is the fallback.
type GridConfig struct {
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Table       string `yaml:"table"`

	// Version tags the loaded grid, e.g. "2025-06".
	Version string `yaml:"version"`
}

// ExtractionConfig tunes the extraction engine.
type ExtractionConfig struct {
	// AliasFile is an optional YAML device alias table replacing the
	// built-in one.
	AliasFile string `yaml:"alias_file"`

	// PhoneticThreshold is the Jaro-Winkler floor for misheard device words.
	// Zero keeps the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// DisablePhonetic turns the phonetic fallback off.
	DisablePhonetic bool `yaml:"disable_phonetic"`
}

// SessionsConfig controls checklist session lifetime.
type SessionsConfig struct {
	// IdleTTL evicts sessions without a turn for this long. Zero disables
	// eviction.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}
