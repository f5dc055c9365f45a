package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked individually;
// everything else folds into RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GridChanged is set when the grid source or version changed and the
	// price grid should be reloaded.
	GridChanged bool

	// ExtractionChanged is set when the alias file or phonetic settings
	// changed and the extraction engine should be rebuilt.
	ExtractionChanged bool

	// RestartRequired lists settings that changed but only take effect after
	// a restart, by their YAML path.
	RestartRequired []string
}

// Changed reports whether d carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GridChanged || d.ExtractionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Grid != new.Grid {
		d.GridChanged = true
	}
	if old.Extraction != new.Extraction {
		d.ExtractionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !sameLead(old.Lead, new.Lead) {
		d.RestartRequired = append(d.RestartRequired, "lead")
	}
	if old.Sessions != new.Sessions {
		d.RestartRequired = append(d.RestartRequired, "sessions")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameLead(a, b LeadConfig) bool {
	return a.BaseURL == b.BaseURL &&
		a.APIKey == b.APIKey &&
		a.UpdatePath == b.UpdatePath &&
		a.SubmitPath == b.SubmitPath &&
		a.Timeout == b.Timeout &&
		a.NotifyEnabled() == b.NotifyEnabled() &&
		a.DefaultRegion == b.DefaultRegion &&
		a.BreakerFailures == b.BreakerFailures &&
		a.BreakerReset == b.BreakerReset
}
