package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; model paths,
// audio bounds, and store settings require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AuthChanged is true if any authentication policy knob changed
	// (threshold, retry cap, challenge lengths).
	AuthChanged bool
	NewAuth     AuthConfig

	// RestartRequired is true if a non-reloadable section changed.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Auth != new.Auth {
		d.AuthChanged = true
		d.NewAuth = new.Auth
	}

	if old.Models != new.Models ||
		old.Audio != new.Audio ||
		old.Session != new.Session ||
		old.Store != new.Store ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
