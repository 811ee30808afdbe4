package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DebounceChanged bool
	NewDebounce     time.Duration

	ExtractionToggled bool
	ExtractionEnabled bool

	// RestartRequired lists sections whose changes only take effect after
	// a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DebounceChanged && !d.ExtractionToggled && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.Debounce != new.Session.Debounce {
		d.DebounceChanged = true
		d.NewDebounce = new.Session.Debounce
	}

	if old.Extraction.IsEnabled() != new.Extraction.IsEnabled() {
		d.ExtractionToggled = true
		d.ExtractionEnabled = new.Extraction.IsEnabled()
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameProvider(old.Providers.LLM, new.Providers.LLM) || len(old.Providers.LLMFallbacks) != len(new.Providers.LLMFallbacks) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

// sameProvider compares the scalar fields of two entries.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
