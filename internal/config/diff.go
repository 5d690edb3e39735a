package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; ProvidersChanged
// only signals that a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	OutputEnabledChanged bool
	NewOutputEnabled     bool

	InputEnabledChanged bool
	NewInputEnabled     bool

	KeepRecordingsChanged bool
	NewKeepRecordings     bool

	// ProvidersChanged is true when any provider entry differs. Providers are
	// built once at startup, so the change takes effect after a restart.
	ProvidersChanged bool
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return d == ConfigDiff{}
}

// Changes lists the config keys that differ, in a stable order.
func (d ConfigDiff) Changes() []string {
	var keys []string
	if d.LogLevelChanged {
		keys = append(keys, "server.log_level")
	}
	if d.OutputEnabledChanged {
		keys = append(keys, "narration.output_enabled")
	}
	if d.InputEnabledChanged {
		keys = append(keys, "capture.input_enabled")
	}
	if d.KeepRecordingsChanged {
		keys = append(keys, "capture.keep_recordings")
	}
	if d.ProvidersChanged {
		keys = append(keys, "providers")
	}
	return keys
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Narration.OutputEnabled != new.Narration.OutputEnabled {
		d.OutputEnabledChanged = true
		d.NewOutputEnabled = new.Narration.OutputEnabled
	}
	if old.Capture.InputEnabled != new.Capture.InputEnabled {
		d.InputEnabledChanged = true
		d.NewInputEnabled = new.Capture.InputEnabled
	}
	if old.Capture.KeepRecordings != new.Capture.KeepRecordings {
		d.KeepRecordingsChanged = true
		d.NewKeepRecordings = new.Capture.KeepRecordings
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}

	return d
}
