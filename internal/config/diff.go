package config

// ConfigDiff describes what changed between two configs. The log level takes
// effect immediately on reload; the remaining fields are informational and
// apply after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CaptureChanged bool
	NewCapture     CaptureConfig

	// EndpointChanged is informational; an active session keeps its
	// connection.
	EndpointChanged bool
	NewEndpoint     string
}

// Any reports whether the diff contains any change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.CaptureChanged || d.EndpointChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.Capture != new.Capture {
		d.CaptureChanged = true
		d.NewCapture = new.Capture
	}
	if old.Endpoint != new.Endpoint {
		d.EndpointChanged = true
		d.NewEndpoint = new.Endpoint
	}
	return d
}
