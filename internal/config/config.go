// Package config provides the configuration schema, loader, and file watcher
// for the voxguide client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the client.
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

// Level converts l to a [slog.Level]. Unknown or empty levels map to info.
func (l LogLevel) Level() slog.Level {
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

// Config is the root configuration structure for the voxguide client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// Endpoint is the guide backend URL. An http(s) origin is mapped to the
	// ws(s) voice endpoint automatically; a full ws(s) URL is used verbatim.
	Endpoint string `yaml:"endpoint"`

	// FallbackEndpoints are tried in order when the primary endpoint keeps
	// failing. Same URL rules as Endpoint.
	FallbackEndpoints []string `yaml:"fallback_endpoints"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	Capture     CaptureConfig     `yaml:"capture"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// CaptureConfig tunes the microphone pipeline. Zero values take the engine's
// defaults. The voice threshold and cooldown are deployment tuning knobs, not
// protocol constants.
type CaptureConfig struct {
	// VoiceThreshold is the RMS level above which a block counts as speech.
	VoiceThreshold float64 `yaml:"voice_threshold"`

	// VoiceCooldownMs is the minimum spacing between voice-activity signals,
	// in milliseconds.
	VoiceCooldownMs int `yaml:"voice_cooldown_ms"`

	// LevelIntervalMs is the cadence of mic-level samples, in milliseconds.
	LevelIntervalMs int `yaml:"level_interval_ms"`

	// FrameBuffer is the uplink frame channel capacity.
	FrameBuffer int `yaml:"frame_buffer"`
}

// VoiceCooldown returns the cooldown as a duration.
func (c CaptureConfig) VoiceCooldown() time.Duration {
	return time.Duration(c.VoiceCooldownMs) * time.Millisecond
}

// LevelInterval returns the level cadence as a duration.
func (c CaptureConfig) LevelInterval() time.Duration {
	return time.Duration(c.LevelIntervalMs) * time.Millisecond
}

// DiagnosticsConfig configures the local diagnostics HTTP endpoint serving
// /metrics, /healthz and /readyz. Disabled when ListenAddr is empty.
type DiagnosticsConfig struct {
	// ListenAddr is the TCP address to serve diagnostics on (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`
}
