package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, err)
	}

	for i, ep := range cfg.FallbackEndpoints {
		if err := validateEndpoint(ep); err != nil {
			errs = append(errs, fmt.Errorf("fallback_endpoints[%d]: %w", i, err))
		}
	}

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if t := cfg.Capture.VoiceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("capture.voice_threshold %.3f is out of range [0, 1]", t))
	}
	if cfg.Capture.VoiceCooldownMs < 0 {
		errs = append(errs, fmt.Errorf("capture.voice_cooldown_ms %d must not be negative", cfg.Capture.VoiceCooldownMs))
	}
	if cfg.Capture.LevelIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("capture.level_interval_ms %d must not be negative", cfg.Capture.LevelIntervalMs))
	}
	if cfg.Capture.FrameBuffer < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_buffer %d must not be negative", cfg.Capture.FrameBuffer))
	}

	return errors.Join(errs...)
}

// validateEndpoint checks that the endpoint parses and carries a scheme the
// transport can derive a WebSocket URL from.
func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q is not a valid URL: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("endpoint scheme %q is unsupported; use http(s) or ws(s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return nil
}
