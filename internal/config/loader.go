package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/proctorly/vigil/pkg/analysis"
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

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	if cfg.Analysis.CalibrationPreset != "" {
		if _, err := analysis.PresetByName(cfg.Analysis.CalibrationPreset); err != nil {
			errs = append(errs, fmt.Errorf("analysis.calibration_preset %q is invalid; valid values: precise, fast", cfg.Analysis.CalibrationPreset))
		}
	}
	if r := cfg.Analysis.SpeechRatioThreshold; r < 0 || r >= 1 {
		errs = append(errs, fmt.Errorf("analysis.speech_ratio_threshold %.2f is out of range [0, 1)", r))
	}
	if d := cfg.Analysis.FaceMismatchThreshold; d < 0 || d > 2 {
		errs = append(errs, fmt.Errorf("analysis.face_mismatch_threshold %.2f is out of range [0, 2]", d))
	}
	if n := cfg.Analysis.OcclusionLandmarkMinimum; n < 0 {
		errs = append(errs, fmt.Errorf("analysis.occlusion_landmark_minimum %d must not be negative", n))
	}

	if cfg.Alerts.CooldownPeriod < 0 {
		errs = append(errs, fmt.Errorf("alerts.cooldown_period %s must not be negative", cfg.Alerts.CooldownPeriod))
	}

	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; violation events will not survive a restart")
	}

	return errors.Join(errs...)
}
