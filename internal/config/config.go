// Package config provides YAML configuration loading and validation for the
// CodeOrb gateway daemon.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for codeorbd.
type Config struct {
	// Device is the serial device path to the target (e.g.
	// "/dev/ttyUSB0"). Required.
	Device string `yaml:"device"`

	// Baud is the serial line speed. Defaults to 115200 when omitted.
	Baud int `yaml:"baud"`

	// InitCode is the handshake command text sent while waiting for the
	// target's "Debug mode 1" reply. Defaults to "aaaaa" when omitted.
	InitCode string `yaml:"init_code"`

	// RefreshRateMs is the minimum interval, in milliseconds, between two
	// accepted process-tree snapshots. Defaults to 500; clamped to
	// 10..20000.
	RefreshRateMs int `yaml:"refresh_rate_ms"`

	// Monitoring enables periodic process-tree polling. Defaults to true.
	Monitoring *bool `yaml:"monitoring"`

	// ManualControl starts the scheduler paused in CtrlManual rather than
	// running the handshake automatically. Defaults to false.
	ManualControl bool `yaml:"manual_control"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Services holds the listen addresses for the three TCP-facing
	// operator services plus the auxiliary HTTP control surface.
	Services ServicesConfig `yaml:"services"`
}

// ServicesConfig holds listener addresses for CodeOrb's external-facing
// services. Each address is optional: an empty address disables that
// listener rather than failing validation, so a deployment can run, say,
// only the remote shell.
type ServicesConfig struct {
	// ProcTreeAddr is the listen address for the process-tree view service.
	ProcTreeAddr string `yaml:"proctree_addr"`

	// LogStreamAddr is the listen address for the log stream service.
	LogStreamAddr string `yaml:"logstream_addr"`

	// RemoteShellAddr is the listen address for the remote command shell.
	RemoteShellAddr string `yaml:"remoteshell_addr"`

	// HTTPAddr is the listen address for the auxiliary HTTP control
	// surface (/healthz, /api/v1/status, /api/v1/command).
	HTTPAddr string `yaml:"http_addr"`

	// JWTPublicKeyPath, when set, requires a valid RS256 bearer token on
	// every /api/v1 route. Leaving it empty disables auth on those routes,
	// suitable only for a loopback-bound HTTPAddr.
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

const (
	defaultBaud          = 115200
	defaultInitCode      = "aaaaa"
	defaultRefreshRateMs = 500
	minRefreshRateMs     = 10
	maxRefreshRateMs     = 20000
)

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. It returns a typed error
// describing every validation failure encountered, not just the first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.InitCode == "" {
		cfg.InitCode = defaultInitCode
	}
	if cfg.RefreshRateMs == 0 {
		cfg.RefreshRateMs = defaultRefreshRateMs
	}
	if cfg.RefreshRateMs < minRefreshRateMs {
		cfg.RefreshRateMs = minRefreshRateMs
	}
	if cfg.RefreshRateMs > maxRefreshRateMs {
		cfg.RefreshRateMs = maxRefreshRateMs
	}
	if cfg.Monitoring == nil {
		def := true
		cfg.Monitoring = &def
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud %d must be positive", cfg.Baud))
	}

	return errors.Join(errs...)
}
