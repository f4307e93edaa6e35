// Package config loads the shell's settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIdentifier      = "com.sidecarshell.app"
	DefaultListenAddr      = "127.0.0.1:60317"
	DefaultAck             = "message from shell\n"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultReadyTimeout    = 30 * time.Second
)

// Config holds everything that can be set from the config file or flags.
// The backend's host and port are fixed and not configurable.
type Config struct {
	// Identifier names the per-install data dir.
	Identifier string `yaml:"identifier"`
	// Runtime overrides the runtime binary. Empty means the bundled one, then PATH.
	Runtime string `yaml:"runtime"`
	// ResourceDir overrides the resource root holding api/.
	ResourceDir string `yaml:"resource_dir"`
	// DataDir overrides the per-install data dir.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is where the event hub serves subscribers.
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Ack is written to the sidecar after each relayed line. Empty disables it.
	Ack string `yaml:"ack"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ReadyTimeout bounds the backend readiness probe. Zero disables the probe.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	SkipSyncWhenCurrent bool   `yaml:"skip_sync_when_current"`
	LogLevel            string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Identifier:      DefaultIdentifier,
		ListenAddr:      DefaultListenAddr,
		Ack:             DefaultAck,
		ShutdownTimeout: DefaultShutdownTimeout,
		ReadyTimeout:    DefaultReadyTimeout,
		LogLevel:        "info",
	}
}

// Load reads the YAML file at path over Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Identifier == "" {
		errs = append(errs, errors.New("identifier must not be empty"))
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr: %w", err))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if c.ReadyTimeout < 0 {
		errs = append(errs, fmt.Errorf("ready_timeout must not be negative, got %s", c.ReadyTimeout))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Level() (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
