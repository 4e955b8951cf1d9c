// Package config resolves runtime settings from defaults, an optional YAML
// file and ASYNCDB_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/store"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Driver selects the SQLite provider: "sqlite3" or "sqlite".
	Driver string `yaml:"driver" env:"ASYNCDB_DRIVER"`

	// DataDir holds one database file per database name. Empty keeps
	// databases in memory.
	DataDir string `yaml:"data_dir" env:"ASYNCDB_DATA_DIR"`

	// Compression is the stored value codec: "none" or "snappy".
	Compression string `yaml:"compression" env:"ASYNCDB_COMPRESSION"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"ASYNCDB_LOG_LEVEL"`

	// OTelEndpoint is the OTLP/HTTP trace endpoint URL. Empty disables
	// tracing.
	OTelEndpoint string `yaml:"otel_endpoint" env:"ASYNCDB_OTEL_ENDPOINT"`

	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `yaml:"service_name" env:"ASYNCDB_SERVICE_NAME"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Driver:      store.DriverMattn,
		DataDir:     "data",
		Compression: "none",
		LogLevel:    "info",
		ServiceName: "asyncdb",
	}
}

// Load resolves the configuration. path may be empty; a named file must
// exist. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field that has a closed set of values.
func (c Config) Validate() error {
	var errs []error
	switch c.Driver {
	case store.DriverMattn, store.DriverModernc:
	default:
		errs = append(errs, fmt.Errorf("driver %q: must be %s or %s", c.Driver, store.DriverMattn, store.DriverModernc))
	}
	if _, err := store.ParseCodec(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Engine returns the storage engine configuration.
func (c Config) Engine() (engine.Config, error) {
	codec, err := store.ParseCodec(c.Compression)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{Driver: c.Driver, Dir: c.DataDir, Codec: codec}, nil
}
