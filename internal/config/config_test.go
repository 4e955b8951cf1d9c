package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asyncdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "driver: sqlite\ncompression: snappy\nlog_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, "data", cfg.DataDir)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "data_dir: from-file\nservice_name: file-svc\n")
	t.Setenv("ASYNCDB_DATA_DIR", "from-env")
	t.Setenv("ASYNCDB_OTEL_ENDPOINT", "http://localhost:4318")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DataDir)
	assert.Equal(t, "file-svc", cfg.ServiceName)
	assert.Equal(t, "http://localhost:4318", cfg.OTelEndpoint)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "drvier: sqlite\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Driver = "postgres" }, wantErr: `driver "postgres"`},
		{name: "bad compression", mutate: func(c *Config) { c.Compression = "zstd" }, wantErr: "unknown compression"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: `log level "loud"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEngine(t *testing.T) {
	cfg := Default()
	cfg.Compression = "snappy"
	cfg.DataDir = "/tmp/x"

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, store.DriverMattn, ec.Driver)
	assert.Equal(t, "/tmp/x", ec.Dir)
	assert.Equal(t, store.CodecSnappy, ec.Codec)
}
