package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.Equal(t, 10, cfg.Workflow.DefaultMaxTurns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 9999
checkpoint:
  backend: redis
  ttl: 1h
workflow:
  default_max_turns: 5
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "redis", cfg.Checkpoint.Backend)
	assert.Equal(t, time.Hour, cfg.Checkpoint.TTL)
	assert.Equal(t, 5, cfg.Workflow.DefaultMaxTurns)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9999\n"), 0o644))

	t.Setenv("FLOWFORGE_SERVER_HTTP_PORT", "7777")
	t.Setenv("FLOWFORGE_CHECKPOINT_BACKEND", "database")
	t.Setenv("FLOWFORGE_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("FLOWFORGE_TELEMETRY_ENABLED", "true")
	t.Setenv("FLOWFORGE_LOG_OUTPUT_PATHS", "stdout, /var/log/flowforge.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "database", cfg.Checkpoint.Backend)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/flowforge.log"}, cfg.Log.OutputPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "1234")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Server.HTTPPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.HTTPPort = -1
	cfg.Checkpoint.Backend = "carrier-pigeon"
	cfg.Telemetry.SampleRate = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "sample_rate")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "forge", SSLMode: "disable",
	}
	assert.Contains(t, db.DSN(), "host=db")
	assert.Contains(t, db.DSN(), "dbname=forge")

	db.Driver = "mysql"
	assert.Contains(t, db.DSN(), "@tcp(db:5432)/forge")

	db.Driver = "sqlite"
	assert.Equal(t, "forge", db.DSN())

	db.Driver = "oracle"
	assert.Empty(t, db.DSN())
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))

	assert.Panics(t, func() { MustLoad(path) })
}
