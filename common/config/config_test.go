package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfig_ConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "guard", Password: "s3cr@t", Database: "cloudguard", SSLMode: "disable"}
	assert.Equal(t, "postgres://guard:s3cr%40t@db:5432/cloudguard?sslmode=disable", p.ConnString())

	p.URL = "postgres://override"
	assert.Equal(t, "postgres://override", p.ConnString())
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, ":8090", ServerConfig{Port: 8090}.Addr())
}

func TestNewViper_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\nlogging:\n  level: debug\n"), 0o600))

	t.Setenv("TESTSVC_LOGGING_FORMAT", "text")

	v, err := NewViper("TESTSVC", path)
	require.NoError(t, err)
	SetCommonDefaults(v, 8080)

	var cfg struct {
		Server  ServerConfig  `mapstructure:"server"`
		Logging LoggingConfig `mapstructure:"logging"`
		NATS    NATSConfig    `mapstructure:"nats"`
	}
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
}

func TestNewViper_MissingExplicitFile(t *testing.T) {
	_, err := NewViper("TESTSVC", "/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewViper_NoFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := NewViper("TESTSVC", "")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CLOUDGUARD_DOTENV_TEST=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CLOUDGUARD_DOTENV_TEST") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("CLOUDGUARD_DOTENV_TEST"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "nothing-here.env")))
}
