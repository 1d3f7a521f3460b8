package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8090", cfg.SigninURL)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestLoad_NoDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("signin_url: http://signin.internal:8090/\noutput: yaml\n"), 0o600))
	t.Setenv("GUARDCTL_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://signin.internal:8090", cfg.SigninURL)
	assert.Equal(t, "yaml", cfg.Output)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
}

func TestLoad_DefaultFileInHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".guardctl"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".guardctl", "config.yaml"), []byte("output: json\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
}
