package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "taskmeshd", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 5, cfg.Webhook.MaxRetries)
	assert.Equal(t, 8, cfg.Executor.MaxConcurrency)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverlaysEnvOverDefaults(t *testing.T) {
	t.Setenv("TASKMESH_PORT", "9090")
	t.Setenv("TASKMESH_WEBHOOK_MAX_RETRIES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 7, cfg.Webhook.MaxRetries)
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/taskmesh.yaml"
	content := "name: custom-mesh\nport: 9191\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-mesh", cfg.Name)
	assert.Equal(t, 9191, cfg.Port)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := Default()
	cfg.Executor.MaxConcurrency = 0
	assert.Error(t, cfg.Validate())
}
