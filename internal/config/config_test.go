package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/execcore"
`)
	t.Setenv("SECRETS_KMS_KEY", "kms-key")
	t.Setenv("INTERNAL_KEY", "internal-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.DedupWindow)
	assert.Equal(t, 30, cfg.Queue.LeaseSeconds)
	assert.Equal(t, 10, cfg.Queue.HeartbeatIntervalSeconds)
	assert.Equal(t, 15, cfg.Queue.ReaperIntervalSeconds)
	assert.Equal(t, 2, cfg.WorkerPool.WorkersMin)
	assert.Equal(t, 16, cfg.WorkerPool.WorkersMax)
	assert.Equal(t, 1000, cfg.Catalog.CacheSize)
	assert.Equal(t, 300, cfg.Catalog.CacheTTLSeconds)
	assert.Equal(t, 128, cfg.Asset.CacheSize)
	assert.Equal(t, 120, cfg.Asset.CacheTTLSeconds)
	assert.Equal(t, 0.08, cfg.Selector.AmbiguityEpsilon)
	assert.Equal(t, 800, cfg.Selector.LLMTimeoutMS)
}

func TestLoadMissingFileReturnsWrappedError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidYAMLReturnsWrappedError(t *testing.T) {
	path := writeConfig(t, "server: [this is not valid: yaml")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadWithoutSecretsKMSKeyFails(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("INTERNAL_KEY", "internal-key")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRETS_KMS_KEY")
}

func TestLoadWithoutInternalKeyFails(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("SECRETS_KMS_KEY", "kms-key")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INTERNAL_KEY")
}

func TestLoadRejectsInvertedWorkerBounds(t *testing.T) {
	path := writeConfig(t, `
worker_pool:
  workers_min: 10
  workers_max: 2
`)
	t.Setenv("SECRETS_KMS_KEY", "kms-key")
	t.Setenv("INTERNAL_KEY", "internal-key")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers_min/workers_max")
}

func TestEnvironmentOverridesTakePrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, `
queue:
  lease_seconds: 30
`)
	t.Setenv("SECRETS_KMS_KEY", "kms-key")
	t.Setenv("INTERNAL_KEY", "internal-key")
	t.Setenv("QUEUE_LEASE_SECONDS", "45")
	t.Setenv("WORKERS_MAX", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Queue.LeaseSeconds)
	assert.Equal(t, 32, cfg.WorkerPool.WorkersMax)
}

func TestLoadRejectsUnsupportedLogFormat(t *testing.T) {
	path := writeConfig(t, `
server:
  log_format: "xml"
`)
	t.Setenv("SECRETS_KMS_KEY", "kms-key")
	t.Setenv("INTERNAL_KEY", "internal-key")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported log format")
}
