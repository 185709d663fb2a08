package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
databases:
  master:
    host: db.internal
    port: 5433
    user: social
    dbname: social
backend:
  port: 9090
push:
  transport: rabbitmq
  timeout: 500ms
messaging:
  mark_read_default_limit: 20
`)
	require.NoError(t, LoadConfig(path))

	assert.Equal(t, "db.internal", AppConfig.Databases.Master.Host)
	assert.Equal(t, 5433, AppConfig.Databases.Master.Port)
	assert.Equal(t, 9090, AppConfig.Backend.Port)
	assert.Equal(t, "rabbitmq", AppConfig.Push.Transport)
	assert.Equal(t, 500*time.Millisecond, AppConfig.Push.Timeout)
	assert.Equal(t, 4, AppConfig.Push.Workers)
	assert.Equal(t, 20, AppConfig.Messaging.MarkReadDefaultLimit)
	assert.Equal(t, 500, AppConfig.Messaging.MarkReadMaxLimit)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PUSH_TRANSPORT", "redis")
	t.Setenv("REDIS_HOST", "cache.internal")
	path := writeConfig(t, "backend:\n  port: 8081\n")

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "redis", AppConfig.Push.Transport)
	assert.Equal(t, "cache.internal", AppConfig.Redis.Host)
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, "push:\n  transport: carrier-pigeon\n")
	assert.Error(t, LoadConfig(path))
}

func TestLoadConfigMissingFile(t *testing.T) {
	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")))
}
