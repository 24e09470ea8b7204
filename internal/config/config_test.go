package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	configContent := `
server:
  host: "localhost"
  port: 8080
  timeout: "30s"
  max_body_size: 2000000

zoho:
  client_id: "test-client-id"
  client_secret: "test-client-secret"
  refresh_token: "test-refresh-token"
  org_id: "100001"
  accounts_server_url: "https://accounts.zoho.example"
  analytics_server_url: "https://analyticsapi.zoho.example"
  timeout: "45s"
  rate_limit:
    requests_per_second: 5
    burst: 10
  retry:
    max_attempts: 4
    initial_delay: "1s"
    max_delay: "10s"

polling:
  interval: "3s"
  queue_timeout: "40s"
  execution_timeout: "90s"
  query_row_limit: 250

logging:
  level: "debug"
  format: "json"

cache:
  ttl: "300s"
  cleanup_interval: "600s"
`

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0o644))
	t.Setenv("CONFIG_FILE", tmpFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(2_000_000), cfg.Server.MaxBodySize)

	assert.Equal(t, "test-client-id", cfg.Zoho.ClientID)
	assert.Equal(t, "100001", cfg.Zoho.OrgID)
	assert.Equal(t, 45*time.Second, cfg.Zoho.Timeout)
	assert.Equal(t, 5, cfg.Zoho.RateLimit.RequestsPerSecond)
	assert.Equal(t, 4, cfg.Zoho.Retry.MaxAttempts)

	assert.Equal(t, 3*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 40*time.Second, cfg.Polling.QueueTimeout)
	assert.Equal(t, 90*time.Second, cfg.Polling.ExecutionTimeout)
	assert.Equal(t, 250, cfg.Polling.QueryRowLimit)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("QUERY_DATA_POLLING_INTERVAL", "5s")
	t.Setenv("QUERY_DATA_QUEUE_TIMEOUT", "45s")
	t.Setenv("QUERY_DATA_EXECUTION_TIMEOUT", "120s")
	t.Setenv("QUERY_DATA_RESULT_ROW_LIMIT", "500")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("STORAGE_MODE", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_CAPACITY", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 45*time.Second, cfg.Polling.QueueTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Polling.ExecutionTimeout)
	assert.Equal(t, 500, cfg.Polling.QueryRowLimit)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Storage.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Storage.Redis.Addr)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50, cfg.RateLimit.Capacity)
}

func TestDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 30*time.Second, cfg.Polling.QueueTimeout)
	assert.Equal(t, 60*time.Second, cfg.Polling.ExecutionTimeout)
	assert.Equal(t, 100, cfg.Polling.QueryRowLimit)
	assert.Equal(t, 20, cfg.Polling.WorkspaceLimit)
	assert.Equal(t, "memory", cfg.Storage.Mode)
	assert.Equal(t, "https://accounts.zoho.com", cfg.Zoho.AccountsServerURL)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T)
	}{
		{
			name: "missing client id",
			mutate: func(t *testing.T) {
				t.Setenv("ANALYTICS_CLIENT_ID", "")
			},
		},
		{
			name: "missing refresh token",
			mutate: func(t *testing.T) {
				t.Setenv("ANALYTICS_REFRESH_TOKEN", "")
			},
		},
		{
			name: "invalid port",
			mutate: func(t *testing.T) {
				t.Setenv("SERVER_PORT", "70000")
			},
		},
		{
			name: "invalid storage mode",
			mutate: func(t *testing.T) {
				t.Setenv("STORAGE_MODE", "etcd")
			},
		},
		{
			name: "auth enabled without token info url",
			mutate: func(t *testing.T) {
				t.Setenv("AUTH_ENABLED", "true")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			tt.mutate(t)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	// Isolate from any config.yaml in the working directory
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ANALYTICS_CLIENT_ID", "test-client-id")
	t.Setenv("ANALYTICS_CLIENT_SECRET", "test-client-secret")
	t.Setenv("ANALYTICS_REFRESH_TOKEN", "test-refresh-token")
	t.Setenv("ANALYTICS_ORG_ID", "100001")
}
