package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Zoho      ZohoConfig      `yaml:"zoho"`
	Polling   PollingConfig   `yaml:"polling"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxBodySize int64         `yaml:"max_body_size"`
}

// ZohoConfig represents Zoho Analytics API client configuration
type ZohoConfig struct {
	ClientID           string          `yaml:"client_id"`
	ClientSecret       string          `yaml:"client_secret"`
	RefreshToken       string          `yaml:"refresh_token"`
	OrgID              string          `yaml:"org_id"`
	AccountsServerURL  string          `yaml:"accounts_server_url"`
	AnalyticsServerURL string          `yaml:"analytics_server_url"`
	Timeout            time.Duration   `yaml:"timeout"`
	RateLimit          ClientRateLimit `yaml:"rate_limit"`
	Retry              RetryConfig     `yaml:"retry"`
}

// ClientRateLimit represents outbound request rate limiting configuration
type ClientRateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// RetryConfig represents retry configuration for transient API failures
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// PollingConfig represents bulk-job polling budgets and data limits
type PollingConfig struct {
	Interval         time.Duration `yaml:"interval"`
	QueueTimeout     time.Duration `yaml:"queue_timeout"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	QueryRowLimit    int           `yaml:"query_row_limit"`
	ViewListSize     int           `yaml:"view_list_size"`
	WorkspaceLimit   int           `yaml:"workspace_limit"`
	DataDir          string        `yaml:"data_dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig represents metadata cache configuration
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// AuthConfig represents authentication configuration for the HTTP surface
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TokenInfoURL string        `yaml:"token_info_url"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// StorageConfig selects the backend for rate-limit and token state
type StorageConfig struct {
	Mode  string      `yaml:"mode"` // "memory" or "redis"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig represents inbound per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Capacity       int      `yaml:"capacity"`
	WindowSeconds  int      `yaml:"window_seconds"`
	BehindProxy    bool     `yaml:"behind_proxy"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TracingConfig represents OpenTelemetry export configuration
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Load loads configuration from config.yaml and environment variables.
// The YAML file is optional; environment variables take precedence.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as .env file might not exist)
	_ = godotenv.Load()

	config := defaults()

	configFile := "config.yaml"
	if envFile := os.Getenv("CONFIG_FILE"); envFile != "" {
		configFile = envFile
	}

	if data, err := os.ReadFile(configFile); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if os.Getenv("CONFIG_FILE") != "" {
		// An explicitly requested file must exist
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        4000,
			Timeout:     30 * time.Second,
			MaxBodySize: 1_000_000,
		},
		Zoho: ZohoConfig{
			AccountsServerURL:  "https://accounts.zoho.com",
			AnalyticsServerURL: "https://analyticsapi.zoho.com",
			Timeout:            60 * time.Second,
			RateLimit:          ClientRateLimit{RequestsPerSecond: 10, Burst: 20},
			Retry:              RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		},
		Polling: PollingConfig{
			Interval:         2 * time.Second,
			QueueTimeout:     30 * time.Second,
			ExecutionTimeout: 60 * time.Second,
			QueryRowLimit:    100,
			ViewListSize:     30,
			WorkspaceLimit:   20,
			DataDir:          os.TempDir(),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Cache:   CacheConfig{TTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute},
		Auth:    AuthConfig{Timeout: 30 * time.Second, CacheTTL: 5 * time.Minute},
		Storage: StorageConfig{Mode: "memory", Redis: RedisConfig{Addr: "localhost:6379"}},
		RateLimit: RateLimitConfig{
			Capacity:      30,
			WindowSeconds: 60,
		},
	}
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	setString(&c.Zoho.ClientID, "ANALYTICS_CLIENT_ID")
	setString(&c.Zoho.ClientSecret, "ANALYTICS_CLIENT_SECRET")
	setString(&c.Zoho.RefreshToken, "ANALYTICS_REFRESH_TOKEN")
	setString(&c.Zoho.OrgID, "ANALYTICS_ORG_ID")
	setString(&c.Zoho.AccountsServerURL, "ACCOUNTS_SERVER_URL")
	setString(&c.Zoho.AnalyticsServerURL, "ANALYTICS_SERVER_URL")

	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.Port, "SERVER_PORT")
	setInt64(&c.Server.MaxBodySize, "SERVER_MAX_BODY_SIZE")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setDuration(&c.Polling.Interval, "QUERY_DATA_POLLING_INTERVAL")
	setDuration(&c.Polling.QueueTimeout, "QUERY_DATA_QUEUE_TIMEOUT")
	setDuration(&c.Polling.ExecutionTimeout, "QUERY_DATA_EXECUTION_TIMEOUT")
	setInt(&c.Polling.QueryRowLimit, "QUERY_DATA_RESULT_ROW_LIMIT")
	setInt(&c.Polling.ViewListSize, "ANALYTICS_VIEW_LIST_RESULT_SIZE")
	setString(&c.Polling.DataDir, "ANALYTICS_MCP_DATA_DIR")

	if enabled := os.Getenv("AUTH_ENABLED"); enabled != "" {
		c.Auth.Enabled = enabled == "true"
	}
	setString(&c.Auth.TokenInfoURL, "AUTH_TOKEN_INFO_URL")
	setDuration(&c.Auth.CacheTTL, "AUTH_CACHE_TTL")

	setString(&c.Storage.Mode, "STORAGE_MODE")
	setString(&c.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&c.Storage.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Storage.Redis.DB, "REDIS_DB")

	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		c.RateLimit.Enabled = enabled == "true"
	}
	setInt(&c.RateLimit.Capacity, "RATE_LIMIT_CAPACITY")
	setInt(&c.RateLimit.WindowSeconds, "RATE_LIMIT_WINDOW_SECONDS")

	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		c.Tracing.Enabled = enabled == "true"
	}
	setString(&c.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Zoho.ClientID == "" {
		return fmt.Errorf("analytics client ID is required")
	}
	if c.Zoho.ClientSecret == "" {
		return fmt.Errorf("analytics client secret is required")
	}
	if c.Zoho.RefreshToken == "" {
		return fmt.Errorf("analytics refresh token is required")
	}
	if c.Zoho.AccountsServerURL == "" || c.Zoho.AnalyticsServerURL == "" {
		return fmt.Errorf("accounts and analytics server URLs are required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Polling.QueueTimeout < 0 || c.Polling.ExecutionTimeout < 0 {
		return fmt.Errorf("polling timeouts must not be negative")
	}
	if c.Storage.Mode != "memory" && c.Storage.Mode != "redis" {
		return fmt.Errorf("unknown storage mode: %q", c.Storage.Mode)
	}
	if c.Auth.Enabled && c.Auth.TokenInfoURL == "" {
		return fmt.Errorf("auth token_info_url is required when auth is enabled")
	}
	return nil
}
