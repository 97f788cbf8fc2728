package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     ChannelConfig   `yaml:"email"`
	Calls     ChannelConfig   `yaml:"calls"`
	Sync      SyncConfig      `yaml:"sync"`
	Autopilot AutopilotConfig `yaml:"autopilot"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dev       DevConfig       `yaml:"dev"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	CORSAllowedOrigins     []string `yaml:"cors_allowed_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ShutdownTimeout returns the graceful shutdown window as a duration
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for send quotas and
// distributed locks
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ChannelConfig holds provider API settings for one inbound channel
type ChannelConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PageSize       int    `yaml:"page_size"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c ChannelConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig holds sync scheduler tuning
type SyncConfig struct {
	EmailIntervalSeconds   int `yaml:"email_interval_seconds"`
	CallsIntervalSeconds   int `yaml:"calls_interval_seconds"`
	BackoffCapSeconds      int `yaml:"backoff_cap_seconds"`
	StaleFastDelaySeconds  int `yaml:"stale_fast_delay_seconds"`
	InteractionHoldSeconds int `yaml:"interaction_hold_seconds"`
}

// EmailInterval returns the base sync interval for the email channel
func (c SyncConfig) EmailInterval() time.Duration {
	return time.Duration(c.EmailIntervalSeconds) * time.Second
}

// CallsInterval returns the base sync interval for the calls channel
func (c SyncConfig) CallsInterval() time.Duration {
	return time.Duration(c.CallsIntervalSeconds) * time.Second
}

// BackoffCap returns the maximum sync backoff interval
func (c SyncConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// StaleFastDelay returns the shortened delay used when data is stale
func (c SyncConfig) StaleFastDelay() time.Duration {
	return time.Duration(c.StaleFastDelaySeconds) * time.Second
}

// InteractionHold returns how long ticks defer after user interaction
func (c SyncConfig) InteractionHold() time.Duration {
	return time.Duration(c.InteractionHoldSeconds) * time.Second
}

// AutopilotConfig holds automated-send worker settings
type AutopilotConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	BatchSize           int  `yaml:"batch_size"`
	LockTTLSeconds      int  `yaml:"lock_ttl_seconds"`
}

// TickInterval returns the autopilot polling interval as a duration
func (c AutopilotConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// LockTTL returns the per-item claim lock TTL as a duration
func (c AutopilotConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LoggingConfig holds log output settings. Redaction defaults to on;
// DisableRedaction exists for local debugging only.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	DisableRedaction bool   `yaml:"disable_redaction"`
}

// DevConfig holds local development conveniences
type DevConfig struct {
	// OrgID is assumed for requests without an X-Organization-ID
	// header. Empty means header required.
	OrgID string `yaml:"org_id"`
}

// Default returns the configuration used when no config file exists,
// suitable for running against local Postgres and Redis.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = "postgres://localhost:5432/triage?sslmode=disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.Email.PageSize == 0 {
		cfg.Email.PageSize = 100
	}
	if cfg.Calls.TimeoutSeconds == 0 {
		cfg.Calls.TimeoutSeconds = 30
	}
	if cfg.Calls.PageSize == 0 {
		cfg.Calls.PageSize = 50
	}
	if cfg.Sync.EmailIntervalSeconds == 0 {
		cfg.Sync.EmailIntervalSeconds = 15
	}
	if cfg.Sync.CallsIntervalSeconds == 0 {
		cfg.Sync.CallsIntervalSeconds = 30
	}
	if cfg.Sync.BackoffCapSeconds == 0 {
		cfg.Sync.BackoffCapSeconds = 120
	}
	if cfg.Sync.StaleFastDelaySeconds == 0 {
		cfg.Sync.StaleFastDelaySeconds = 2
	}
	if cfg.Sync.InteractionHoldSeconds == 0 {
		cfg.Sync.InteractionHoldSeconds = 10
	}
	if cfg.Autopilot.TickIntervalSeconds == 0 {
		cfg.Autopilot.TickIntervalSeconds = 20
	}
	if cfg.Autopilot.BatchSize == 0 {
		cfg.Autopilot.BatchSize = 10
	}
	if cfg.Autopilot.LockTTLSeconds == 0 {
		cfg.Autopilot.LockTTLSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
// A missing config file is not an error; defaults plus env vars apply.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if apiKey := os.Getenv("EMAIL_CHANNEL_API_KEY"); apiKey != "" {
		cfg.Email.APIKey = apiKey
		cfg.Email.Enabled = true
	}
	if baseURL := os.Getenv("EMAIL_CHANNEL_BASE_URL"); baseURL != "" {
		cfg.Email.BaseURL = baseURL
	}
	if apiKey := os.Getenv("CALLS_CHANNEL_API_KEY"); apiKey != "" {
		cfg.Calls.APIKey = apiKey
		cfg.Calls.Enabled = true
	}
	if baseURL := os.Getenv("CALLS_CHANNEL_BASE_URL"); baseURL != "" {
		cfg.Calls.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if orgID := os.Getenv("DEV_ORG_ID"); orgID != "" {
		cfg.Dev.OrgID = orgID
	}

	return cfg, nil
}
