// Package config handles configuration loading for the operations console.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vendors     VendorsConfig     `yaml:"vendors"`
	Correlation CorrelationConfig `yaml:"correlation"`
	State       StateConfig       `yaml:"state"`
	PSA         PSAConfig         `yaml:"psa"`
	Audit       AuditConfig       `yaml:"audit"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VendorConfig holds the connection settings for one vendor integration.
// An integration with an empty APIKey is treated as not configured: it is
// surfaced as "not connected", never polled, and never an error.
type VendorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Configured reports whether the integration has credentials.
func (v VendorConfig) Configured() bool {
	return v.Enabled && v.APIKey != ""
}

// VendorsConfig holds settings for every vendor integration.
type VendorsConfig struct {
	SentinelOne VendorConfig `yaml:"sentinelone"`
	Blackpoint  VendorConfig `yaml:"blackpoint"`
	UptimeRobot VendorConfig `yaml:"uptimerobot"`
	Cove        VendorConfig `yaml:"cove"`
	DNSFilter   VendorConfig `yaml:"dnsfilter"`
}

// CorrelationConfig holds correlation engine policy. The window and vendor
// precedence are policy constants, configurable rather than hardcoded.
type CorrelationConfig struct {
	Window time.Duration `yaml:"window"`
	Pairs  []PairConfig  `yaml:"pairs"`
}

// PairConfig designates one correlatable vendor pair. The lead vendor's
// alert becomes the primary record of a merged group.
type PairConfig struct {
	Lead    string `yaml:"lead"`
	Context string `yaml:"context"`
}

// StateConfig holds alert state store settings.
type StateConfig struct {
	Backend string      `yaml:"backend"` // "redis" or "memory"
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the state store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// PSAConfig holds ticketing system settings.
type PSAConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxSummaryLength int           `yaml:"max_summary_length"`
	DefaultBoard     string        `yaml:"default_board"`
}

// AuditConfig holds the operator-action audit trail settings.
type AuditConfig struct {
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Batch      BatchConfig      `yaml:"batch"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// BatchConfig holds audit batch writer settings.
type BatchConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// NotifyConfig holds the outbound action-event publisher settings.
type NotifyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Vendors: VendorsConfig{
			SentinelOne: VendorConfig{
				Enabled:  true,
				BaseURL:  "https://usea1.sentinelone.net",
				Timeout:  30 * time.Second,
				CacheTTL: 30 * time.Second,
			},
			Blackpoint: VendorConfig{
				Enabled:  true,
				BaseURL:  "https://portal.blackpointcyber.com/api",
				Timeout:  30 * time.Second,
				CacheTTL: 30 * time.Second,
			},
			UptimeRobot: VendorConfig{
				Enabled:  true,
				BaseURL:  "https://api.uptimerobot.com/v2",
				Timeout:  30 * time.Second,
				CacheTTL: 45 * time.Second,
			},
			Cove: VendorConfig{
				Enabled:  true,
				BaseURL:  "https://api.backup.management",
				Timeout:  60 * time.Second,
				CacheTTL: 5 * time.Minute,
			},
			DNSFilter: VendorConfig{
				Enabled:  true,
				BaseURL:  "https://api.dnsfilter.com/v1",
				Timeout:  30 * time.Second,
				CacheTTL: 2 * time.Minute,
			},
		},
		Correlation: CorrelationConfig{
			Window: 4 * time.Hour,
			Pairs: []PairConfig{
				{Lead: "sentinelone", Context: "blackpoint"},
			},
		},
		State: StateConfig{
			Backend: "redis",
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				DB:           0,
				KeyPrefix:    "opsconsole",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				PoolSize:     10,
			},
		},
		PSA: PSAConfig{
			Timeout:          30 * time.Second,
			MaxSummaryLength: 100,
			DefaultBoard:     "Service Desk",
		},
		Audit: AuditConfig{
			Enabled: false, // Disabled by default for development without ClickHouse
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "opsconsole",
				Username:        "default",
				MaxOpenConns:    5,
				MaxIdleConns:    2,
				ConnMaxLifetime: time.Hour,
				DialTimeout:     10 * time.Second,
			},
			Batch: BatchConfig{
				BatchSize:     200,
				FlushInterval: 5 * time.Second,
				MaxRetries:    3,
				RetryDelay:    time.Second,
			},
		},
		Notify: NotifyConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "opsconsole.actions",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("OPSCONSOLE_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Credentials are
// taken from the environment so they stay out of the config file.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("OPSCONSOLE_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("OPSCONSOLE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if key := os.Getenv("SENTINELONE_API_TOKEN"); key != "" {
		c.Vendors.SentinelOne.APIKey = key
	}
	if key := os.Getenv("BLACKPOINT_API_KEY"); key != "" {
		c.Vendors.Blackpoint.APIKey = key
	}
	if key := os.Getenv("UPTIMEROBOT_API_KEY"); key != "" {
		c.Vendors.UptimeRobot.APIKey = key
	}
	if key := os.Getenv("COVE_API_KEY"); key != "" {
		c.Vendors.Cove.APIKey = key
	}
	if key := os.Getenv("DNSFILTER_API_KEY"); key != "" {
		c.Vendors.DNSFilter.APIKey = key
	}

	if key := os.Getenv("PSA_API_KEY"); key != "" {
		c.PSA.APIKey = key
	}
	if url := os.Getenv("PSA_BASE_URL"); url != "" {
		c.PSA.BaseURL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.State.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.State.Redis.Password = pass
	}

	if enabled := os.Getenv("OPSCONSOLE_AUDIT_ENABLED"); enabled == "true" {
		c.Audit.Enabled = true
	}
	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Audit.ClickHouse.Hosts = []string{host}
	}
	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Audit.ClickHouse.Password = pass
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Notify.Brokers = splitAndTrim(brokers, ",")
		c.Notify.Enabled = true
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Correlation.Window <= 0 {
		return fmt.Errorf("correlation window must be positive")
	}

	for _, pair := range c.Correlation.Pairs {
		if pair.Lead == "" || pair.Context == "" {
			return fmt.Errorf("correlation pair needs both lead and context vendors")
		}
		if pair.Lead == pair.Context {
			return fmt.Errorf("correlation pair cannot pair %s with itself", pair.Lead)
		}
	}

	switch c.State.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}

	if c.PSA.MaxSummaryLength <= 10 {
		return fmt.Errorf("psa max_summary_length too small: %d", c.PSA.MaxSummaryLength)
	}

	return nil
}
