package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults used when a value is absent from the config file.
const (
	DefaultPollInterval    = "10s"
	DefaultStatusInterval  = "30s"
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = "500ms"
	DefaultMultiplier      = 1.5
	DefaultRandomization   = 0.5
	DefaultMaxInterval     = "30s"
	DefaultConnectTimeout  = "3s"
	DefaultRequestTimeout  = "10s"
	DefaultStorageType     = "clickhouse"
	DefaultRetentionDays   = 180
	DefaultNATSSubject     = "gons.traffic.cycles"
	DefaultUnhealthyAfter  = 3
	DefaultRedisKeyPrefix  = "gons:traffic"
	DefaultClickHouseTable = "ip_traffic"
	DefaultClickHousePort  = 9000
	DefaultAPIListenAddr   = ":8080"
	DefaultLogLevel        = "info"
	accountingPathTemplate = "http://%s/accounting/ip.cgi"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// RouterConfig describes where the accounting feed lives.
type RouterConfig struct {
	Address        string `yaml:"address" toml:"address"`
	FeedURL        string `yaml:"feed_url" toml:"feed_url"`
	ConnectTimeout string `yaml:"connect_timeout" toml:"connect_timeout"`
	RequestTimeout string `yaml:"request_timeout" toml:"request_timeout"`
}

// URL returns the feed URL, derived from the router address when not set explicitly.
func (r RouterConfig) URL() string {
	if r.FeedURL != "" {
		return r.FeedURL
	}
	return fmt.Sprintf(accountingPathTemplate, r.Address)
}

// PollingConfig controls the cycle cadence.
type PollingConfig struct {
	Interval       string `yaml:"interval" toml:"interval"`
	StatusInterval string `yaml:"status_interval" toml:"status_interval"`
}

// RetryConfig controls the bounded backoff around storage writes.
type RetryConfig struct {
	MaxAttempts         int     `yaml:"max_attempts" toml:"max_attempts"`
	InitialInterval     string  `yaml:"initial_interval" toml:"initial_interval"`
	Multiplier          float64 `yaml:"multiplier" toml:"multiplier"`
	RandomizationFactor float64 `yaml:"randomization_factor" toml:"randomization_factor"`
	MaxInterval         string  `yaml:"max_interval" toml:"max_interval"`
}

// ClickHouseConfig holds the configuration for the ClickHouse writer.
type ClickHouseConfig struct {
	Host          string `yaml:"host" toml:"host"`
	Port          int    `yaml:"port" toml:"port"`
	Database      string `yaml:"database" toml:"database"`
	Username      string `yaml:"username" toml:"username"`
	Password      string `yaml:"password" toml:"password"`
	Table         string `yaml:"table" toml:"table"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
}

// GobConfig holds the configuration for the gob snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path" toml:"root_path"`
}

// PostgresConfig holds the configuration for the PostgreSQL writer.
type PostgresConfig struct {
	DSN       string `yaml:"dsn" toml:"dsn"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

// RedisConfig holds the configuration for the Redis writer.
type RedisConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
	TTL       string `yaml:"ttl" toml:"ttl"`
}

// StorageConfig selects and configures the storage writer.
type StorageConfig struct {
	Type       string           `yaml:"type" toml:"type"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" toml:"clickhouse"`
	Gob        GobConfig        `yaml:"gob" toml:"gob"`
	Postgres   PostgresConfig   `yaml:"postgres" toml:"postgres"`
	Redis      RedisConfig      `yaml:"redis" toml:"redis"`
}

// NATSConfig holds the NATS publisher settings.
type NATSConfig struct {
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
}

// AMQPConfig holds the AMQP publisher settings.
type AMQPConfig struct {
	URL        string `yaml:"url" toml:"url"`
	Exchange   string `yaml:"exchange" toml:"exchange"`
	RoutingKey string `yaml:"routing_key" toml:"routing_key"`
}

// PublisherConfig enables cycle event publishing.
type PublisherConfig struct {
	Enabled bool       `yaml:"enabled" toml:"enabled"`
	Type    string     `yaml:"type" toml:"type"`
	NATS    NATSConfig `yaml:"nats" toml:"nats"`
	AMQP    AMQPConfig `yaml:"amqp" toml:"amqp"`
}

// APIConfig holds the status API settings. Empty addresses disable a server.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr" toml:"listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr" toml:"grpc_listen_addr"`
	UnhealthyAfter int    `yaml:"unhealthy_after" toml:"unhealthy_after"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Router    RouterConfig    `yaml:"router" toml:"router"`
	Subnets   []string        `yaml:"subnets" toml:"subnets"`
	Polling   PollingConfig   `yaml:"polling" toml:"polling"`
	Retry     RetryConfig     `yaml:"retry" toml:"retry"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Publisher PublisherConfig `yaml:"publisher" toml:"publisher"`
	API       APIConfig       `yaml:"api" toml:"api"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// LoadConfig reads the configuration from a YAML or TOML file and returns a Config struct.
// Defaults are applied but the result is not validated, so flags can still override it.
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		if _, err := toml.DecodeFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config TOML: %w", err)
		}
	default:
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied and no router or subnets.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	setString(&c.Router.ConnectTimeout, DefaultConnectTimeout)
	setString(&c.Router.RequestTimeout, DefaultRequestTimeout)
	setString(&c.Polling.Interval, DefaultPollInterval)
	setString(&c.Polling.StatusInterval, DefaultStatusInterval)

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = DefaultMultiplier
	}
	if c.Retry.RandomizationFactor == 0 {
		c.Retry.RandomizationFactor = DefaultRandomization
	}
	setString(&c.Retry.InitialInterval, DefaultInitialInterval)
	setString(&c.Retry.MaxInterval, DefaultMaxInterval)

	setString(&c.Storage.Type, DefaultStorageType)
	setString(&c.Storage.ClickHouse.Table, DefaultClickHouseTable)
	if c.Storage.ClickHouse.Port == 0 {
		c.Storage.ClickHouse.Port = DefaultClickHousePort
	}
	if c.Storage.ClickHouse.RetentionDays == 0 {
		c.Storage.ClickHouse.RetentionDays = DefaultRetentionDays
	}
	setString(&c.Storage.Redis.KeyPrefix, DefaultRedisKeyPrefix)

	setString(&c.Publisher.NATS.Subject, DefaultNATSSubject)

	if c.API.UnhealthyAfter == 0 {
		c.API.UnhealthyAfter = DefaultUnhealthyAfter
	}
	setString(&c.Log.Level, DefaultLogLevel)
}

// Validate reports the first configuration problem that must prevent startup.
func (c *Config) Validate() error {
	if c.Router.Address == "" && c.Router.FeedURL == "" {
		return fmt.Errorf("%w: router address is required", ErrInvalidConfig)
	}
	if len(c.Subnets) == 0 {
		return fmt.Errorf("%w: expected at least one LAN subnet", ErrInvalidConfig)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: retry multiplier must be >= 1, got %v", ErrInvalidConfig, c.Retry.Multiplier)
	}
	if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor >= 1 {
		return fmt.Errorf("%w: retry randomization factor must be in [0, 1), got %v", ErrInvalidConfig, c.Retry.RandomizationFactor)
	}
	for name, value := range map[string]string{
		"router.connect_timeout":  c.Router.ConnectTimeout,
		"router.request_timeout":  c.Router.RequestTimeout,
		"polling.status_interval": c.Polling.StatusInterval,
		"retry.initial_interval":  c.Retry.InitialInterval,
		"retry.max_interval":      c.Retry.MaxInterval,
	} {
		if _, err := positiveDuration(name, value); err != nil {
			return err
		}
	}
	if c.Publisher.Enabled && c.Publisher.Type == "" {
		return fmt.Errorf("%w: publisher is enabled but no type is set", ErrInvalidConfig)
	}
	return nil
}

// PollInterval parses the polling interval, rejecting non-positive values.
func (c *Config) PollInterval() (time.Duration, error) {
	return positiveDuration("polling.interval", c.Polling.Interval)
}

// StatusInterval parses the status line interval.
func (c *Config) StatusInterval() (time.Duration, error) {
	return positiveDuration("polling.status_interval", c.Polling.StatusInterval)
}

// Duration parses a duration string that was already validated; malformed values yield fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %v", ErrInvalidConfig, name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration", ErrInvalidConfig, name)
	}
	return d, nil
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
