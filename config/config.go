package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Telegram bot
	Telegram TelegramConfig `mapstructure:"telegram"`

	// Storage backend selection
	Database DatabaseConfig `mapstructure:"database"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// SQLite
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// HTTP side server
	HTTP HTTPConfig `mapstructure:"http"`

	Expiry   ExpiryConfig   `mapstructure:"expiry"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Session  SessionConfig  `mapstructure:"session"`
}

type TelegramConfig struct {
	Token            string        `mapstructure:"token"`
	StorageChannelID int64         `mapstructure:"storage_channel_id"`
	LogChannelID     int64         `mapstructure:"log_channel_id"`
	Admins           []int64       `mapstructure:"admins"`
	BotUsername      string        `mapstructure:"bot_username"`
	LinkHost         string        `mapstructure:"link_host"`
	PollTimeout      int           `mapstructure:"poll_timeout"`
	ReconnectMin     time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
}

type DatabaseConfig struct {
	// Driver is either "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"`
}

type ExpiryConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

type DeliveryConfig struct {
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	BroadcastDelay  time.Duration `mapstructure:"broadcast_delay"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
	SearchLimit     int           `mapstructure:"search_limit"`
	FloodLimit      int           `mapstructure:"flood_limit"`
	FloodWindow     time.Duration `mapstructure:"flood_window"`
	ExpectedRecords uint          `mapstructure:"expected_records"`
}

type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Keep the env names the bot has always been deployed with.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Telegram.StorageChannelID == 0 {
		errs = append(errs, errors.New("telegram.storage_channel_id is required"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Expiry.MinBackoff > c.Expiry.MaxBackoff {
		errs = append(errs, errors.New("expiry.min_backoff must not exceed expiry.max_backoff"))
	}
	return errors.Join(errs...)
}

// IsAdmin reports whether id is listed in telegram.admins.
func (c *Config) IsAdmin(id int64) bool {
	for _, admin := range c.Telegram.Admins {
		if admin == id {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.link_host", "t.me")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.reconnect_min", 5*time.Second)
	v.SetDefault("telegram.reconnect_max", 300*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("sqlite.path", "files.db")

	v.SetDefault("prometheus.port", 9090)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 100)

	v.SetDefault("expiry.interval", 60*time.Second)
	v.SetDefault("expiry.min_backoff", 60*time.Second)
	v.SetDefault("expiry.max_backoff", 300*time.Second)

	v.SetDefault("delivery.batch_delay", 500*time.Millisecond)
	v.SetDefault("delivery.broadcast_delay", 100*time.Millisecond)
	v.SetDefault("delivery.retry_delay", 2*time.Second)
	v.SetDefault("delivery.max_batch_size", 1000)
	v.SetDefault("delivery.search_limit", 10)
	v.SetDefault("delivery.flood_limit", 20)
	v.SetDefault("delivery.flood_window", time.Minute)
	v.SetDefault("delivery.expected_records", 100000)

	v.SetDefault("session.ttl", 15*time.Minute)
	v.SetDefault("session.max_entries", 10000)
}

func bindEnvVars(v *viper.Viper) {
	// Telegram
	v.BindEnv("telegram.token", "BOT_TOKEN")
	v.BindEnv("telegram.storage_channel_id", "DB_CHANNEL")
	v.BindEnv("telegram.log_channel_id", "LOG_CHANNEL")
	v.BindEnv("telegram.admins", "ADMINS")
	v.BindEnv("telegram.bot_username", "BOT_USERNAME")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("sqlite.path", "DB_FILE")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.enabled", "NATS_ENABLED")
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")

	// HTTP
	v.BindEnv("http.addr", "HTTP_ADDR")
	v.BindEnv("http.api_key", "HTTP_API_KEY")

	// Expiry
	v.BindEnv("expiry.interval", "EXPIRY_INTERVAL")
	v.BindEnv("expiry.min_backoff", "EXPIRY_MIN_BACKOFF")
	v.BindEnv("expiry.max_backoff", "EXPIRY_MAX_BACKOFF")
}
