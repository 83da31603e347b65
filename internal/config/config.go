package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"climate-api/pkg/database"
	"climate-api/pkg/logging"
)

// Config holds all application settings
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds store settings. Path is used by sqlite3, the
// Host/Port/User group by postgres. DSN overrides both when set.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	Path            string
	ReadOnly        bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string
}

// RateLimitConfig holds the API rate limit. RequestsPerSecond <= 0 disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// MetricsConfig holds the Prometheus namespace
type MetricsConfig struct {
	Namespace string
}

var defaults = map[string]interface{}{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    15 * time.Second,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 30 * time.Second,

	"database.driver":             database.DriverSQLite,
	"database.dsn":                "",
	"database.path":               "data/hawaii.sqlite",
	"database.read_only":          true,
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.name":               "hawaii",
	"database.ssl_mode":           "disable",
	"database.max_open_conns":     10,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  30 * time.Minute,
	"database.conn_max_idle_time": 5 * time.Minute,

	"logging.level": "info",

	"rate_limit.requests_per_second": 50.0,
	"rate_limit.burst":               100,

	"metrics.namespace": "climate_api",
}

// LoadConfig reads settings from an optional .env file (ENV_FILE, default
// ".env"), the environment and an optional YAML file named by CONFIG_FILE.
// Environment variables win over the file; keys map as server.port -> SERVER_PORT.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			DSN:             v.GetString("database.dsn"),
			Path:            v.GetString("database.path"),
			ReadOnly:        v.GetBool("database.read_only"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Database:        v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(v.GetString("logging.level")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("rate_limit.requests_per_second"),
			Burst:             v.GetInt("rate_limit.burst"),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("metrics.namespace"),
		},
	}, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" && c.Database.DSN == "" {
			return errors.New("database path is required for sqlite3")
		}
	case database.DriverPostgres:
		if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "") {
			return errors.New("database host and name are required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("database connection limits must not be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rate limit burst must be positive when rate limiting is enabled")
	}

	return nil
}

// ToDatabaseConfig converts the database section to the connection config
func (c *Config) ToDatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		Path:            c.Database.Path,
		ReadOnly:        c.Database.ReadOnly,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}
