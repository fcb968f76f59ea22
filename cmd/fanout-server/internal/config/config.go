// Package config provides configuration management for the fanout server.
// It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Bridge kinds.
const (
	BridgeNone     = "none"
	BridgeNATS     = "nats"
	BridgeRabbitMQ = "rabbitmq"
	BridgeKafka    = "kafka"
)

// Config holds all configuration for the fanout server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Fanout   FanoutConfig
	Bridge   BridgeConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "fanout_")
	Migrate  bool   // Apply embedded migrations on startup
}

// FanoutConfig holds dispatcher configuration.
type FanoutConfig struct {
	NodeID         string
	SendTimeout    time.Duration
	MaxConcurrency int
	DeliveryLog    bool // Log every eviction and failed delivery
}

// BridgeConfig selects the cross-process bridge.
type BridgeConfig struct {
	Kind    string // none, nats, rabbitmq, kafka
	URL     string // nats:// or amqp:// URL
	Brokers []string
	Channel string // subject, exchange or topic name
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "fanout"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "fanout"),
			Prefix:   getEnv("DB_PREFIX", "fanout_"),
			Migrate:  getEnvBool("DB_MIGRATE", true),
		},
		Fanout: FanoutConfig{
			NodeID:         getEnv("FANOUT_NODE_ID", ""),
			SendTimeout:    getEnvDuration("FANOUT_SEND_TIMEOUT", 5*time.Second),
			MaxConcurrency: getEnvInt("FANOUT_MAX_CONCURRENCY", 64),
			DeliveryLog:    getEnvBool("FANOUT_DELIVERY_LOG", true),
		},
		Bridge: BridgeConfig{
			Kind:    strings.ToLower(getEnv("BRIDGE_KIND", BridgeNone)),
			URL:     getEnv("BRIDGE_URL", ""),
			Brokers: getEnvList("BRIDGE_BROKERS"),
			Channel: getEnv("BRIDGE_CHANNEL", "fanout.envelopes"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.ShutdownTimeout, validation.Required),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	db := &c.Database
	networked := db.Driver == "mysql" || db.Driver == "postgres"
	if err := validation.ValidateStruct(db,
		validation.Field(&db.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
		validation.Field(&db.Database, validation.Required),
		validation.Field(&db.Password, validation.When(networked, validation.Required.Error("DB_PASSWORD is required"))),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := validation.ValidateStruct(&c.Fanout,
		validation.Field(&c.Fanout.SendTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Fanout.MaxConcurrency, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("fanout: %w", err)
	}

	b := &c.Bridge
	if err := validation.ValidateStruct(b,
		validation.Field(&b.Kind, validation.Required, validation.In(BridgeNone, BridgeNATS, BridgeRabbitMQ, BridgeKafka)),
		validation.Field(&b.URL, validation.When(b.Kind == BridgeNATS || b.Kind == BridgeRabbitMQ, validation.Required)),
		validation.Field(&b.Brokers, validation.When(b.Kind == BridgeKafka, validation.Required)),
	); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	return validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Log.Format, validation.In("json", "console")),
	)
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or plain milliseconds ("5000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
