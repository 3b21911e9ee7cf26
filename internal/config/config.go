// Package config loads the process configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"time"
)

// Config holds all configuration for the application
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	DB      DBConfig      `koanf:"db"`
	Broker  BrokerConfig  `koanf:"broker"`
	Tracer  TracerConfig  `koanf:"tracer"`
	Metrics MetricsConfig `koanf:"metrics"`

	// ShutdownTimeout bounds each component's Stop call
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=0,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// DBConfig configures the PostgreSQL pool.
type DBConfig struct {
	URL                               string        `koanf:"url" validate:"required"`
	PoolMinSize                       int32         `koanf:"pool_min_size" validate:"gte=0,ltefield=PoolMaxSize"`
	PoolMaxSize                       int32         `koanf:"pool_max_size" validate:"gte=1"`
	PoolMaxQueries                    int64         `koanf:"pool_max_queries" validate:"gte=0"`
	PoolMaxInactiveConnectionLifetime time.Duration `koanf:"pool_max_inactive_connection_lifetime" validate:"gte=0"`
	ConnectMaxAttempts                int           `koanf:"connect_max_attempts" validate:"gte=1"`
	ConnectRetryDelay                 time.Duration `koanf:"connect_retry_delay" validate:"gte=0"`
	CloseTimeout                      time.Duration `koanf:"close_timeout" validate:"gte=0"`
}

// BrokerConfig configures the NATS connection.
type BrokerConfig struct {
	URL                string        `koanf:"url" validate:"required"`
	Heartbeat          time.Duration `koanf:"heartbeat" validate:"gte=0"`
	ConnectMaxAttempts int           `koanf:"connect_max_attempts" validate:"gte=1"`
	ConnectRetryDelay  time.Duration `koanf:"connect_retry_delay" validate:"gte=0"`
}

// TracerConfig configures span export.
type TracerConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Name           string `koanf:"name" validate:"required"`
	URL            string `koanf:"url" validate:"required_if=Enabled true"`
	DefaultSampled bool   `koanf:"default_sampled"`
	TLSInsecure    bool   `koanf:"tls_insecure"`
	TLSCAPath      string `koanf:"tls_ca_path" validate:"omitempty,file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Name    string `koanf:"name" validate:"required"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		DB: DBConfig{
			URL:                               "postgres://postgres@localhost:5432/postgres?sslmode=disable",
			PoolMinSize:                       1,
			PoolMaxSize:                       10,
			PoolMaxQueries:                    50000,
			PoolMaxInactiveConnectionLifetime: 300 * time.Second,
			ConnectMaxAttempts:                60,
			ConnectRetryDelay:                 time.Second,
			CloseTimeout:                      10 * time.Second,
		},
		Broker: BrokerConfig{
			URL:                "nats://127.0.0.1:4222",
			Heartbeat:          5 * time.Second,
			ConnectMaxAttempts: 60,
			ConnectRetryDelay:  time.Second,
		},
		Tracer: TracerConfig{
			Enabled:        false,
			Name:           "ferry",
			URL:            "localhost:4317",
			DefaultSampled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Name:    "ferry",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
	cause   error
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

func wrapConfigError(message string, cause error) *ConfigError {
	return &ConfigError{message: message + ": " + cause.Error(), cause: cause}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}

func (e *ConfigError) Unwrap() error {
	return e.cause
}
