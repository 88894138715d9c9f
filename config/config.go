// Package config loads and validates the application configuration from a
// JSON file with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/SK-Rookies-Final-Project/Backend/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Metrics MetricsConfig `json:"metrics"`
	Kafka   KafkaConfig   `json:"kafka"`
	Auth    AuthConfig    `json:"auth"`
	Stream  StreamConfig  `json:"stream"`
}

// ServerConfig holds the HTTP push-server settings
type ServerConfig struct {
	Port int `json:"port"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path,omitempty"`
}

// KafkaConfig holds the bus connection settings. Consumers authenticate with
// per-user SCRAM credentials, so no service-account credential appears here.
type KafkaConfig struct {
	Bootstrap   string       `json:"bootstrap"`
	DialTimeout string       `json:"dial_timeout,omitempty"` // e.g. "10s"
	Topics      TopicsConfig `json:"topics"`
}

// TopicsConfig binds each stream category to its bus topic
type TopicsConfig struct {
	LoginFailure       string `json:"login_failure"`
	SuspiciousLocation string `json:"suspicious_location"`
	SystemDenied       string `json:"system_denied"`
	ResourceDenied     string `json:"resource_denied"`
}

// AuthConfig holds token and permission settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	TokenTTL  string `json:"token_ttl,omitempty"` // e.g. "1h"
	// Grants maps usernames to capability names (MONITOR, MANAGER, ADMIN)
	Grants map[string][]string `json:"grants,omitempty"`
	Redis  RedisConfig         `json:"redis"`
}

// RedisConfig holds the optional shared credential-store settings.
// An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// StreamConfig holds registry and consumer tuning
type StreamConfig struct {
	SweepInterval string `json:"sweep_interval,omitempty"` // e.g. "10m"
	PushTimeout   string `json:"push_timeout,omitempty"`   // e.g. "5s"
	PollTimeout   string `json:"poll_timeout,omitempty"`   // e.g. "1s"
	BufferSize    int    `json:"buffer_size,omitempty"`
}

// Default returns a configuration with sensible defaults for everything but
// the Kafka bootstrap address, which has no safe default.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Kafka: KafkaConfig{
			DialTimeout: "10s",
			Topics: TopicsConfig{
				LoginFailure:       "certified-2time",
				SuspiciousLocation: "certified-notMove",
				SystemDenied:       "system-level-false",
				ResourceDenied:     "resource-level-false",
			},
		},
		Auth: AuthConfig{TokenTTL: "1h"},
		Stream: StreamConfig{
			SweepInterval: "10m",
			PushTimeout:   "5s",
			PollTimeout:   "1s",
			BufferSize:    64,
		},
	}
}

// Load reads configuration from the given JSON file (optional) and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Variable
// names follow the original deployment's conventions.
func (c *Config) applyEnv() {
	setString(&c.Kafka.Bootstrap, "KAFKA_BOOTSTRAP_SERVERS")
	setString(&c.Kafka.Topics.LoginFailure, "KAFKA_TOPIC_CERTIFIED_2TIME")
	setString(&c.Kafka.Topics.SuspiciousLocation, "KAFKA_TOPIC_CERTIFIED_NOTMOVE")
	setString(&c.Kafka.Topics.SystemDenied, "KAFKA_TOPIC_SYSTEM_LEVEL_FALSE")
	setString(&c.Kafka.Topics.ResourceDenied, "KAFKA_TOPIC_RESOURCE_LEVEL_FALSE")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.Redis.Addr, "REDIS_ADDR")
	setString(&c.Auth.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Server.Port, "SERVER_PORT")
	setInt(&c.Metrics.Port, "METRICS_PORT")
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

// Validate checks the configuration. A missing Kafka bootstrap address is the
// only fatal condition: the consumer factory cannot operate without it.
func (c *Config) Validate() error {
	if c.Kafka.Bootstrap == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate",
			"kafka bootstrap address is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics port %d out of range", c.Metrics.Port))
	}

	for name, field := range map[string]string{
		"kafka.dial_timeout":    c.Kafka.DialTimeout,
		"auth.token_ttl":        c.Auth.TokenTTL,
		"stream.sweep_interval": c.Stream.SweepInterval,
		"stream.push_timeout":   c.Stream.PushTimeout,
		"stream.poll_timeout":   c.Stream.PollTimeout,
	} {
		if field == "" {
			continue
		}
		if _, err := time.ParseDuration(field); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("parse duration %s", name))
		}
	}

	return nil
}

// Duration parses a duration field, falling back to the given default when
// the field is empty. Call Validate first; malformed fields fall back too.
func Duration(field string, fallback time.Duration) time.Duration {
	if field == "" {
		return fallback
	}
	d, err := time.ParseDuration(field)
	if err != nil {
		return fallback
	}
	return d
}
