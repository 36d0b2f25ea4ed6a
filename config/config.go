/*
Package config loads service configuration with viper and builds the zap logger.

SOURCES (later wins):
  1. defaults (setDefaults)
  2. YAML file passed to Load; optional
  3. INCENTIVE_* environment variables, "." replaced by "_"
     e.g. INCENTIVE_SERVER_PORT=9090, INCENTIVE_KAFKA_BROKERS=k1:9092,k2:9092

EXAMPLE FILE:
  server:
    port: 8080
  database:
    path: data/incentive.db
  escalation:
    sla_hours: 72
    mode: auto
    escalate_to: vp-sales
    interval: 15m
  kafka:
    brokers: [localhost:9092]
    topic: incentive.notifications
  redis:
    addr: localhost:6379
  plans:
    dir: ./plans
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Plans      PlansConfig      `mapstructure:"plans"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration. Path ":memory:" keeps everything in process.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EscalationConfig drives the periodic SLA scan.
type EscalationConfig struct {
	SLAHours     float64       `mapstructure:"sla_hours"`
	WarningRatio float64       `mapstructure:"warning_ratio"`
	Mode         string        `mapstructure:"mode"`
	EscalateTo   string        `mapstructure:"escalate_to"`
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
}

// KafkaConfig enables the Kafka notifier when Brokers is non-empty.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig enables the plan cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PlanTTL  time.Duration `mapstructure:"plan_ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	Format     string `mapstructure:"format"`      // json or console
}

// PlansConfig points at plan definition files loaded at startup.
type PlansConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from file and environment variables.
// An empty path runs on defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INCENTIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.path", "incentive.db")

	v.SetDefault("escalation.sla_hours", 72)
	v.SetDefault("escalation.warning_ratio", 0.75)
	v.SetDefault("escalation.mode", "alert")
	v.SetDefault("escalation.escalate_to", "")
	v.SetDefault("escalation.interval", 15*time.Minute)
	v.SetDefault("escalation.workers", 4)

	// Keys with empty defaults still need registering so AutomaticEnv sees them on Unmarshal.
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "incentive.notifications")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.plan_ttl", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("plans.dir", "")
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Escalation.SLAHours <= 0 {
		return fmt.Errorf("escalation.sla_hours must be positive")
	}
	if c.Escalation.WarningRatio <= 0 || c.Escalation.WarningRatio >= 1 {
		return fmt.Errorf("escalation.warning_ratio must be between 0 and 1 exclusive")
	}
	switch c.Escalation.Mode {
	case "alert":
	case "auto":
		if c.Escalation.EscalateTo == "" {
			return fmt.Errorf("escalation.escalate_to is required in auto mode")
		}
	default:
		return fmt.Errorf("escalation.mode must be auto or alert, got %q", c.Escalation.Mode)
	}
	if c.Escalation.Interval < 0 {
		return fmt.Errorf("escalation.interval must not be negative")
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	return nil
}
