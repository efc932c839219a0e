// Package config loads service settings from a file or the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"libralend/internal/logger"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LoggingConfig    `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Membership MembershipConfig `yaml:"membership"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"LIBRALEND_HTTP_HOST" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"LIBRALEND_HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LIBRALEND_HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"LIBRALEND_HTTP_ALLOWED_ORIGINS" env-default:"http://localhost:5173,http://localhost:8080"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LIBRALEND_LOG_LEVEL" env-default:"info"`
	Mode  string `yaml:"mode" env:"LIBRALEND_LOG_MODE" env-default:"development"`
}

func (l LoggingConfig) Environment() logger.Environment {
	if l.Mode == string(logger.Production) {
		return logger.Production
	}
	return logger.Development
}

type TelemetryConfig struct {
	// OTLPEndpoint is host:port of an OTLP/HTTP collector. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"LIBRALEND_OTLP_ENDPOINT"`
	Insecure     bool   `yaml:"insecure" env:"LIBRALEND_OTLP_INSECURE" env-default:"true"`
	ServiceName  string `yaml:"service_name" env:"LIBRALEND_SERVICE_NAME" env-default:"libralend"`
}

type MembershipConfig struct {
	// RegistrationsPerMinute of 0 disables the limiter.
	RegistrationsPerMinute float64 `yaml:"registrations_per_minute" env:"LIBRALEND_REGISTRATIONS_PER_MINUTE" env-default:"0"`
	RegistrationBurst      int     `yaml:"registration_burst" env:"LIBRALEND_REGISTRATION_BURST" env-default:"5"`
}

// Load reads path when it exists and the environment otherwise. Environment
// variables override file values in both cases.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	if c.Membership.RegistrationsPerMinute < 0 {
		return fmt.Errorf("registrations_per_minute must not be negative")
	}
	return nil
}
