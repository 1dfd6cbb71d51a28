// Package config содержит логику чтения конфигурации сервиса orderbot.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Значения по умолчанию.
const (
	DefaultRunAddress          = "localhost:8080"
	DefaultConfidenceThreshold = 0.45
	DefaultUnitPrice           = 99.0
	DefaultCookieSecret        = "orderbot-secret"
)

var (
	// ErrInvalidThreshold возвращается для порога уверенности вне отрезка [0, 1].
	ErrInvalidThreshold = errors.New("confidence threshold must be within [0, 1]")
	// ErrInvalidUnitPrice возвращается для отрицательной цены по умолчанию.
	ErrInvalidUnitPrice = errors.New("default unit price must not be negative")
	// ErrInvalidIdleTimeout возвращается для отрицательного таймаута простоя.
	ErrInvalidIdleTimeout = errors.New("session idle timeout must not be negative")
)

// Config содержит параметры конфигурации сервиса orderbot.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	SessionDBPath       string        `env:"SESSION_DB_PATH"`
	ClassifierAddress   string        `env:"CLASSIFIER_ADDRESS"`
	KnowledgeFile       string        `env:"KNOWLEDGE_FILE"`
	ConfidenceThreshold float64       `env:"CONFIDENCE_THRESHOLD"`
	DefaultUnitPrice    float64       `env:"DEFAULT_UNIT_PRICE"`
	SessionIdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT"`
	NATSURL             string        `env:"NATS_URL"`
	AMQPURL             string        `env:"AMQP_URL"`
	CookieSecret        string        `env:"COOKIE_SECRET"`
	Debug               bool          `env:"DEBUG"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.RunAddress, "a", DefaultRunAddress, "address and port for HTTP server")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL URI for orders and bookings; empty keeps them in memory")
	fs.StringVar(&cfg.SessionDBPath, "s", "", "SQLite file for dialog sessions; empty keeps them in memory")
	fs.StringVar(&cfg.ClassifierAddress, "c", "", "remote intent model address; empty uses the built-in model")
	fs.StringVar(&cfg.KnowledgeFile, "k", "", "YAML file with intents and menu; empty uses the embedded one")
	fs.Float64Var(&cfg.ConfidenceThreshold, "t", DefaultConfidenceThreshold, "minimum confidence to accept a predicted intent")
	fs.Float64Var(&cfg.DefaultUnitPrice, "p", DefaultUnitPrice, "price of items missing from the menu")
	fs.DurationVar(&cfg.SessionIdleTimeout, "idle", 0, "drop sessions idle longer than this; 0 disables expiry")
	fs.StringVar(&cfg.NATSURL, "nats", "", "NATS URL for domain events")
	fs.StringVar(&cfg.AMQPURL, "amqp", "", "RabbitMQ URL for domain events")
	fs.StringVar(&cfg.CookieSecret, "secret", DefaultCookieSecret, "secret used to sign visitor cookies")
	fs.BoolVar(&cfg.Debug, "debug", false, "expose debug routes")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = DefaultRunAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	if math.IsNaN(c.ConfidenceThreshold) || c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.ConfidenceThreshold)
	}
	if math.IsNaN(c.DefaultUnitPrice) || c.DefaultUnitPrice < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidUnitPrice, c.DefaultUnitPrice)
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidIdleTimeout, c.SessionIdleTimeout)
	}
	return nil
}

// DefaultUnitPriceCents возвращает цену позиций вне меню в минимальных единицах валюты.
func (c *Config) DefaultUnitPriceCents() int64 {
	return int64(math.Round(c.DefaultUnitPrice * 100))
}
