// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config holds all runtime settings
type Config struct {
	Port int `envconfig:"PORT" default:"8080"`

	TMDB struct {
		APIKey       string        `envconfig:"TMDB_API_KEY"`
		BaseURL      string        `envconfig:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3"`
		ImageBaseURL string        `envconfig:"TMDB_IMAGE_BASE_URL" default:"https://image.tmdb.org/t/p"`
		Timeout      time.Duration `envconfig:"TMDB_TIMEOUT" default:"30s"`
		RateLimit    float64       `envconfig:"TMDB_RATE_LIMIT" default:"40"`
		RateBurst    int           `envconfig:"TMDB_RATE_BURST" default:"10"`
	}

	Storage struct {
		Driver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
		Path   string `envconfig:"STORAGE_PATH" default:"favorites.db"`
	}

	// RefreshInterval drives the background favorites reload; zero disables it.
	RefreshInterval time.Duration `envconfig:"FAVORITES_REFRESH_INTERVAL" default:"0s"`

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"json"`
	}
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig() (*Config, error) {
	// load default .env file, ignore the error
	_ = godotenv.Load()

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded values are usable
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return fmt.Errorf("TMDB_API_KEY environment variable is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.TMDB.RateLimit <= 0 {
		return fmt.Errorf("TMDB_RATE_LIMIT must be positive, got %v", c.TMDB.RateLimit)
	}
	if c.TMDB.RateBurst < 1 {
		return fmt.Errorf("TMDB_RATE_BURST must be at least 1, got %d", c.TMDB.RateBurst)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("FAVORITES_REFRESH_INTERVAL must not be negative")
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}

	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
