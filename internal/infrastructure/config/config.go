// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// A .env file in the working directory is loaded into the environment first,
// so both sources can reference its values.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	workers := cfg.Reconcile.UserConcurrency
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty by the YAML file.
const (
	DefaultDatabasePath       = "reconciler.db"
	DefaultPort               = 8085
	DefaultDateToleranceDays  = 7
	DefaultAmountTolerance    = 0.05
	DefaultUserConcurrency    = 4
	DefaultStatusCacheEntries = 10000
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Server        ServerConfig        `yaml:"server"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ReconcileConfig holds matching tolerances and batch settings
type ReconcileConfig struct {
	DateToleranceDays int     `yaml:"date_tolerance_days"`
	AmountTolerance   float64 `yaml:"amount_tolerance"`
	UserConcurrency   int     `yaml:"user_concurrency"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CacheConfig holds in-memory cache sizing
type CacheConfig struct {
	StatusMaxEntries int64 `yaml:"status_max_entries"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	loadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILER_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	loadDotEnv()

	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILER_DB_PATH", DefaultDatabasePath),
		},
		Reconcile: ReconcileConfig{
			DateToleranceDays: getEnvInt("RECONCILER_DATE_TOLERANCE_DAYS", DefaultDateToleranceDays),
			AmountTolerance:   getEnvFloat("RECONCILER_AMOUNT_TOLERANCE", DefaultAmountTolerance),
			UserConcurrency:   getEnvInt("RECONCILER_USER_CONCURRENCY", DefaultUserConcurrency),
		},
		Server: ServerConfig{
			Port:           getEnvInt("RECONCILER_PORT", DefaultPort),
			AllowedOrigins: getEnvList("RECONCILER_ALLOWED_ORIGINS"),
		},
		Cache: CacheConfig{
			StatusMaxEntries: int64(getEnvInt("RECONCILER_STATUS_CACHE_ENTRIES", DefaultStatusCacheEntries)),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvFrom("config.yaml")
}

// LoadOrEnvFrom tries to load from path, falls back to environment variables
func LoadOrEnvFrom(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Reconcile.AmountTolerance < 0 || c.Reconcile.AmountTolerance >= 1 {
		return fmt.Errorf("reconcile.amount_tolerance must be in [0,1), got %v", c.Reconcile.AmountTolerance)
	}
	if c.Reconcile.DateToleranceDays < 0 {
		return fmt.Errorf("reconcile.date_tolerance_days must not be negative, got %d", c.Reconcile.DateToleranceDays)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch strings.ToLower(c.Observability.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("observability.logging.format must be text or json, got %q", c.Observability.Logging.Format)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = DefaultDatabasePath
	}
	if c.Reconcile.DateToleranceDays == 0 {
		c.Reconcile.DateToleranceDays = DefaultDateToleranceDays
	}
	if c.Reconcile.AmountTolerance == 0 {
		c.Reconcile.AmountTolerance = DefaultAmountTolerance
	}
	if c.Reconcile.UserConcurrency <= 0 {
		c.Reconcile.UserConcurrency = DefaultUserConcurrency
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Cache.StatusMaxEntries <= 0 {
		c.Cache.StatusMaxEntries = DefaultStatusCacheEntries
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// loadDotEnv loads .env if present. Variables already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
