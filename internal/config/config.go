// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Marketplace settings
	CertificateValidityDays int // lifetime of an issued certificate
	ExpiryWarningDays       int // days before expiry a certificate becomes expiring_soon
	SuggestedPriceMarkup    int // percent added to the average listing price

	// Admin API
	AdminSecret string
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultCertificateValidity = 365
	DefaultExpiryWarningDays   = 10
	DefaultSuggestedMarkup     = 5
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:             os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		CertificateValidityDays: getEnvInt("CERTIFICATE_VALIDITY_DAYS", DefaultCertificateValidity),
		ExpiryWarningDays:       getEnvInt("EXPIRY_WARNING_DAYS", DefaultExpiryWarningDays),
		SuggestedPriceMarkup:    getEnvInt("SUGGESTED_PRICE_MARKUP", DefaultSuggestedMarkup),
		AdminSecret:             os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.CertificateValidityDays <= 0 {
		return fmt.Errorf("CERTIFICATE_VALIDITY_DAYS must be positive")
	}
	if c.ExpiryWarningDays < 0 || c.ExpiryWarningDays >= c.CertificateValidityDays {
		return fmt.Errorf("EXPIRY_WARNING_DAYS must be in [0, CERTIFICATE_VALIDITY_DAYS)")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
