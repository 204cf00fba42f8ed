package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

// Config holds everything the binary reads from the environment.
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxConns     int32
	LockTimeout    time.Duration
	TxMaxAttempts  int
	TxRetryBackoff time.Duration

	// Watak defaults, used when neither the draft nor a settlement rule supplies a value
	CommissionPercent decimal.Decimal
	LaborRate         decimal.Decimal
	LaborExemptItem   string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	logDefaults := logger.DefaultConfig()
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		LaborExemptItem: getEnv("WATAK_LABOR_EXEMPT_ITEM", ""),
		LogLevel:        getEnv("LOG_LEVEL", logDefaults.Level),
		LogFormat:       getEnv("LOG_FORMAT", logDefaults.Format),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", logDefaults.TimeFormat),
		LogOutput:       getEnv("LOG_OUTPUT", logDefaults.Output),
	}

	var err error
	maxConns, err := strconv.Atoi(getEnv("DB_MAX_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_CONNS: %w", err)
	}
	cfg.DBMaxConns = int32(maxConns)

	if cfg.LockTimeout, err = time.ParseDuration(getEnv("LOCK_TIMEOUT", "3s")); err != nil {
		return nil, fmt.Errorf("LOCK_TIMEOUT: %w", err)
	}
	if cfg.TxMaxAttempts, err = strconv.Atoi(getEnv("TX_MAX_ATTEMPTS", "3")); err != nil {
		return nil, fmt.Errorf("TX_MAX_ATTEMPTS: %w", err)
	}
	if cfg.TxRetryBackoff, err = time.ParseDuration(getEnv("TX_RETRY_BACKOFF", "50ms")); err != nil {
		return nil, fmt.Errorf("TX_RETRY_BACKOFF: %w", err)
	}
	if cfg.CommissionPercent, err = decimal.NewFromString(getEnv("WATAK_COMMISSION_PERCENT", "6")); err != nil {
		return nil, fmt.Errorf("WATAK_COMMISSION_PERCENT: %w", err)
	}
	if cfg.LaborRate, err = decimal.NewFromString(getEnv("WATAK_LABOR_RATE", "0")); err != nil {
		return nil, fmt.Errorf("WATAK_LABOR_RATE: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1, got %d", c.TxMaxAttempts)
	}
	if c.CommissionPercent.IsNegative() {
		return fmt.Errorf("WATAK_COMMISSION_PERCENT cannot be negative, got %s", c.CommissionPercent)
	}
	if c.LaborRate.IsNegative() {
		return fmt.Errorf("WATAK_LABOR_RATE cannot be negative, got %s", c.LaborRate)
	}
	return nil
}

// GetLoggerConfig returns the logger configuration derived from the main config.
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
