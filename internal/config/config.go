package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Market   MarketConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// MarketConfig holds market-engine settings. HouseUserID is the well-known
// house liquidity provider for this environment; subsidies and automated
// liquidity are attributed to it.
type MarketConfig struct {
	HouseUserID       uint
	ResolutionFeeRate float64
}

// JobsConfig holds scheduled-job settings
type JobsConfig struct {
	DrizzleInterval     time.Duration
	DrizzleWorkers      int
	LoanAccrualInterval time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mana_market"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Market: MarketConfig{
			HouseUserID:       uint(getEnvInt("HOUSE_USER_ID", 1)),
			ResolutionFeeRate: getEnvFloat("RESOLUTION_FEE_RATE", 0.01),
		},
		Jobs: JobsConfig{
			DrizzleInterval:     getEnvDuration("DRIZZLE_INTERVAL", 10*time.Minute),
			DrizzleWorkers:      getEnvInt("DRIZZLE_WORKERS", 10),
			LoanAccrualInterval: getEnvDuration("LOAN_ACCRUAL_INTERVAL", 24*time.Hour),
		},
	}

	if config.Market.HouseUserID == 0 {
		return nil, fmt.Errorf("HOUSE_USER_ID must be a positive user id")
	}
	if config.Jobs.DrizzleWorkers <= 0 {
		return nil, fmt.Errorf("DRIZZLE_WORKERS must be positive")
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
