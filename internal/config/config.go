// Package config provides configuration management for the uptime rewards service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Rewards   RewardsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by the migration tool.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// RewardsConfig holds the accrual, reconciliation and claim settings.
type RewardsConfig struct {
	// CutoffOffsetHours is the fixed UTC offset the daily cutoff is anchored to.
	CutoffOffsetHours int
	// CutoffHour is the wall-clock hour (in that offset) at which the day ends.
	CutoffHour int

	HeartbeatInterval time.Duration
	DebounceDelay     time.Duration
	FlushInterval     time.Duration

	// IdleTimeout is how long a hosted session may go without a client call
	// before the reaper disposes it.
	IdleTimeout    time.Duration
	ReaperInterval time.Duration

	// CompletedReferralHours is the uptime a referred account needs to count as completed.
	CompletedReferralHours float64
}

// AuthConfig holds wallet-signature login settings
type AuthConfig struct {
	AppName    string
	JWTSecret  string
	SessionTTL time.Duration
	NonceTTL   time.Duration
	// AdminWallets are promoted to the admin role at startup.
	AdminWallets []string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "uptime_rewards"),
				User:           getEnv("POSTGRES_USER", "rewards"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 25),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Rewards: RewardsConfig{
			CutoffOffsetHours:      getEnvAsInt("CUTOFF_UTC_OFFSET_HOURS", -4),
			CutoffHour:             getEnvAsInt("CUTOFF_HOUR", 20),
			HeartbeatInterval:      getEnvAsDuration("SESSION_HEARTBEAT_INTERVAL", time.Second),
			DebounceDelay:          getEnvAsDuration("SESSION_SAVE_DEBOUNCE", 5*time.Second),
			FlushInterval:          getEnvAsDuration("SESSION_FLUSH_INTERVAL", 30*time.Second),
			IdleTimeout:            getEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Minute),
			ReaperInterval:         getEnvAsDuration("SESSION_REAPER_INTERVAL", 30*time.Second),
			CompletedReferralHours: getEnvAsFloat("REFERRAL_COMPLETED_HOURS", 100),
		},
		Auth: AuthConfig{
			AppName:      getEnv("APP_NAME", "Jharvi"),
			JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			SessionTTL:   getEnvAsDuration("AUTH_SESSION_TTL", 12*time.Hour),
			NonceTTL:     getEnvAsDuration("AUTH_NONCE_TTL", 10*time.Minute),
			AdminWallets: getEnvAsList("ADMIN_WALLETS"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that would make the accrual engine misbehave.
func (c *Config) Validate() error {
	if c.Rewards.CutoffHour < 0 || c.Rewards.CutoffHour > 23 {
		return fmt.Errorf("CUTOFF_HOUR must be between 0 and 23, got %d", c.Rewards.CutoffHour)
	}
	if c.Rewards.CutoffOffsetHours < -12 || c.Rewards.CutoffOffsetHours > 14 {
		return fmt.Errorf("CUTOFF_UTC_OFFSET_HOURS must be between -12 and 14, got %d", c.Rewards.CutoffOffsetHours)
	}
	if c.Rewards.HeartbeatInterval <= 0 {
		return fmt.Errorf("SESSION_HEARTBEAT_INTERVAL must be positive")
	}
	if c.Rewards.FlushInterval <= 0 {
		return fmt.Errorf("SESSION_FLUSH_INTERVAL must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated environment variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
