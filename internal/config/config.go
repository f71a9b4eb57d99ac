package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment     string
	Port            string
	DBHost          string
	DBPort          string
	DBUsername      string
	DBPassword      string
	DBName          string
	DBSSLMode       string
	AttachmentBase  string
	IMAPDefaultHost string
	IMAPDefaultPort int
	IMAPDefaultTLS  bool
	SessionTTL      time.Duration
	IdleTimeout     time.Duration
	SyncInterval    time.Duration
	SweepInterval   time.Duration
	BackfillCount   int
}

func NewConfig() (*Config, error) {
	env := os.Getenv("AMEFIS_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:     env,
		Port:            getEnvOrDefault("PORT", "4001"),
		DBHost:          getEnvOrDefault("AMEFIS_DB_HOST", "localhost"),
		DBPort:          getEnvOrDefault("AMEFIS_DB_PORT", "5432"),
		DBUsername:      getEnvOrDefault("AMEFIS_DB_USER", "mailcache"),
		DBPassword:      os.Getenv("AMEFIS_DB_PASSWORD"),
		DBName:          getEnvOrDefault("AMEFIS_DB_NAME", "mailcache"),
		DBSSLMode:       getEnvOrDefault("AMEFIS_DB_SSLMODE", "disable"),
		AttachmentBase:  getEnvOrDefault("AMEFIS_ATTACH_BASE", "./data"),
		IMAPDefaultHost: os.Getenv("AMEFIS_IMAP_DEFAULT_HOST"),
		IMAPDefaultPort: getEnvIntOrDefault("AMEFIS_IMAP_DEFAULT_PORT", 993),
		IMAPDefaultTLS:  getEnvOrDefault("AMEFIS_IMAP_DEFAULT_TLS", "true") == "true",
		SessionTTL:      getEnvDurationOrDefault("AMEFIS_SESSION_TTL", 2*time.Hour),
		IdleTimeout:     getEnvDurationOrDefault("AMEFIS_IDLE_TIMEOUT", 2*time.Hour),
		SyncInterval:    getEnvDurationOrDefault("AMEFIS_SYNC_INTERVAL", time.Minute),
		SweepInterval:   getEnvDurationOrDefault("AMEFIS_SWEEP_INTERVAL", time.Minute),
		BackfillCount:   getEnvIntOrDefault("AMEFIS_BACKFILL_COUNT", 50),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("AMEFIS_DB_PASSWORD is required")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("AMEFIS_SESSION_TTL must be positive")
	}

	if c.BackfillCount <= 0 {
		return fmt.Errorf("AMEFIS_BACKFILL_COUNT must be positive")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
