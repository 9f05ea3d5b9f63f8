package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Studio
	Devices            []string
	Timezone           string
	ExpiryReminderDays int
	WorkerCount        int

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

// Load reads the full server configuration. Every missing required key is
// reported in one error.
func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	req := &required{}
	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:        req.get("DATABASE_URL"),
		RedisURL:           req.get("REDIS_URL"),
		JWTSecret:          req.get("JWT_SECRET"),
		Devices:            getEnvAsListOrDefault("STUDIO_DEVICES", nil),
		Timezone:           getEnvOrDefault("STUDIO_TIMEZONE", "UTC"),
		ExpiryReminderDays: getEnvAsIntOrDefault("EXPIRY_REMINDER_DAYS", 7),
		WorkerCount:        getEnvAsIntOrDefault("WORKER_COUNT", 3),
		SMTPHost:           getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:           getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:           getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:           getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:           getEnvOrDefault("SMTP_FROM", "noreply@studio.local"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}
	if err := req.err(); err != nil {
		return nil, err
	}

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1, got %d", cfg.WorkerCount)
	}
	if len(cfg.JWTSecret) < 16 && cfg.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET must be at least 16 characters in production")
	}

	return cfg, nil
}

// LoadDatabaseOnly is used by commands that never touch Redis or issue tokens.
func LoadDatabaseOnly() (*Config, error) {
	godotenv.Load()

	req := &required{}
	cfg := &Config{
		Env:         getEnvOrDefault("ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL: req.get("DATABASE_URL"),
	}
	if err := req.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// required collects the names of unset mandatory variables.
type required struct {
	missing []string
}

func (r *required) get(key string) string {
	val := os.Getenv(key)
	if val == "" {
		r.missing = append(r.missing, key)
	}
	return val
}

func (r *required) err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required environment variables: %s", strings.Join(r.missing, ", "))
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	var items []string
	for _, part := range strings.Split(val, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultVal
	}
	return items
}
