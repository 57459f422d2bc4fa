package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const devSessionSecret = "dev-secret-not-for-production-use-only"

// Config holds application configuration
type Config struct {
	Port        string
	Environment string // development, staging, production

	AdminSessionSecret string
	AdminUsername      string
	AdminPasswordHash  string
	AdminPassword      string // development only, hashed at startup

	DatabaseURL  string // empty selects the in-memory document store
	RedisURL     string
	RedisEnabled bool
	RabbitMQURL  string

	AllowedOrigins string
	LogLevel       string
	LogFormat      string

	OpenAPIValidation bool
	OpenAPISpecPath   string

	NotifyWebhookURL string
}

// Load loads configuration from environment variables and validates for production
func Load() *Config {
	cfg := fromEnv()

	// Validate production configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// LoadNotifier loads configuration for the notification worker, which only
// needs the broker and webhook settings.
func LoadNotifier() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.ValidateNotifier(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		AdminSessionSecret: getEnv("ADMIN_SESSION_SECRET", ""),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:  getEnv("ADMIN_PASSWORD_HASH", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisEnabled:       getEnvBool("REDIS_ENABLED", true),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		OpenAPIValidation:  getEnvBool("OPENAPI_VALIDATION", false),
		OpenAPISpecPath:    getEnv("OPENAPI_SPEC_PATH", "artifacts/openapi.yaml"),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
	}
}

// ValidateNotifier checks the settings the notification worker depends on.
func (c *Config) ValidateNotifier() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL must be set")
	}
	if c.NotifyWebhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL must be set")
	}
	if c.IsProduction() && !strings.HasPrefix(c.NotifyWebhookURL, "https://") {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL must use https in production")
	}
	return nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME must not be empty")
	}

	// Production environment requires strong secrets
	if c.IsProduction() {
		if c.AdminSessionSecret == "" || c.AdminSessionSecret == devSessionSecret {
			return fmt.Errorf("ADMIN_SESSION_SECRET must be set to a strong random value in production")
		}

		if len(c.AdminSessionSecret) < 32 {
			return fmt.Errorf("ADMIN_SESSION_SECRET must be at least 32 characters in production (got %d)", len(c.AdminSessionSecret))
		}

		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be set in production")
		}

		if c.AdminPassword != "" {
			return fmt.Errorf("ADMIN_PASSWORD is not accepted in production, use ADMIN_PASSWORD_HASH")
		}

		if c.AllowedOrigins != "" && strings.Contains(c.AllowedOrigins, "http://") {
			log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
		}

		return nil
	}

	// Development/staging: provide defaults if not set
	if c.AdminSessionSecret == "" {
		c.AdminSessionSecret = devSessionSecret
		log.Println("Using default ADMIN_SESSION_SECRET for development")
	}

	if c.AdminPasswordHash == "" && c.AdminPassword == "" {
		c.AdminPassword = "admin"
		log.Println("Using default admin password for development")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

// UseRedis reports whether the external rate limit store should be tried.
func (c *Config) UseRedis() bool {
	return c.RedisEnabled && c.RedisURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid boolean for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}
