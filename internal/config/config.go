package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment with an
// optional .env file for local development.
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTExpiry time.Duration

	PaymentWebhookSecret string

	OpenAIAPIKey string

	// UsageTimezone anchors daily quota windows to one canonical timezone so
	// a user cannot reset their counters by changing device timezones.
	UsageTimezone string
}

// LoadConfig reads configuration from the environment. A missing .env file is
// not an error.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		LogLevel:             parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "examprep.events"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		UsageTimezone:        getEnv("USAGE_TIMEZONE", "Asia/Ho_Chi_Minh"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}
	cfg.JWTExpiry = expiry

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.UsageTimezone); err != nil {
		return nil, fmt.Errorf("invalid USAGE_TIMEZONE %q: %w", cfg.UsageTimezone, err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
