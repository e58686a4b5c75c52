package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Port        string
	BaseURL     string
	LogLevel    string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string

	Stripe   StripeConfig
	Telegram TelegramConfig

	EarlyAccessDeadline *time.Time
	LinkCodeTTL         time.Duration
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	PriceMonthly20 string
	PriceMonthly30 string
	PriceYearly280 string
}

type TelegramConfig struct {
	BotToken    string
	GroupChatID int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "clubgate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Port:        getenv("PORT", "4005"),
		BaseURL:     getenv("BASE_URL", "http://localhost:4005"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "clubgate"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Stripe: StripeConfig{
			SecretKey:      strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:  strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			PriceMonthly20: strings.TrimSpace(getenv("STRIPE_PRICE_ID_MONTHLY_20", "")),
			PriceMonthly30: strings.TrimSpace(getenv("STRIPE_PRICE_ID_MONTHLY_30", "")),
			PriceYearly280: strings.TrimSpace(getenv("STRIPE_PRICE_ID_YEARLY_280", "")),
		},
		Telegram: TelegramConfig{
			BotToken:    strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
			GroupChatID: getenvInt64("TELEGRAM_GROUP_CHAT_ID", 0),
		},

		LinkCodeTTL: getenvDuration("LINK_CODE_TTL", 15*time.Minute),
	}

	if raw := strings.TrimSpace(os.Getenv("EARLY_ACCESS_DEADLINE")); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			cfg.EarlyAccessDeadline = &parsed
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
