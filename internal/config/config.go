package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env     string
	Port    string
	AppURL  string
	AppName string

	DatabaseURL string

	JWTSecret         string
	SessionCookieName string
	SessionTTL        time.Duration
	AdminSetupKey     string
	InternalAPISecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string

	ResendAPIKey string
	FromEmail    string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RedisURL      string
	KafkaBrokers  []string
	KafkaDLQTopic string

	HighValueThreshold decimal.Decimal

	OutboxInterval     time.Duration
	OutboxMaxAttempts  int
	OutboxBatchSize    int
	OutboxInlineWorker bool
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	cfg := Config{
		Env:                 getenv("APP_ENV", "development"),
		Port:                getenv("PORT", "8080"),
		AppURL:              strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
		AppName:             getenv("APP_NAME", "DealRoom"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		SessionCookieName:   getenv("SESSION_COOKIE_NAME", "dealroom_session"),
		SessionTTL:          getenvDuration("SESSION_TTL", 7*24*time.Hour),
		AdminSetupKey:       os.Getenv("ADMIN_SETUP_KEY"),
		InternalAPISecret:   os.Getenv("INTERNAL_API_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentCurrency:     strings.ToLower(getenv("PAYMENT_CURRENCY", "usd")),
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		FromEmail:           getenv("FROM_EMAIL", "onboarding@resend.dev"),
		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaDLQTopic:       getenv("KAFKA_DLQ_TOPIC", "dealroom.outbox.dead-letter"),
		HighValueThreshold:  getenvDecimal("HIGH_VALUE_THRESHOLD", decimal.NewFromInt(100_000)),
		OutboxInterval:      getenvDuration("OUTBOX_INTERVAL", 5*time.Second),
		OutboxMaxAttempts:   getenvInt("OUTBOX_MAX_ATTEMPTS", 5),
		OutboxBatchSize:     getenvInt("OUTBOX_BATCH_SIZE", 50),
		OutboxInlineWorker:  getenvBool("OUTBOX_INLINE_WORKER", true),
	}

	dsn, err := databaseURL()
	if err != nil {
		return cfg, err
	}
	cfg.DatabaseURL = dsn

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET not set")
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL() (string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		log.Println("Using DATABASE_URL")
		return dsn, nil
	}

	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	port := os.Getenv("DB_PORT")

	if host == "" || user == "" || password == "" || dbname == "" || port == "" {
		return "", fmt.Errorf("database configuration not provided: either set DATABASE_URL or all of DB_HOST, DB_USER, DB_PASSWORD, DB_NAME, and DB_PORT")
	}

	log.Println("Using individual database environment variables")
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port,
	), nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskSecret hides all but the edges of a secret for logging.
func MaskSecret(s string) string {
	if len(s) == 0 {
		return "❌ EMPTY"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
