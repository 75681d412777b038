package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string
	ApiPort   string

	PublicURL string

	FipeBaseURL string
	FipeToken   string

	PaymentBaseURL     string
	PaymentAccessToken string

	// LookupFee is the price in BRL of one full plate report.
	LookupFee decimal.Decimal
}

// New loads and validates configuration from environment variables.
// NATS is optional: if PLACA_NATS_HOST/PORT are unset, the webhook handler
// reconciles notifications inline instead of through the queue worker.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:             os.Getenv("PLACA_POSTGRES_USER"),
		DBPass:             os.Getenv("PLACA_POSTGRES_PASSWORD"),
		DBHost:             os.Getenv("PLACA_POSTGRES_HOST"),
		DBPort:             os.Getenv("PLACA_POSTGRES_PORT"),
		DBName:             os.Getenv("PLACA_POSTGRES_DB"),
		SSLMode:            os.Getenv("PLACA_POSTGRES_SSLMODE"),
		RedisHost:          os.Getenv("PLACA_REDIS_HOST"),
		RedisPort:          os.Getenv("PLACA_REDIS_PORT"),
		NatsHost:           os.Getenv("PLACA_NATS_HOST"),
		NatsPort:           os.Getenv("PLACA_NATS_PORT"),
		ApiPort:            getEnv("PLACA_API_PORT", "8080"),
		PublicURL:          os.Getenv("PLACA_PUBLIC_URL"),
		FipeBaseURL:        getEnv("PLACA_FIPE_BASE_URL", "https://api.placafipe.com.br"),
		FipeToken:          os.Getenv("PLACA_FIPE_TOKEN"),
		PaymentBaseURL:     getEnv("PLACA_PAYMENT_BASE_URL", "https://api.mercadopago.com"),
		PaymentAccessToken: os.Getenv("PLACA_PAYMENT_ACCESS_TOKEN"),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: PLACA_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: PLACA_REDIS_HOST/PORT")
	}

	// Required: lookup provider credentials
	if cfg.FipeToken == "" {
		return nil, fmt.Errorf("missing required env: PLACA_FIPE_TOKEN")
	}

	// Required: payment provider credentials
	if cfg.PaymentAccessToken == "" {
		return nil, fmt.Errorf("missing required env: PLACA_PAYMENT_ACCESS_TOKEN")
	}

	fee := getEnv("PLACA_LOOKUP_FEE", "11.99")
	parsed, err := decimal.NewFromString(fee)
	if err != nil || parsed.Sign() <= 0 {
		return nil, fmt.Errorf("invalid PLACA_LOOKUP_FEE %q", fee)
	}
	cfg.LookupFee = parsed

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS connection URL if NATS is configured.
func (c *Config) NatsAddr() (string, error) {
	if c.NatsHost == "" || c.NatsPort == "" {
		return "", fmt.Errorf("NATS is not configured (PLACA_NATS_HOST/PORT)")
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort), nil
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

// NotificationURL is the public webhook endpoint handed to the payment
// provider when creating a checkout. Empty if PLACA_PUBLIC_URL is unset.
func (c *Config) NotificationURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return c.PublicURL + "/api/payments/notifications"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
