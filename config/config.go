package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	MongoURI      string
	MongoDatabase string

	JWTSecret []byte

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	PaymentCurrency   string
	IntentTTL         time.Duration
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration

	MailHost string
	MailPort int
	MailUser string
	MailPass string

	ResetURLBase string

	KafkaBrokers    []string
	KafkaOrderTopic string

	OrderStatusPolicy string
}

// LoadEnv loads environment variables from a .env file
func LoadEnv() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Error loading .env file")
	}
}

// Load reads the server configuration. LoadEnv should run first.
func Load() Config {
	cfg := Config{
		AppEnv:   GetEnv("APP_ENV", "dev"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),
		Port:     GetEnv("PORT", "5000"),

		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: GetEnv("MONGODB_DATABASE", "desietsy"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   GetEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		PaymentCurrency:   GetEnv("PAYMENT_CURRENCY", "INR"),
		IntentTTL:         GetDuration("INTENT_TTL", 30*time.Minute),
		ReconcileInterval: GetDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileGrace:    GetDuration("RECONCILE_GRACE", 10*time.Minute),

		MailHost: GetEnv("MAIL_HOST", "smtp.gmail.com"),
		MailPort: GetInt("MAIL_PORT", 587),
		MailUser: os.Getenv("MAIL_USER"),
		MailPass: os.Getenv("MAIL_PASS"),

		ResetURLBase: GetEnv("RESET_URL_BASE", "http://localhost:3000"),

		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic: GetEnv("KAFKA_ORDER_TOPIC", "orders"),

		OrderStatusPolicy: GetEnv("ORDER_STATUS_POLICY", "monotonic"),
	}

	MustNonEmpty(cfg.MongoURI, "MONGODB_URI")
	MustNonEmpty(string(cfg.JWTSecret), "JWT_SECRET")

	return cfg
}

// GetEnv retrieves environment variables with a fallback
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetDuration accepts Go duration strings ("90s", "15m").
func GetDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}
