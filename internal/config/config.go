package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DBUrl               string
	JWTSecret           string
	AppEnv              string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	VideoAPIBaseURL     string
	VideoAPIKey         string
	RefundCutoffHours   int
	QuorumWindowHours   int
	RequestTTLMinutes   int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBUrl:               getEnv("DB_URL", ""),
		JWTSecret:           jwtSecret,
		AppEnv:              normalizeEnv(getEnv("APP_ENV", "production")),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", "no-reply@mentorapp.local"),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "MentorApp"),
		StripeAPIKey:        getEnv("STRIPE_API_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/calls/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/calls/checkout/cancelled?session_id={CHECKOUT_SESSION_ID}"),
		VideoAPIBaseURL:     getEnv("VIDEO_API_BASE_URL", ""),
		VideoAPIKey:         getEnv("VIDEO_API_KEY", ""),
		RefundCutoffHours:   getEnvInt("REFUND_CUTOFF_HOURS", 24),
		QuorumWindowHours:   getEnvInt("QUORUM_WINDOW_HOURS", 24),
		RequestTTLMinutes:   getEnvInt("REQUEST_TTL_MINUTES", 30),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
