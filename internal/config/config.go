package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// HTTP edge
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// WhatsApp Cloud API
	WhatsAppToken         string
	WhatsAppPhoneID       string
	WhatsAppVerifyToken   string
	WhatsAppAPIBaseURL    string
	WhatsAppTenantMapJSON string
	WebhookDedupeTTL      time.Duration

	// Tenant resolution
	DefaultClinicID  string
	SingleTenantMode bool

	// Scheduling
	ClinicTimezone    string
	BusinessOpenHour  int
	BusinessCloseHour int
	SlotStep          time.Duration

	// Reminders
	ReminderLeadTime       time.Duration
	ReminderSweepInterval  time.Duration
	ReminderMaxAttempts    int
	ReminderRetryBaseDelay time.Duration
	ReminderConcurrency    int
	ReminderBatchSize      int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID:       getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppTenantMapJSON: getEnv("WHATSAPP_TENANT_MAP_JSON", ""),
		WebhookDedupeTTL:      getEnvAsDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour),

		DefaultClinicID:  strings.TrimSpace(getEnv("DEFAULT_CLINIC_ID", "")),
		SingleTenantMode: getEnvAsBool("SINGLE_TENANT_MODE", false),

		ClinicTimezone:    getEnv("CLINIC_TIMEZONE", "America/Santiago"),
		BusinessOpenHour:  getEnvAsInt("BUSINESS_OPEN_HOUR", 9),
		BusinessCloseHour: getEnvAsInt("BUSINESS_CLOSE_HOUR", 19),
		SlotStep:          getEnvAsDuration("SLOT_STEP", 60*time.Minute),

		ReminderLeadTime:       getEnvAsDuration("REMINDER_LEAD_TIME", 0),
		ReminderSweepInterval:  getEnvAsDuration("REMINDER_SWEEP_INTERVAL", 5*time.Minute),
		ReminderMaxAttempts:    getEnvAsInt("REMINDER_MAX_ATTEMPTS", 5),
		ReminderRetryBaseDelay: getEnvAsDuration("REMINDER_RETRY_BASE_DELAY", 5*time.Minute),
		ReminderConcurrency:    getEnvAsInt("REMINDER_CONCURRENCY", 4),
		ReminderBatchSize:      getEnvAsInt("REMINDER_BATCH_SIZE", 100),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when unknown.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
