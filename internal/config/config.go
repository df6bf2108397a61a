package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool
	WorkerCount    int

	// Task queue (SQS or in-memory for development).
	TaskQueueURL        string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Outbound channel delivery.
	ChannelDeliveryURL   string
	ChannelDeliveryToken string

	// Payment checkout sessions.
	CheckoutBaseURL    string
	CheckoutAPIKey     string
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	// Confirmation email.
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Conversational engine tuning.
	Timezone        string
	ContextLookback time.Duration
	SlotGuardWindow time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		TaskQueueURL:        getEnv("TASK_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ChannelDeliveryURL:   getEnv("CHANNEL_DELIVERY_URL", ""),
		ChannelDeliveryToken: getEnv("CHANNEL_DELIVERY_TOKEN", ""),

		CheckoutBaseURL:    getEnv("CHECKOUT_BASE_URL", ""),
		CheckoutAPIKey:     getEnv("CHECKOUT_API_KEY", ""),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ProMedia"),

		Timezone:        getEnv("APP_TIMEZONE", "America/Mexico_City"),
		ContextLookback: getEnvAsDuration("CONTEXT_LOOKBACK", 0),
		SlotGuardWindow: getEnvAsDuration("SLOT_GUARD_WINDOW", 5*time.Minute),
	}
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
