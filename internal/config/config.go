package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	LogFile  string

	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	SuggestionStore string
	SeedFile        string

	IDNode           int64
	DocumentSuffixes []string
	DocumentCatalog  []string
	TimestampLayout  string

	OperatorJWTSecret  string
	CORSAllowedOrigins []string
	MutationRateLimit  float64
	MutationBurst      int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SuggestionQueueURL  string
	ResolutionQueueURL  string
	FeedWaitSeconds     int
	OutboxInterval      time.Duration
	OutboxMaxAttempts   int
	ProcessedRetention  time.Duration

	// Escalation email configuration
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	EscalationEmailTo string
}

// DefaultDocumentCatalog lists the template documents operators can send.
var DefaultDocumentCatalog = []string{
	"Enterprise_Pricing_v2.pdf",
	"Product_Catalog_2024.pdf",
	"Re_Engagement_Template.pdf",
	"Enterprise_Comparison.pdf",
	"Service_Agreement.pdf",
	"Feature_Overview.pdf",
}

// DefaultDocumentSuffixes are the file extensions treated as document artifacts.
var DefaultDocumentSuffixes = []string{".pdf", ".docx", ".xlsx", ".pptx"}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		SuggestionStore: strings.ToLower(strings.TrimSpace(getEnv("SUGGESTION_STORE", "memory"))),
		SeedFile:        getEnv("SEED_FILE", ""),

		IDNode:           int64(getEnvAsInt("ID_NODE", 1)),
		DocumentSuffixes: getEnvAsList("DOCUMENT_SUFFIXES", DefaultDocumentSuffixes),
		DocumentCatalog:  getEnvAsList("DOCUMENT_CATALOG", DefaultDocumentCatalog),
		TimestampLayout:  getEnv("TIMESTAMP_LAYOUT", "03:04 PM"),

		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		MutationRateLimit:  getEnvAsFloat("MUTATION_RATE_LIMIT", 10),
		MutationBurst:      getEnvAsInt("MUTATION_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SuggestionQueueURL:  getEnv("SUGGESTION_QUEUE_URL", ""),
		ResolutionQueueURL:  getEnv("RESOLUTION_QUEUE_URL", ""),
		FeedWaitSeconds:     getEnvAsInt("FEED_WAIT_SECONDS", 20),
		OutboxInterval:      getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxMaxAttempts:   getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		ProcessedRetention:  getEnvAsDuration("PROCESSED_RETENTION", 72*time.Hour),

		// Escalation email configuration
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Agent Console"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		EscalationEmailTo: getEnv("ESCALATION_EMAIL_TO", ""),
	}
}

// UsesRedisStore reports whether suggestions should live in Redis.
func (c *Config) UsesRedisStore() bool {
	return c.SuggestionStore == "redis" && c.RedisAddr != ""
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
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
