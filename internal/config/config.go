package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/heitor/internal/conversation"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	StoreBackend  string
	QueueBackend  string
	WorkerCount   int
	AssistantName string
	OwnerName     string
	OwnerEmail    string

	// Engine bounds
	MaxMessages      int
	MaxHistory       int
	MaxFlow          int
	MaxContextWindow int
	TopicTimeout     time.Duration
	SaveAttempts     int

	// Persistence
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	ConversationsTable string

	// AWS
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string
	// How long an unacknowledged job stays hidden on the memory queue
	QueueVisibilityTimeout time.Duration

	// Kafka bus, used when QueueBackend is kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Language model
	LLMProvider      string
	BedrockModelID   string
	GeminiAPIKey     string
	GeminiModelID    string
	LLMBreaker       bool
	AudioReplyChance float64
	RandomSeed       int64

	AdminJWTSecret   string
	InboundRateLimit float64
	InboundRateBurst int

	// Reporting
	ReportTimezone  string
	DailyReportHour int

	// Email delivery: sendgrid, ses or none
	EmailProvider     string
	SESFromEmail      string
	SESReplyTo        string
	SESConfigSet      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		QueueBackend:  strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", "memory"))),
		WorkerCount:   getEnvAsInt("WORKER_COUNT", 4),
		AssistantName: getEnv("ASSISTANT_NAME", "Heitor"),
		OwnerName:     getEnv("OWNER_NAME", "Andrey"),
		OwnerEmail:    getEnv("OWNER_EMAIL", ""),

		MaxMessages:      getEnvAsInt("MAX_MESSAGES", conversation.DefaultLimits().MaxMessages),
		MaxHistory:       getEnvAsInt("MAX_HISTORY", conversation.DefaultLimits().MaxHistory),
		MaxFlow:          getEnvAsInt("MAX_FLOW", conversation.DefaultLimits().MaxFlow),
		MaxContextWindow: getEnvAsInt("MAX_CONTEXT_WINDOW", conversation.DefaultLimits().MaxContextWindow),
		TopicTimeout:     getEnvAsDuration("TOPIC_TIMEOUT", conversation.DefaultLimits().TopicTimeout),
		SaveAttempts:     getEnvAsInt("SAVE_ATTEMPTS", 8),

		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		ConversationsTable: getEnv("CONVERSATIONS_TABLE", "conversations"),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		QueueVisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "heitor.inbound"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "heitor"),

		LLMProvider:      strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "none"))),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:    getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMBreaker:       getEnvAsBool("LLM_BREAKER", true),
		AudioReplyChance: getEnvAsFloat("AUDIO_REPLY_CHANCE", 0.2),
		RandomSeed:       int64(getEnvAsInt("RANDOM_SEED", 0)),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		InboundRateLimit: getEnvAsFloat("INBOUND_RATE_LIMIT", 5),
		InboundRateBurst: getEnvAsInt("INBOUND_RATE_BURST", 20),

		ReportTimezone:  getEnv("REPORT_TIMEZONE", "America/Sao_Paulo"),
		DailyReportHour: getEnvAsInt("DAILY_REPORT_HOUR", 18),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESReplyTo:        getEnv("SES_REPLY_TO", ""),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Heitor"),
	}
}

// Limits converts the engine bounds into conversation.Limits, falling back to
// defaults for non-positive values.
func (c *Config) Limits() conversation.Limits {
	limits := conversation.DefaultLimits()
	if c == nil {
		return limits
	}
	if c.MaxMessages > 0 {
		limits.MaxMessages = c.MaxMessages
	}
	if c.MaxHistory > 0 {
		limits.MaxHistory = c.MaxHistory
	}
	if c.MaxFlow > 0 {
		limits.MaxFlow = c.MaxFlow
	}
	if c.MaxContextWindow > 0 {
		limits.MaxContextWindow = c.MaxContextWindow
	}
	if c.TopicTimeout > 0 {
		limits.TopicTimeout = c.TopicTimeout
	}
	return limits
}

// ReportLocation resolves the reporting timezone, defaulting to UTC.
func (c *Config) ReportLocation() *time.Location {
	if c == nil || strings.TrimSpace(c.ReportTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
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

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
