package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PaymentChannel     string
	GateChannelPrefix  string

	// Ticket configuration
	TicketCodeSecret string

	// Scan feed configuration
	ScanFeedLength int
	ScanFeedTTL    time.Duration

	// Rate limiting
	ScanRateLimit  int
	ScanRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PaymentChannel:     getEnv("PAYMENT_CHANNEL", "payment-notifications"),
		GateChannelPrefix:  getEnv("GATE_CHANNEL_PREFIX", "gate"),

		// Tickets
		TicketCodeSecret: getEnv("TICKET_CODE_SECRET", "dev-only-secret"),

		// Scan feed
		ScanFeedLength: getEnvAsInt("SCAN_FEED_LENGTH", 50),
		ScanFeedTTL:    getEnvAsDuration("SCAN_FEED_TTL", "24h"),

		// Rate limiting
		ScanRateLimit:  getEnvAsInt("SCAN_RATE_LIMIT", 60),
		ScanRateWindow: getEnvAsDuration("SCAN_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	parsed, _ := time.ParseDuration(defaultValue)
	return parsed
}
