package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Database configuration
	DatabasePath string

	// Scheduler configuration
	TickSeconds       int
	MaxConcurrentRuns int

	// Connector fan-out timeout
	ConnectorTimeoutSeconds int

	// Realtime push configuration
	RedisAddr string

	// Email alert configuration
	EmailAlertsEnabled bool
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string

	// Raw batch archival (optional)
	StorageAccount   string
	StorageContainer string

	// Connector credentials
	YouTubeAPIKey   string
	XBearerToken    string
	MetaAccessToken string

	// Local news feeds polled by the RSS connector
	NewsFeeds []string

	// Sentiment model endpoint
	SentimentAPIURL   string
	SentimentAPIToken string

	// Deduplication policy: "off" (store fingerprints only) or "reject"
	// (skip inserts whose fingerprint already exists for the project)
	DedupPolicy string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabasePath: getEnv("DATABASE_PATH", "khabarwatch.db"),

		TickSeconds:       getIntEnv("SCHEDULER_TICK_SECONDS", 60),
		MaxConcurrentRuns: getIntEnv("MAX_CONCURRENT_RUNS", 4),

		ConnectorTimeoutSeconds: getIntEnv("CONNECTOR_TIMEOUT_SECONDS", 25),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		EmailAlertsEnabled: getBoolEnv("EMAIL_ALERTS_ENABLED", false),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "raw-batches"),

		YouTubeAPIKey:   getEnv("YOUTUBE_API_KEY", ""),
		XBearerToken:    getEnv("X_BEARER_TOKEN", ""),
		MetaAccessToken: getEnv("META_ACCESS_TOKEN", ""),

		NewsFeeds: getSliceEnv("NEWS_FEEDS", []string{
			"https://timesofindia.indiatimes.com/rssfeedstopstories.cms",
			"https://www.thehindu.com/news/national/feeder/default.rss",
			"https://feeds.feedburner.com/ndtvnews-top-stories",
			"https://www.amarujala.com/rss/breaking-news.xml",
		}),

		SentimentAPIURL:   getEnv("SENTIMENT_API_URL", ""),
		SentimentAPIToken: getEnv("SENTIMENT_API_TOKEN", ""),

		DedupPolicy: getEnv("DEDUP_POLICY", "off"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TickSeconds < 1 {
		return fmt.Errorf("SCHEDULER_TICK_SECONDS must be at least 1")
	}

	if c.DedupPolicy != "off" && c.DedupPolicy != "reject" {
		return fmt.Errorf("DEDUP_POLICY must be 'off' or 'reject'")
	}

	if c.EmailAlertsEnabled {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when EMAIL_ALERTS_ENABLED is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
