package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Journal
	EntriesFile string

	// Stripe
	StripeSecretKey         string
	StripeAPIURL            string
	StripeTimeout           time.Duration
	StripeSubscriptionLimit int
	StripeChargeLimit       int

	// Notion
	NotionToken      string
	NotionDatabaseID string

	// Media lookups
	MediaTimeout   time.Duration
	MediaCacheTTL  time.Duration
	MediaCacheSize int

	// Snapshot history
	HistoryBackend   string
	SQLiteDBPath     string
	SnapshotInterval time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// WorkerMetricsAddr, when set, makes the snapshot worker serve
	// /metrics on this address.
	WorkerMetricsAddr string
}

var validHistoryBackends = []string{"memory", "sqlite"}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		EntriesFile: getEnv("ENTRIES_FILE", ""),

		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeAPIURL:            getEnv("STRIPE_API_URL", ""),
		StripeTimeout:           getEnvDuration("STRIPE_TIMEOUT", 10*time.Second),
		StripeSubscriptionLimit: getEnvInt("STRIPE_SUBSCRIPTION_LIMIT", 100),
		StripeChargeLimit:       getEnvInt("STRIPE_CHARGE_LIMIT", 10),

		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),

		MediaTimeout:   getEnvDuration("MEDIA_TIMEOUT", 5*time.Second),
		MediaCacheTTL:  getEnvDuration("MEDIA_CACHE_TTL", 6*time.Hour),
		MediaCacheSize: getEnvInt("MEDIA_CACHE_SIZE", 256),

		HistoryBackend:   getEnv("HISTORY_BACKEND", "memory"),
		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/personalos.db"),
		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 15*time.Minute),

		// AMQP is opt-in: with no URL the server stores snapshots directly.
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "personalos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "metrics_snapshots"),

		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ""),
	}
}

// StripeConfigured reports whether a Stripe secret key is available.
func (c *Config) StripeConfigured() bool {
	return c.StripeSecretKey != ""
}

// NotionConfigured reports whether both Notion credentials are present.
func (c *Config) NotionConfigured() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.EntriesFile != "" {
		if _, err := os.Stat(c.EntriesFile); err != nil {
			errors = append(errors, fmt.Sprintf("entries file '%s' is not readable: %v", c.EntriesFile, err))
		}
	}

	if c.StripeAPIURL != "" {
		if u, err := url.Parse(c.StripeAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid Stripe API URL '%s': must be an absolute URL", c.StripeAPIURL))
		}
	}
	if c.StripeTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid Stripe timeout %v: must be positive", c.StripeTimeout))
	}
	if c.StripeSubscriptionLimit < 1 || c.StripeSubscriptionLimit > 100 {
		errors = append(errors, fmt.Sprintf("invalid Stripe subscription limit %d: must be between 1 and 100", c.StripeSubscriptionLimit))
	}
	if c.StripeChargeLimit < 1 || c.StripeChargeLimit > 100 {
		errors = append(errors, fmt.Sprintf("invalid Stripe charge limit %d: must be between 1 and 100", c.StripeChargeLimit))
	}

	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		errors = append(errors, "NOTION_TOKEN and NOTION_DATABASE_ID must be set together")
	}

	if c.MediaTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid media timeout %v: must be positive", c.MediaTimeout))
	}
	if c.MediaCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid media cache size %d: must be at least 1", c.MediaCacheSize))
	}
	if c.MediaCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid media cache TTL %v: must be at least 1 second", c.MediaCacheTTL))
	}

	if !slices.Contains(validHistoryBackends, c.HistoryBackend) {
		errors = append(errors, fmt.Sprintf("invalid history backend '%s': must be one of %v", c.HistoryBackend, validHistoryBackends))
	}

	if c.HistoryBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite history backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SnapshotInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid snapshot interval %v: must be at least 1 minute", c.SnapshotInterval))
	} else if c.SnapshotInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid snapshot interval %v: must be at most 24 hours", c.SnapshotInterval))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
