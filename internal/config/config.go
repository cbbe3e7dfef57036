package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	TelegramToken string

	// Admin chat receives new requests; admin users may act on them
	AdminChatID  int64
	AdminUserIDs []int64

	// Movie channel the bot publishes into and indexes
	ChannelID       int64
	ChannelUsername string

	TMDBAPIKey       string
	TMDBImageBaseURL string
	TMDBLanguage     string

	StateTimeout         time.Duration
	SessionSweepInterval time.Duration
	ExternalTimeout      time.Duration

	FuzzyThreshold         int
	FuzzySubstringFallback bool
	SearchResultLimit      int
	CatalogScanLimit       int

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
	Port        string

	// Postgres holds requests and sessions
	DatabaseURL string
	UseMockDB   bool

	// MongoDB holds the channel index; empty URI keeps it in memory
	MongoURI      string
	MongoDatabase string

	// ClickHouse holds the transition journal; empty host keeps it in memory
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	LogLevel  string
	LogFormat string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	var err error

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if config.AdminChatID, err = requiredInt64("ADMIN_CHAT_ID"); err != nil {
		return nil, err
	}
	if config.AdminUserIDs, err = int64List("ADMIN_USER_IDS"); err != nil {
		return nil, err
	}

	if config.ChannelID, err = requiredInt64("MOVIE_CHANNEL_ID"); err != nil {
		return nil, err
	}
	config.ChannelUsername = strings.TrimPrefix(os.Getenv("MOVIE_CHANNEL_USERNAME"), "@")

	config.TMDBAPIKey = os.Getenv("TMDB_API_KEY")
	if config.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB_API_KEY is required")
	}
	config.TMDBImageBaseURL = getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500")
	config.TMDBLanguage = getEnv("TMDB_LANGUAGE", "en-US")

	stateSeconds, err := intValue("STATE_TIMEOUT_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	if stateSeconds <= 0 {
		return nil, fmt.Errorf("STATE_TIMEOUT_SECONDS must be positive")
	}
	config.StateTimeout = time.Duration(stateSeconds) * time.Second

	if config.SessionSweepInterval, err = durationValue("SESSION_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if config.ExternalTimeout, err = durationValue("EXTERNAL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if config.FuzzyThreshold, err = intValue("FUZZY_THRESHOLD", 85); err != nil {
		return nil, err
	}
	if config.FuzzyThreshold < 0 || config.FuzzyThreshold > 100 {
		return nil, fmt.Errorf("FUZZY_THRESHOLD must be between 0 and 100")
	}
	config.FuzzySubstringFallback = getEnv("FUZZY_SUBSTRING_FALLBACK", "true") == "true"
	if config.SearchResultLimit, err = intValue("SEARCH_RESULT_LIMIT", 5); err != nil {
		return nil, err
	}
	if config.CatalogScanLimit, err = intValue("CATALOG_SCAN_LIMIT", 200); err != nil {
		return nil, err
	}

	// Bot mode configuration
	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = strings.TrimSuffix(os.Getenv("WEBHOOK_URL"), "/")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	config.Port = getEnv("PORT", "8080")

	// Use Mock DB (default: false)
	config.UseMockDB = os.Getenv("USE_MOCK_DB") == "true"
	if !config.UseMockDB {
		config.DatabaseURL = os.Getenv("DATABASE_URL")
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when USE_MOCK_DB is not set")
		}
	}

	config.MongoURI = os.Getenv("MONGODB_URI")
	config.MongoDatabase = getEnv("MONGODB_DATABASE", "moviebot")

	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost != "" {
		if config.ClickHousePort, err = intValue("CLICKHOUSE_PORT", 9000); err != nil {
			return nil, err
		}
		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	config.LogLevel = getEnv("LOG_LEVEL", "info")
	config.LogFormat = getEnv("LOG_FORMAT", "json")

	return config, nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func requiredInt64(key string) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return v, nil
}

// int64List parses a comma-separated list of IDs
func int64List(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in %s: %s", key, idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intValue(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// durationValue accepts Go durations ("30s") or plain seconds
func durationValue(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	var d time.Duration
	if seconds, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
