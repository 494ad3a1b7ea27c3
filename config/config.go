package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	LocalStore      string
	SQLitePath      string
	RedisURL        string
	LocalQuotaBytes int

	HTTPAddr  string
	JWTSecret string

	RabbitMQURL     string
	EventsExchange  string
	RefreshQueue    string
	DeadLetterQueue string

	Sync SyncConfig
}

// SyncConfig holds the reconciliation, push and refresh tunables.
type SyncConfig struct {
	CustomerBatch     int
	OrderBatch        int
	ItemBatch         int
	PushDelay         time.Duration
	OrderFetchTimeout time.Duration
	PushTimeout       time.Duration
	RefreshDebounce   time.Duration
	RefreshMinGap     time.Duration
	RefreshInterval   time.Duration
	OutboxInterval    time.Duration
	OutboxMaxAttempts int
}

func LoadConfig() *Config {
	return &Config{
		DBUser:          getEnv("DB_USER", "root"),
		DBPassword:      getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", ""),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "3306"),
		DBName:          getEnv("DB_NAME", "backoffice"),
		LocalStore:      strings.ToLower(getEnv("LOCAL_STORE", "sqlite")),
		SQLitePath:      getEnv("SQLITE_PATH", "backoffice-cache.db"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		LocalQuotaBytes: getEnvInt("LOCAL_STORE_QUOTA_BYTES", 5*1024*1024), // localStorage-sized
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:       getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", ""),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		EventsExchange:  getEnv("EVENTS_EXCHANGE", "backoffice_events"),
		RefreshQueue:    getEnv("REFRESH_QUEUE", "backoffice_refresh"),
		DeadLetterQueue: getEnv("DEAD_LETTER_QUEUE", "backoffice_dead_letter"),
		Sync:            loadSyncConfig(),
	}
}

// DefaultSyncConfig returns the tunables used when no environment overrides are set.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		CustomerBatch:     10,
		OrderBatch:        5,
		ItemBatch:         50,
		PushDelay:         200 * time.Millisecond,
		OrderFetchTimeout: 8 * time.Second,
		PushTimeout:       10 * time.Second,
		RefreshDebounce:   time.Second,
		RefreshMinGap:     5 * time.Second,
		RefreshInterval:   5 * time.Minute,
		OutboxInterval:    30 * time.Second,
		OutboxMaxAttempts: 5,
	}
}

func loadSyncConfig() SyncConfig {
	d := DefaultSyncConfig()
	return SyncConfig{
		CustomerBatch:     getEnvInt("SYNC_CUSTOMER_BATCH", d.CustomerBatch),
		OrderBatch:        getEnvInt("SYNC_ORDER_BATCH", d.OrderBatch),
		ItemBatch:         getEnvInt("SYNC_ITEM_BATCH", d.ItemBatch),
		PushDelay:         getEnvDuration("SYNC_PUSH_DELAY", d.PushDelay),
		OrderFetchTimeout: getEnvDuration("SYNC_ORDER_FETCH_TIMEOUT", d.OrderFetchTimeout),
		PushTimeout:       getEnvDuration("SYNC_PUSH_TIMEOUT", d.PushTimeout),
		RefreshDebounce:   getEnvDuration("REFRESH_DEBOUNCE", d.RefreshDebounce),
		RefreshMinGap:     getEnvDuration("REFRESH_MIN_INTERVAL", d.RefreshMinGap),
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", d.RefreshInterval),
		OutboxInterval:    getEnvDuration("OUTBOX_INTERVAL", d.OutboxInterval),
		OutboxMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", d.OutboxMaxAttempts),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, defaultValue)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}
