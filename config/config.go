package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	AppPort int

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresMaxConns int32

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisLockKey  string

	AdminBotToken string
	AdminID       int64
	AdminUsername string

	// Dispatch retries only cover serialization conflicts.
	DispatchMaxRetries  int
	DispatchRetryBaseMS int

	AuditIntervalSeconds int
	HealthAlertThreshold int
	BacklogBatchSize     int
}

func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "transferhub"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "debug"))
	cfg.AppPort = cast.ToInt(getOrReturnDefault("APP_PORT", 8080))

	cfg.PostgresHost = cast.ToString(getOrReturnDefault("POSTGRES_HOST", "localhost"))
	cfg.PostgresPort = cast.ToString(getOrReturnDefault("POSTGRES_PORT", "5432"))
	cfg.PostgresUser = cast.ToString(getOrReturnDefault("POSTGRES_USER", "postgres"))
	cfg.PostgresPassword = cast.ToString(getOrReturnDefault("POSTGRES_PASSWORD", "1234"))
	cfg.PostgresDB = cast.ToString(getOrReturnDefault("POSTGRES_DB", "transferhub"))
	cfg.PostgresMaxConns = cast.ToInt32(getOrReturnDefault("POSTGRES_MAX_CONNS", 10))

	cfg.RedisHost = cast.ToString(getOrReturnDefault("REDIS_HOST", "localhost"))
	cfg.RedisPort = cast.ToString(getOrReturnDefault("REDIS_PORT", "6379"))
	cfg.RedisPassword = cast.ToString(getOrReturnDefault("REDIS_PASSWORD", ""))
	cfg.RedisLockKey = cast.ToString(getOrReturnDefault("REDIS_LOCK_KEY", "transferhub:audit-lock"))

	cfg.AdminBotToken = cast.ToString(getOrReturnDefault("ADMIN_BOT_TOKEN", ""))
	cfg.AdminID = cast.ToInt64(getOrReturnDefault("ADMIN_ID", 0))
	cfg.AdminUsername = cast.ToString(getOrReturnDefault("ADMIN_USERNAME", ""))

	cfg.DispatchMaxRetries = cast.ToInt(getOrReturnDefault("DISPATCH_MAX_RETRIES", 16))
	cfg.DispatchRetryBaseMS = cast.ToInt(getOrReturnDefault("DISPATCH_RETRY_BASE_MS", 10))

	cfg.AuditIntervalSeconds = cast.ToInt(getOrReturnDefault("AUDIT_INTERVAL_SECONDS", 300))
	cfg.HealthAlertThreshold = cast.ToInt(getOrReturnDefault("HEALTH_ALERT_THRESHOLD", 80))
	cfg.BacklogBatchSize = cast.ToInt(getOrReturnDefault("BACKLOG_BATCH_SIZE", 50))

	return cfg
}

func (c Config) Validate() error {
	if c.DispatchMaxRetries <= 0 {
		return fmt.Errorf("DISPATCH_MAX_RETRIES must be positive, got %d", c.DispatchMaxRetries)
	}
	if c.DispatchRetryBaseMS <= 0 {
		return fmt.Errorf("DISPATCH_RETRY_BASE_MS must be positive, got %d", c.DispatchRetryBaseMS)
	}
	if c.AuditIntervalSeconds <= 0 {
		return fmt.Errorf("AUDIT_INTERVAL_SECONDS must be positive, got %d", c.AuditIntervalSeconds)
	}
	if c.HealthAlertThreshold < 0 || c.HealthAlertThreshold > 100 {
		return fmt.Errorf("HEALTH_ALERT_THRESHOLD must be within [0,100], got %d", c.HealthAlertThreshold)
	}
	if c.BacklogBatchSize <= 0 {
		return fmt.Errorf("BACKLOG_BATCH_SIZE must be positive, got %d", c.BacklogBatchSize)
	}
	return nil
}

func (c Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
	)
}

func (c Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func (c Config) RetryBase() time.Duration {
	return time.Duration(c.DispatchRetryBaseMS) * time.Millisecond
}

func (c Config) AuditInterval() time.Duration {
	return time.Duration(c.AuditIntervalSeconds) * time.Second
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
