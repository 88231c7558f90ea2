package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 採番カウンタの保存先
const (
	CounterStorePostgres = "postgres"
	CounterStoreRedis    = "redis"
)

// 一時パスワードの生成元
const (
	PasswordModeRemote = "remote"
	PasswordModeLocal  = "local"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Auth service
	AuthServiceURL    string
	AuthTimeout       time.Duration
	AuthHealthTimeout time.Duration
	AuthMaxAttempts   int
	AuthBackoffBase   time.Duration
	AuthBackoffMax    time.Duration
	AuthRateLimit     float64
	AuthPasswordMode  string

	// User code
	CounterStore   string
	RedisURL       string
	UserCodePrefix string

	// Rate Limit
	RateLimitGeneral      int
	RateLimitProvisioning int

	// Reconcile
	ReconcileBatchSize   int
	ReconcileConcurrency int
	ReconcileMinAge      time.Duration
	ReconcileInterval    time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthServiceURL = os.Getenv("AUTH_SERVICE_URL")
	if cfg.AuthServiceURL == "" {
		missing = append(missing, "AUTH_SERVICE_URL")
	}

	cfg.CounterStore = strings.ToLower(getEnvString("COUNTER_STORE", CounterStorePostgres))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.CounterStore == CounterStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.CounterStore != CounterStorePostgres && cfg.CounterStore != CounterStoreRedis {
		return nil, fmt.Errorf("COUNTER_STORE must be %q or %q: %q", CounterStorePostgres, CounterStoreRedis, cfg.CounterStore)
	}

	cfg.AuthPasswordMode = strings.ToLower(getEnvString("AUTH_PASSWORD_MODE", PasswordModeRemote))
	if cfg.AuthPasswordMode != PasswordModeRemote && cfg.AuthPasswordMode != PasswordModeLocal {
		return nil, fmt.Errorf("AUTH_PASSWORD_MODE must be %q or %q: %q", PasswordModeRemote, PasswordModeLocal, cfg.AuthPasswordMode)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.AuthTimeout = getEnvDuration("AUTH_TIMEOUT", 10*time.Second)
	cfg.AuthHealthTimeout = getEnvDuration("AUTH_HEALTH_TIMEOUT", 2*time.Second)
	cfg.AuthMaxAttempts = getEnvInt("AUTH_MAX_ATTEMPTS", 3)
	cfg.AuthBackoffBase = getEnvDuration("AUTH_BACKOFF_BASE", 500*time.Millisecond)
	cfg.AuthBackoffMax = getEnvDuration("AUTH_BACKOFF_MAX", 5*time.Second)
	cfg.AuthRateLimit = getEnvFloat("AUTH_RATE_LIMIT", 20)
	cfg.UserCodePrefix = getEnvString("USER_CODE_PREFIX", "USR")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitProvisioning = getEnvInt("RATE_LIMIT_PROVISIONING", 30)
	cfg.ReconcileBatchSize = getEnvInt("RECONCILE_BATCH_SIZE", 50)
	cfg.ReconcileConcurrency = getEnvInt("RECONCILE_CONCURRENCY", 4)
	cfg.ReconcileMinAge = getEnvDuration("RECONCILE_MIN_AGE", 5*time.Minute)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 0)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
