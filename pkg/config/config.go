package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment             string
	APIBaseURL              string
	RequestTimeout          time.Duration
	RefreshInterval         time.Duration
	RedisURL                string
	LogLevel                string
	MetricsAddr             string
	SessionFile             string
	RetryMaxAttempts        int
	RetryInitialBackoff     time.Duration
	BreakerFailureThreshold int
	ReconcileLockTTL        time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	timeoutSec, err := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS: %w", err)
	}

	refreshMin, err := strconv.Atoi(getEnv("REFRESH_INTERVAL_MINUTES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL_MINUTES: %w", err)
	}

	retryAttempts, err := strconv.Atoi(getEnv("RETRY_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}

	retryBackoffMS, err := strconv.Atoi(getEnv("RETRY_INITIAL_BACKOFF_MS", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_INITIAL_BACKOFF_MS: %w", err)
	}

	breakerThreshold, err := strconv.Atoi(getEnv("BREAKER_FAILURE_THRESHOLD", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: %w", err)
	}

	lockTTLSec, err := strconv.Atoi(getEnv("RECONCILE_LOCK_TTL_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_LOCK_TTL_SECONDS: %w", err)
	}

	sessionFile := getEnv("LABTRACK_SESSION_FILE", "")
	if sessionFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		sessionFile = home + "/.labtrack/session"
	}

	return &Config{
		Environment:             getEnv("ENVIRONMENT", "development"),
		APIBaseURL:              getEnv("LABTRACK_API_URL", "http://localhost:8080/api"),
		RequestTimeout:          time.Duration(timeoutSec) * time.Second,
		RefreshInterval:         time.Duration(refreshMin) * time.Minute,
		RedisURL:                getEnv("REDIS_URL", ""),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		MetricsAddr:             getEnv("METRICS_ADDR", ""),
		SessionFile:             sessionFile,
		RetryMaxAttempts:        retryAttempts,
		RetryInitialBackoff:     time.Duration(retryBackoffMS) * time.Millisecond,
		BreakerFailureThreshold: breakerThreshold,
		ReconcileLockTTL:        time.Duration(lockTTLSec) * time.Second,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
