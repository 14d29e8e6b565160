// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot backends for the company directory
const (
	SnapshotBackendFile = "file"
	SnapshotBackendS3   = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the cache database and directory snapshot (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	DART     DARTConfig
	Cache    CacheConfig
	Snapshot SnapshotConfig
	Schedule ScheduleConfig
}

// DARTConfig holds upstream API settings
type DARTConfig struct {
	APIKey             string
	BaseURL            string
	RateLimitPerSecond int
	Timeout            time.Duration
	RetryMaxAttempts   int
	CorpCodeExpiryDays int
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Path       string
	ExpiryDays int
}

// SnapshotConfig selects where the company directory snapshot lives
type SnapshotConfig struct {
	Backend     string // "file" or "s3"
	Path        string // file backend
	S3Bucket    string
	S3Key       string
	S3Region    string
	S3Endpoint  string // S3-compatible endpoint (R2, MinIO); empty for AWS
	S3AccessKey string
	S3SecretKey string
}

// ScheduleConfig holds cron schedules for maintenance jobs
type ScheduleConfig struct {
	CacheCleanup    string
	CacheCheck      string
	CorpCodeRefresh string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Port:      getEnvAsInt("PORT", 8000),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		DART: DARTConfig{
			APIKey:             getEnv("DART_API_KEY", ""),
			BaseURL:            getEnv("DART_BASE_URL", "https://opendart.fss.or.kr/api"),
			RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 5),
			Timeout:            getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
			RetryMaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			CorpCodeExpiryDays: getEnvAsInt("CORP_CODE_EXPIRY_DAYS", 30),
		},
		Cache: CacheConfig{
			Path:       filepath.Join(absDataDir, "cache.db"),
			ExpiryDays: getEnvAsInt("CACHE_EXPIRY_DAYS", 30),
		},
		Snapshot: SnapshotConfig{
			Backend:     strings.ToLower(getEnv("SNAPSHOT_BACKEND", SnapshotBackendFile)),
			Path:        filepath.Join(absDataDir, "corp_code.xml"),
			S3Bucket:    getEnv("SNAPSHOT_S3_BUCKET", ""),
			S3Key:       getEnv("SNAPSHOT_S3_KEY", "dart/corp_code.xml"),
			S3Region:    getEnv("SNAPSHOT_S3_REGION", ""),
			S3Endpoint:  getEnv("SNAPSHOT_S3_ENDPOINT", ""),
			S3AccessKey: getEnv("SNAPSHOT_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("SNAPSHOT_S3_SECRET_KEY", ""),
		},
		Schedule: ScheduleConfig{
			CacheCleanup:    getEnv("CACHE_CLEANUP_SCHEDULE", "@daily"),
			CacheCheck:      getEnv("CACHE_CHECK_SCHEDULE", "0 30 3 * * *"),
			CorpCodeRefresh: getEnv("CORP_CODE_REFRESH_SCHEDULE", "@weekly"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DART.APIKey == "" {
		return errors.New("DART_API_KEY is required")
	}
	if c.DART.RateLimitPerSecond < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND must be positive, got %d", c.DART.RateLimitPerSecond)
	}
	if c.DART.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.DART.RetryMaxAttempts)
	}

	switch c.Snapshot.Backend {
	case SnapshotBackendFile:
	case SnapshotBackendS3:
		if c.Snapshot.S3Bucket == "" {
			return errors.New("SNAPSHOT_S3_BUCKET is required when SNAPSHOT_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_BACKEND %q (want %q or %q)", c.Snapshot.Backend, SnapshotBackendFile, SnapshotBackendS3)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
