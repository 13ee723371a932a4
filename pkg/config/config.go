package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음 (도메인 파라미터는 stageconfig YAML)
type Config struct {
	Env string // development, staging, production

	// Paths
	DataDir         string // bars/, stages/, spiders/, gate/ 의 루트
	StageConfigPath string

	// Batch
	Workers int

	// Database (optional: 파일 모드는 DB 없이 동작)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// API
	API APIConfig

	// Scheduler
	Schedule string // cron spec (robfig/cron, seconds field 포함)

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// APIConfig holds the query service configuration
type APIConfig struct {
	Port           string
	RateLimitRPS   float64
	RateLimitBurst int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		DataDir:         getEnv("DATA_DIR", "data"),
		StageConfigPath: getEnv("STAGEGATE_CONFIG", "config/stagegate.yaml"),

		Workers: getEnvAsInt("WORKERS", 4),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		API: APIConfig{
			Port:           getEnv("PORT", "8089"),
			RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 100),
			ReadTimeout:    getEnvAsDuration("API_READ_TIMEOUT", "15s"),
			WriteTimeout:   getEnvAsDuration("API_WRITE_TIMEOUT", "15s"),
		},

		// 미국장 마감 후 (평일 22:30 UTC)
		Schedule: getEnv("SCHEDULE", "0 30 22 * * 1-5"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1")
	}
	if c.API.RateLimitRPS <= 0 || c.API.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1")
	}
	return nil
}

// Path joins elements under DataDir
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
