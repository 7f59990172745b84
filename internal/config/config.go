package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel slog.Level

	WikidataAPIURL    string
	UserAgent         string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	FetchConcurrency  int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	OutputDir string
}

func Load() (*Config, error) {
	// .env is optional; real settings come from the environment.
	_ = godotenv.Load()

	return &Config{
		LogLevel: getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),

		WikidataAPIURL:    getEnv("WIKIDATA_API_URL", "https://www.wikidata.org/w/api.php"),
		UserAgent:         getEnv("USER_AGENT", "metrograph/1.0"),
		HTTPTimeout:       getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		RequestsPerSecond: getFloatEnv("REQUESTS_PER_SECOND", 2),
		FetchConcurrency:  getIntEnv("FETCH_CONCURRENCY", 4),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", 90*24*time.Hour),

		OutputDir: getEnv("OUTPUT_DIR", "out"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}
