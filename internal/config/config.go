package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort      int
	DBPath        string
	AuthSecret    string
	EmailSuffix   string
	SessionMaxAge time.Duration
	PollLimit     int
	PollWindow    time.Duration
	RefreshLimit  int
	RefreshWindow time.Duration
	PushRate      float64
	PushBurst     int
}

func Load() Config {
	return Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 3080),
		DBPath:        getEnvString("DB_PATH", ""),
		AuthSecret:    getEnvString("AUTH_SECRET", ""),
		EmailSuffix:   getEnvString("EMAIL_SUFFIX", "@bharatmail.in"),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		PollLimit:     getEnvInt("POLL_LIMIT", 30),
		PollWindow:    getEnvDuration("POLL_WINDOW", time.Minute),
		RefreshLimit:  getEnvInt("REFRESH_LIMIT", 10),
		RefreshWindow: getEnvDuration("REFRESH_WINDOW", time.Minute),
		PushRate:      getEnvFloat("PUSH_RATE", 5),
		PushBurst:     getEnvInt("PUSH_BURST", 10),
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
