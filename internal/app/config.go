package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	// RoomKey is the optional shared key every join must carry. Empty disables the check.
	RoomKey string

	MaxMessageBytes int64
	WriteTimeout    time.Duration
	OutboxSize      int

	CORSAllow []string

	DatabaseURL      string // audit trail in postgres; an in-memory ring when empty
	AuditQueue       int
	AuditMemoryLimit int
}

func LoadConfig() Config {
	return Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		RoomKey:          os.Getenv("ROOM_KEY"),
		MaxMessageBytes:  int64(getEnvInt("WS_MAX_MESSAGE_BYTES", 2_000_000)),
		WriteTimeout:     getEnvDuration("WS_WRITE_TIMEOUT", 3*time.Second),
		OutboxSize:       getEnvInt("WS_OUTBOX_SIZE", 64),
		CORSAllow:        splitCSV(getEnv("CORS_ALLOW", "*")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AuditQueue:       getEnvInt("AUDIT_QUEUE", 256),
		AuditMemoryLimit: getEnvInt("AUDIT_MEMORY_LIMIT", 1000),
	}
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses a positive int env var with a fallback
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
