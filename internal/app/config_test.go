package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "HTTP_ADDR", "ROOM_KEY", "WS_MAX_MESSAGE_BYTES", "WS_WRITE_TIMEOUT", "WS_OUTBOX_SIZE", "CORS_ALLOW", "DATABASE_URL", "AUDIT_QUEUE", "AUDIT_MEMORY_LIMIT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.RoomKey)
	assert.EqualValues(t, 2_000_000, cfg.MaxMessageBytes)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, []string{"*"}, cfg.CORSAllow)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 1000, cfg.AuditMemoryLimit)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("ROOM_KEY", "letmein")
	t.Setenv("WS_MAX_MESSAGE_BYTES", "1024")
	t.Setenv("WS_WRITE_TIMEOUT", "250ms")
	t.Setenv("WS_OUTBOX_SIZE", "-3")
	t.Setenv("CORS_ALLOW", " http://a.test, ,http://b.test ")

	cfg := LoadConfig()

	assert.Equal(t, "letmein", cfg.RoomKey)
	assert.EqualValues(t, 1024, cfg.MaxMessageBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, 64, cfg.OutboxSize, "non-positive values fall back")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllow)
}
