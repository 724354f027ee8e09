package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.DSN)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Rules.StrictOverlap)
	assert.Equal(t, 30*time.Second, cfg.Rules.CacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.Placement.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("RULES_STRICT_OVERLAP", "true")
	t.Setenv("PLACEMENT_SESSION_TTL", "15m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Rules.StrictOverlap)
	assert.Equal(t, 15*time.Minute, cfg.Placement.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "unparsable port", key: "SERVER_PORT", value: "eighty", want: "parse env"},
		{name: "port out of range", key: "SERVER_PORT", value: "70000", want: "invalid server port"},
		{name: "unknown driver", key: "STORAGE_DRIVER", value: "sqlite", want: "unknown storage driver"},
		{name: "zero cache ttl", key: "RULES_CACHE_TTL", value: "0s", want: "cache TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
