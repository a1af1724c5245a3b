package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "DATABASE_URL", "REDIS_HOST", "TOKEN_TTL", "CORS_ORIGINS", "STORAGE_DRIVER", "DB_NAME"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.URL, "dbname=sparkfeed")
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "/tmp/feed.db")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/feed.db", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 0.25, cfg.Tracing.SamplingRate)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "sqlite"},
		Storage:  StorageConfig{Driver: "memory"},
	}
	assert.Error(t, cfg.ValidateServer())

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Storage.Driver = "s3"
	assert.Error(t, cfg.ValidateServer())
	cfg.Storage.Bucket = "media"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.ValidateServer())
}
