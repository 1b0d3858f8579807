package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "usd", cfg.PaymentCurrency)
	assert.True(t, cfg.PaymentReconcile)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, 720*time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.Production())
}

func TestLoadSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0o600))
	t.Setenv("JWT_SECRET", "ignored")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown driver", map[string]string{"JWT_SECRET": "x", "DB_DRIVER": "postgres"}},
		{"negative page size", map[string]string{"JWT_SECRET": "x", "MAX_PAGE_SIZE": "-1"}},
		{"kafka without redis", map[string]string{"JWT_SECRET": "x", "KAFKA_BROKERS": "localhost:9092"}},
		{"zero rate limit", map[string]string{"JWT_SECRET": "x", "WRITE_RATE_LIMIT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
