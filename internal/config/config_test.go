package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// t.Setenv restores the previous value when the test ends.
	for _, key := range []string{"PORT", "BASE_URL", "DB_DRIVER", "SCORING_URL", "SCORING_TIMEOUT",
		"UPLOAD_TIMEOUT", "IMPACT_WEIGHT_SUBMISSION", "CORS_ORIGINS", "STORAGE_PUBLIC_URL", "LOG_LEVEL",
		"MAX_DRAFTS_PER_USER", "MAX_RETAINED_BYTES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "http://localhost:8000", cfg.ScoringURL)
	assert.Equal(t, 30*time.Second, cfg.ScoringTimeout)
	assert.Equal(t, 60*time.Second, cfg.UploadTimeout)
	assert.Equal(t, 3, cfg.MaxDraftsPerUser)
	assert.Equal(t, int64(256<<20), cfg.MaxRetainedBytes)
	assert.Equal(t, int64(500), cfg.ImpactWeights.Submission)
	assert.Equal(t, int64(10), cfg.ImpactWeights.Rating)
	assert.Equal(t, int64(100), cfg.ImpactWeights.Pledge)
	assert.Equal(t, "http://localhost:8080/media", cfg.StoragePublicURL)
	assert.Equal(t, "http://localhost:8080/auth/google/callback", cfg.GoogleCallbackURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Nil(t, cfg.CorsOrigins)
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://planethub.example/")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("SCORING_TIMEOUT", "5s")
	t.Setenv("IMPACT_WEIGHT_PLEDGE", "250")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_DRAFTS_PER_USER", "5")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://planethub.example", cfg.BaseURL)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, 5*time.Second, cfg.ScoringTimeout)
	assert.Equal(t, int64(250), cfg.ImpactWeights.Pledge)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxDraftsPerUser)
	assert.True(t, cfg.GoogleEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "PORT", "eighty"},
		{"bad duration", "UPLOAD_TIMEOUT", "a minute"},
		{"bad bool", "COOKIE_SECURE", "maybe"},
		{"unknown driver", "DB_DRIVER", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
