package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Contexta-knowledge/internal/config"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://kb:kb@localhost:5432/kb")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "key")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AIProvider)
	assert.Equal(t, "s3", cfg.StorageProvider)
	assert.Equal(t, "knowledge-files", cfg.BucketName)
	assert.Equal(t, 2000, cfg.ChunkMaxSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5, cfg.EnrichWidth)
	assert.Equal(t, 15*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 2, cfg.ArchiveAttempts)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := config.LoadConfig()
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestLoadConfig_OpenAIRequiresKey(t *testing.T) {
	setRequired(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := config.LoadConfig()
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestValidate_ChunkGeometry(t *testing.T) {
	cases := []struct {
		name    string
		max     int
		overlap int
		wantErr bool
	}{
		{"valid", 2000, 200, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals max", 100, 100, true},
		{"overlap above max", 100, 150, true},
		{"zero max", 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{
				DatabaseURL:     "postgres://x",
				JWTSecret:       "s",
				AIProvider:      "gemini",
				GeminiAPIKey:    "k",
				StorageProvider: "s3",
				ChunkMaxSize:    tc.max,
				ChunkOverlap:    tc.overlap,
				BatchSize:       50,
				EnrichWidth:     5,
				ArchiveAttempts: 2,
			}
			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_UnknownProviders(t *testing.T) {
	cfg := &config.Config{
		DatabaseURL:     "postgres://x",
		JWTSecret:       "s",
		AIProvider:      "bard",
		StorageProvider: "s3",
	}
	assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)

	cfg.AIProvider = "gemini"
	cfg.GeminiAPIKey = "k"
	cfg.StorageProvider = "gcs"
	assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
}
