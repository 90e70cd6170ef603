package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			CacheDir:           "./data/embeddings-cache",
			LedgerDir:          "./data/index",
			UploadMode:         ModeUpload,
			WeaviateHost:       "localhost:8080",
			EmbeddingDimension: 3072,
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Missing Cache Dir", func(t *testing.T) {
		cfg := valid()
		cfg.CacheDir = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("Missing Ledger Dir", func(t *testing.T) {
		cfg := valid()
		cfg.LedgerDir = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("Bad Mode", func(t *testing.T) {
		cfg := valid()
		cfg.UploadMode = "both"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Local Only Does Not Need Weaviate", func(t *testing.T) {
		cfg := valid()
		cfg.UploadMode = ModeLocalOnly
		cfg.WeaviateHost = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Upload Needs Weaviate", func(t *testing.T) {
		cfg := valid()
		cfg.WeaviateHost = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("Bad Dimension", func(t *testing.T) {
		cfg := valid()
		cfg.EmbeddingDimension = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, ModeUpload, cfg.UploadMode)
	assert.Equal(t, 50, cfg.AutoSaveThreshold)
	assert.Equal(t, 120, cfg.SaveIntervalSeconds)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.False(t, cfg.RunHistoryEnabled())
}
