package config

import (
	"testing"
	"time"

	"github.com/pagelift/pagelift/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	assert.Equal(t, document.ExportEmbedded, cfg.DefaultExportFormat)
	assert.Equal(t, "mistral-ocr-latest", cfg.OCRModel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("OCR_MAX_RETRIES", "5")
	t.Setenv("OCR_REQUEST_TIMEOUT", "10s")
	t.Setenv("USE_DEMO_OCR", "true")
	t.Setenv("EXPORT_FORMAT", "linked")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.UseDemoOCR)
	assert.Equal(t, document.ExportLinked, cfg.DefaultExportFormat)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"unknown export format", func(c *Config) { c.DefaultExportFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
