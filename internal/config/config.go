package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pagelift/pagelift/pkg/document"
)

// Config carries every knob the pipeline and server need. It is
// constructed once at startup and passed down explicitly; nothing in
// the codebase reads the environment after Load returns.
type Config struct {
	Port        string
	CORSOrigins string

	MistralAPIKey  string
	MistralBaseURL string
	OCRModel       string

	MaxRetries     int
	RequestTimeout time.Duration

	// UseDemoOCR forces the deterministic demo result without
	// touching the network. The auth-degrade path produces the same
	// result when the real API rejects the key.
	UseDemoOCR bool

	DataDir        string
	MaxUploadBytes int64

	DefaultExportFormat document.ExportFormat

	// DatabaseURL enables the Postgres settings store when set.
	DatabaseURL string

	// ArchiveRepoPath enables the git artifact archive when set.
	ArchiveRepoPath string

	LogLevel  string
	LogFormat string
}

const (
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxUploadBytes = 16 * 1024 * 1024 // 16MB, matches the upload form limit
)

// Load reads configuration from the environment, honoring an optional
// .env file in the working directory.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "5000"),
		CORSOrigins:         getEnv("CORS_ORIGINS", "*"),
		MistralAPIKey:       os.Getenv("MISTRAL_API_KEY"),
		MistralBaseURL:      getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai"),
		OCRModel:            getEnv("OCR_MODEL", "mistral-ocr-latest"),
		MaxRetries:          getEnvInt("OCR_MAX_RETRIES", DefaultMaxRetries),
		RequestTimeout:      getEnvDuration("OCR_REQUEST_TIMEOUT", DefaultRequestTimeout),
		UseDemoOCR:          getEnvBool("USE_DEMO_OCR", false),
		DataDir:             getEnv("DATA_DIR", "./data"),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		DefaultExportFormat: document.ExportFormat(getEnv("EXPORT_FORMAT", string(document.ExportEmbedded))),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ArchiveRepoPath:     os.Getenv("ARCHIVE_REPO_PATH"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("OCR_MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("OCR_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	switch c.DefaultExportFormat {
	case document.ExportEmbedded, document.ExportLinked:
	default:
		return fmt.Errorf("EXPORT_FORMAT must be %q or %q, got %q",
			document.ExportEmbedded, document.ExportLinked, c.DefaultExportFormat)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
