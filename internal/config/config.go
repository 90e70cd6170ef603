package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

// Mode values for EMBEDDINGS_UPLOAD_MODE.
const (
	ModeUpload    = "upload"
	ModeLocalOnly = "local-only"
)

type Config struct {
	// Storage roots
	CacheDir  string `envconfig:"EMBEDDINGS_CACHE_DIR" default:"./data/embeddings-cache"`
	LedgerDir string `envconfig:"INGEST_LEDGER_DIR" default:"./data/index"`

	// Destination routing
	UploadMode string `envconfig:"EMBEDDINGS_UPLOAD_MODE" default:"upload"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"3072"`

	// Cache persistence tuning. A crash between two saves loses at most the
	// embeddings computed since the last save; they are recomputed, never
	// marked ingested.
	AutoSaveThreshold   int `envconfig:"CACHE_AUTOSAVE_THRESHOLD" default:"50"`
	SaveIntervalSeconds int `envconfig:"CACHE_SAVE_INTERVAL_SECONDS" default:"120"`

	// Destination retry policy (transient failures only)
	RetryAttempts       int `envconfig:"STORE_RETRY_ATTEMPTS" default:"3"`
	RetryBackoffMillis  int `envconfig:"STORE_RETRY_BACKOFF_MILLIS" default:"500"`
	StoreTimeoutSeconds int `envconfig:"STORE_TIMEOUT_SECONDS" default:"30"`
	EmbedTimeoutSeconds int `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`

	// Chunking
	ChunkMaxTokens int `envconfig:"CHUNK_MAX_TOKENS" default:"900"`

	// Crawling
	CrawlTimeoutSeconds int      `envconfig:"CRAWL_TIMEOUT_SECONDS" default:"20"`
	CrawlExclusions     []string `envconfig:"CRAWL_EXCLUSIONS"`

	// Run history (optional; disabled when DB_HOST is empty)
	DBHost        string `envconfig:"DB_HOST"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"docpipe"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"docpipe"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Worker mode (optional; NSQ-driven ingest requests)
	EnableWorker bool   `envconfig:"ENABLE_WORKER" default:"false"`
	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; .env files are best-effort.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("%w: EMBEDDINGS_CACHE_DIR", ErrMissingRequired)
	}
	if c.LedgerDir == "" {
		return fmt.Errorf("%w: INGEST_LEDGER_DIR", ErrMissingRequired)
	}
	if c.UploadMode != ModeUpload && c.UploadMode != ModeLocalOnly {
		return fmt.Errorf("EMBEDDINGS_UPLOAD_MODE must be %q or %q, got %q",
			ModeUpload, ModeLocalOnly, c.UploadMode)
	}
	if c.UploadMode == ModeUpload && c.WeaviateHost == "" {
		return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	}
	return nil
}

// RunHistoryEnabled reports whether batch outcomes should be recorded in Postgres.
func (c *Config) RunHistoryEnabled() bool {
	return c.DBHost != ""
}
