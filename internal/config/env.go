package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SslCertPath string `envconfig:"SSL_CERT_PATH"`

	StorageProvider string `envconfig:"STORAGE_PROVIDER" default:"s3"`
	AwsAccessKey    string `envconfig:"AWS_ACCESS_KEY"`
	AwsSecretKey    string `envconfig:"AWS_SECRET_KEY"`
	AwsRegion       string `envconfig:"AWS_REGION" default:"us-east-2"`
	BucketName      string `envconfig:"BUCKET_NAME" default:"knowledge-files"`
	MinioEndpoint   string `envconfig:"MINIO_ENDPOINT"`
	MinioUseSSL     bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	AIProvider    string `envconfig:"AI_PROVIDER" default:"gemini"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	EmbedModel    string `envconfig:"EMBED_MODEL"`
	EmbedDim      int    `envconfig:"EMBED_DIM" default:"768"`
	GenModel      string `envconfig:"GEN_MODEL"`
	VisionModel   string `envconfig:"VISION_MODEL"`

	Port           string   `envconfig:"PORT" default:"8080"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	MaxUploadMB    int64    `envconfig:"MAX_UPLOAD_MB" default:"50"`
	RedisURL       string   `envconfig:"REDIS_URL"`

	// Ingestion
	ChunkStrategy      string        `envconfig:"CHUNK_STRATEGY" default:"semantic"`
	ChunkMaxSize       int           `envconfig:"CHUNK_MAX_SIZE" default:"2000"`
	ChunkOverlap       int           `envconfig:"CHUNK_OVERLAP" default:"200"`
	BatchSize          int           `envconfig:"BATCH_SIZE" default:"50"`
	EnrichEnabled      bool          `envconfig:"ENRICH_ENABLED" default:"true"`
	EnrichWidth        int           `envconfig:"ENRICH_WIDTH" default:"5"`
	EnrichPreviewChars int           `envconfig:"ENRICH_PREVIEW_CHARS" default:"1500"`
	EmbedTimeout       time.Duration `envconfig:"EMBED_TIMEOUT" default:"15s"`
	EnrichTimeout      time.Duration `envconfig:"ENRICH_TIMEOUT" default:"20s"`
	VisionTimeout      time.Duration `envconfig:"VISION_TIMEOUT" default:"90s"`
	MinTextChars       int           `envconfig:"MIN_TEXT_CHARS" default:"50"`
	ArchiveAttempts    int           `envconfig:"ARCHIVE_ATTEMPTS" default:"2"`
	ArchiveBackoff     time.Duration `envconfig:"ARCHIVE_BACKOFF" default:"1s"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	JanitorInterval    time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {
	// env vars may already be set in the shell
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL", ErrMissingRequired)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingRequired)
	}

	switch strings.ToLower(c.AIProvider) {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: AI_PROVIDER=%q", ErrInvalid, c.AIProvider)
	}

	switch strings.ToLower(c.StorageProvider) {
	case "s3", "minio":
	default:
		return fmt.Errorf("%w: STORAGE_PROVIDER=%q", ErrInvalid, c.StorageProvider)
	}

	if c.ChunkMaxSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP (%d) must be smaller than CHUNK_MAX_SIZE (%d)", ErrInvalid, c.ChunkOverlap, c.ChunkMaxSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: BATCH_SIZE must be positive", ErrInvalid)
	}
	if c.EnrichWidth <= 0 {
		return fmt.Errorf("%w: ENRICH_WIDTH must be positive", ErrInvalid)
	}
	if c.ArchiveAttempts <= 0 {
		return fmt.Errorf("%w: ARCHIVE_ATTEMPTS must be positive", ErrInvalid)
	}
	return nil
}
