package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envconfig resolves DOCQA_<NAME> first and falls back to the bare <NAME>.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	APIKey         string `envconfig:"API_KEY"`
	RequireHeaders bool   `envconfig:"REQUIRE_HEADERS" default:"true"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns       int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	VectorCollection string `envconfig:"VECTOR_COLLECTION" default:"docs"`
	EmbedDim         int    `envconfig:"EMBED_DIM" default:"1536"`

	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	LLMBaseURL       string `envconfig:"LLM_BASE_URL"`
	LLMModel         string `envconfig:"LLM_MODEL" default:"gpt-4o"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbedBatchSize   int    `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	EmbedConcurrency int    `envconfig:"EMBED_CONCURRENCY" default:"4"`

	RedisURL        string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	EmbedCacheTTL   time.Duration `envconfig:"EMBED_CACHE_TTL" default:"24h"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionMaxTurns int           `envconfig:"SESSION_MAX_TURNS" default:"50"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	ChunkSize      int   `envconfig:"CHUNK_SIZE" default:"1200"`
	ChunkOverlap   int   `envconfig:"CHUNK_OVERLAP" default:"150"`
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`

	PromptInstruction string `envconfig:"PROMPT_INSTRUCTION"`
	AnswerLanguage    string `envconfig:"ANSWER_LANGUAGE"`

	ReconcileInterval   time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	ReconcileStaleAfter time.Duration `envconfig:"RECONCILE_STALE_AFTER" default:"15m"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

var collectionPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,47}$`)

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCQA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if c.EmbedDim <= 0 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if !collectionPattern.MatchString(c.VectorCollection) {
		return fmt.Errorf("VECTOR_COLLECTION %q must match %s", c.VectorCollection, collectionPattern)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != "" || c.LLMBaseURL != ""
}

func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

// LoggerEnv maps ENVIRONMENT onto the logger's output modes.
func (c *Config) LoggerEnv() string {
	switch c.Environment {
	case "production", "prod", "staging":
		return "prod"
	default:
		return "dev"
	}
}
