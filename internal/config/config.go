package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	GenerateModel  string `envconfig:"GENERATE_MODEL" default:"gpt-4o"`
	VerifyModel    string `envconfig:"VERIFY_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL"`

	// Retrieval tuning.
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.5"`
	RetrievalLimit      int     `envconfig:"RETRIEVAL_LIMIT" default:"5"`

	// Verification policy. SkipLLMVerify is the deployment default;
	// per-request options may still force the rule-only path.
	SkipLLMVerify bool          `envconfig:"SKIP_LLM_VERIFY" default:"false"`
	LLMTimeout    time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	EmbedTimeout  time.Duration `envconfig:"EMBED_TIMEOUT" default:"10s"`

	// Cache layer. CacheVersion is bumped whenever chunk or prompt
	// semantics change so stale entries stop matching.
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	CacheVersion string        `envconfig:"CACHE_VERSION" default:"v1"`

	// Source-document bucket for ingestion.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"kaelo-corpus"`
	S3Region    string `envconfig:"S3_REGION" default:"af-south-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KAELO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0,1], got %.2f", cfg.SimilarityThreshold)
	}
	if cfg.RetrievalLimit <= 0 {
		return nil, fmt.Errorf("retrieval limit must be positive, got %d", cfg.RetrievalLimit)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
