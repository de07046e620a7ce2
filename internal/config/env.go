package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string

	// Pipeline tuning.
	WorkerCount     int
	PollInterval    time.Duration
	ClaimTimeout    time.Duration // how long a claim may sit before another worker may steal the job
	MaxRetries      int
	RetryBaseDelay  time.Duration
	EmbedBatchLimit int // hard per-request cap of the embedding service

	ChunkTargetTokens  int
	ChunkOverlapTokens int
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "corpora-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),

		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		PollInterval:    getEnvDuration("POLL_INTERVAL_MS", 500*time.Millisecond),
		ClaimTimeout:    getEnvDuration("CLAIM_TIMEOUT_MS", 5*time.Minute),
		MaxRetries:      getEnvInt("MAX_RETRIES", 5),
		RetryBaseDelay:  getEnvDuration("RETRY_BASE_MS", 2*time.Second),
		EmbedBatchLimit: getEnvInt("EMBED_BATCH_LIMIT", 100),

		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 500),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

// getEnvDuration reads a millisecond count from the environment.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		log.Printf("WARN: %s=%q not a millisecond count, using default %s", key, v, def)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
