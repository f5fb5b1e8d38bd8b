package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	GoogleApiKey    string
	MistralApiKey   string
	DatabaseURL     string
	GenerationModel string
	EmbeddingModel  string
	Port            string

	// Chunking policy for the embedding index.
	ChunkSize    int
	ChunkOverlap int

	// Adaptive loop knobs.
	MaxIterations          int
	InitialResultsPerQuery int
	RetryResultsPerQuery   int
	TopK                   int

	// Fetcher limits.
	FetchConcurrency int
	FetchTimeout     time.Duration
	PdfTimeout       time.Duration

	// Root directory for per-session document folders.
	StorageRoot string
}

func Load() *Config {
	return &Config{
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		MistralApiKey:   getEnv("MISTRAL_API_KEY", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		Port:            getEnv("PORT", "8081"),

		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),

		MaxIterations:          getEnvAsInt("MAX_ITERATIONS", 3),
		InitialResultsPerQuery: getEnvAsInt("RESULTS_PER_QUERY", 8),
		RetryResultsPerQuery:   getEnvAsInt("RETRY_RESULTS_PER_QUERY", 5),
		TopK:                   getEnvAsInt("RETRIEVAL_TOP_K", 5),

		FetchConcurrency: getEnvAsInt("FETCH_CONCURRENCY", 10),
		FetchTimeout:     getEnvAsDuration("FETCH_TIMEOUT", 8*time.Second),
		PdfTimeout:       getEnvAsDuration("PDF_TIMEOUT", 30*time.Second),

		StorageRoot: getEnv("STORAGE_ROOT", "research"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
