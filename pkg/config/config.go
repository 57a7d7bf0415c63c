package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// MaxSuggestBatch is the hard cap on raw values per classifier call; the
// configured limit may only lower it.
const MaxSuggestBatch = 50

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Storage
	StoreBackend  string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Classifier
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string

	// Suggestions
	SuggestBatchLimit int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		StoreBackend:      getEnv("STORE_BACKEND", BackendNeo4j),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),
		LiteLLMURL:        getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:           getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		SuggestBatchLimit: getEnvInt("SUGGEST_BATCH_LIMIT", MaxSuggestBatch),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.StoreBackend != BackendNeo4j && c.StoreBackend != BackendMemory {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendNeo4j, BackendMemory, c.StoreBackend)
	}
	if c.StoreBackend == BackendNeo4j {
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required")
		}
	}
	if c.LiteLLMURL == "" {
		return fmt.Errorf("LITELLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.SuggestBatchLimit < 1 || c.SuggestBatchLimit > MaxSuggestBatch {
		return fmt.Errorf("SUGGEST_BATCH_LIMIT must be between 1 and %d", MaxSuggestBatch)
	}
	// OpenRouter API key is optional: LiteLLM proxies accept a dummy key
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}
