package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by DIAG_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("DIAG_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment may already be populated.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured reasoning oracle provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock, or "none" to disable similar-case recall.
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	if p == "none" {
		return ""
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock", "":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// APIKey is the static bearer token guarding /v1. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// KnowledgePath points at a YAML knowledge base. Empty uses the built-in one.
func KnowledgePath() string {
	return os.Getenv("KNOWLEDGE_PATH")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func MaxRounds() int {
	return intEnv("MAX_ROUNDS", 6)
}

// MinInteractionRounds is the number of answered question rounds required
// before a diagnosis may be finalized below the confidence threshold.
func MinInteractionRounds() int {
	return intEnv("MIN_INTERACTION_ROUNDS", 2)
}

func MaxInteractionRounds() int {
	return intEnv("MAX_INTERACTION_ROUNDS", 5)
}

func ConfidenceThreshold() float64 {
	return floatEnv("CONFIDENCE_THRESHOLD", 0.8)
}

func LowConfidenceThreshold() float64 {
	return floatEnv("LOW_CONFIDENCE_THRESHOLD", 0.4)
}

// CostBudget is the per-case spending limit in dollars.
func CostBudget() float64 {
	return floatEnv("COST_BUDGET", 2000)
}

func MaxCandidates() int {
	return intEnv("MAX_CANDIDATES", 5)
}

// OracleTimeout bounds a single oracle call. Accepts Go durations ("45s")
// or plain seconds.
func OracleTimeout() time.Duration {
	raw := os.Getenv("ORACLE_TIMEOUT")
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 60 * time.Second
}

func OracleMaxAttempts() int {
	return intEnv("ORACLE_MAX_ATTEMPTS", 3)
}
