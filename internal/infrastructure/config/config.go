// Package config loads the service configuration from environment
// variables. It is constructed once at startup; components receive values,
// not the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/woninglens/woninglens/internal/governance"
)

// Config is the application configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseDSN string

	Environment governance.Environment
	TestMode    bool

	Workers   int
	ZombieTTL time.Duration

	OpenAIKey     string
	GeminiKey     string
	AnthropicKey  string
	OllamaBaseURL string
	OllamaTimeout time.Duration

	// Model pins per provider name; empty selects the provider default
	OpenAIModel    string
	GeminiModel    string
	AnthropicModel string
	OllamaModel    string
}

// Load reads the configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		Environment: detectEnvironment(),
		TestMode:    getEnvBool("PIPELINE_TEST_MODE", false),

		Workers:   getEnvInt("WORKER_POOL_SIZE", 0),
		ZombieTTL: getEnvDuration("ZOMBIE_TTL", 30*time.Minute),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		GeminiKey:     getEnv("GEMINI_API_KEY", ""),
		AnthropicKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaTimeout: getEnvDuration("OLLAMA_TIMEOUT", 30*time.Second),

		OpenAIModel:    getEnv("OPENAI_MODEL", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", ""),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", ""),
		OllamaModel:    getEnv("OLLAMA_MODEL", ""),
	}
}

// detectEnvironment resolves the deployment environment. The default is
// production: the safe, fail-closed posture.
func detectEnvironment() governance.Environment {
	if getEnvBool("PIPELINE_DEV_MODE", false) {
		return governance.EnvDevelopment
	}
	if getEnvBool("PIPELINE_TEST_MODE", false) {
		return governance.EnvTest
	}
	switch getEnv("DEPLOYMENT_ENV", "") {
	case "test":
		return governance.EnvTest
	case "development":
		return governance.EnvDevelopment
	}
	return governance.EnvProduction
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
