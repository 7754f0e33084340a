package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel  string
	LogFormat string

	// Database (optional, enables the exchange log)
	DatabaseURL string

	// Redis
	RedisURL string

	// Worker
	WorkerCount int

	// JWT
	JWTSecret string

	// Gemini AI
	GeminiAPIKey         string
	GeminiTransport      string
	GeminiEndpoint       string
	GeminiRequestsPerMin int
	GeminiConcurrentReqs int
	GeminiTimeout        time.Duration

	// Conversations
	ConversationIdleTTL    time.Duration
	SpeechUtteranceTimeout time.Duration
	DefaultVariant         string

	// Per-IP limits, requests per minute
	CreateRateLimit int
	SubmitRateLimit int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8080"),
		Env:                    getEnvOrDefault("ENV", "development"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvOrDefault("LOG_FORMAT", "text"),
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:               mustGetEnv("REDIS_URL"),
		WorkerCount:            getEnvAsIntOrDefault("WORKER_COUNT", 2),
		JWTSecret:              mustGetEnv("JWT_SECRET"),
		GeminiAPIKey:           getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiTransport:        getEnvOrDefault("GEMINI_TRANSPORT", "rest"),
		GeminiEndpoint:         getEnvOrDefault("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com"),
		GeminiRequestsPerMin:   getEnvAsIntOrDefault("GEMINI_REQUESTS_PER_MINUTE", 60),
		GeminiConcurrentReqs:   getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GeminiTimeout:          getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 30*time.Second),
		ConversationIdleTTL:    getEnvAsDurationOrDefault("CONVERSATION_IDLE_TTL", 30*time.Minute),
		SpeechUtteranceTimeout: getEnvAsDurationOrDefault("SPEECH_UTTERANCE_TIMEOUT", 30*time.Second),
		DefaultVariant:         getEnvOrDefault("ASSISTANT_VARIANT", "voice"),
		CreateRateLimit:        getEnvAsIntOrDefault("CREATE_RATE_LIMIT", 10),
		SubmitRateLimit:        getEnvAsIntOrDefault("SUBMIT_RATE_LIMIT", 30),
		FrontendURL:            getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go durations ("45s") or bare seconds ("45").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
