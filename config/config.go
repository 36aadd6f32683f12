package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StartURL       string
	OutputPath     string
	LogDir         string
	MaxPages       int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	Headless       bool
	ChromeBin      string

	PageReadyDelayMs   int
	NetworkIdleDelayMs int

	LLMModel      string
	LLMEndpoint   string
	LLMTimeoutSec int
	OllamaBin     string

	EmbeddingsEnabled  bool
	EmbeddingsModel    string
	EmbeddingsEndpoint string
	EmbeddingsPath     string

	LoopIntervalSec int

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		StartURL:       getEnv("START_URL", "https://erotik.markt.de/74670-forchtenberg/anzeigen/fetisch/?radius=100"),
		OutputPath:     getEnv("OUTPUT_PATH", "./output/anzeigen.csv"),
		LogDir:         getEnv("LOG_DIR", "./logs"),
		MaxPages:       getEnvInt("MAX_PAGES", 50),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		Headless:       getEnvBool("HEADLESS", true),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		PageReadyDelayMs:   getEnvInt("PAGE_READY_DELAY_MS", 2000),
		NetworkIdleDelayMs: getEnvInt("NETWORK_IDLE_DELAY_MS", 1000),

		LLMModel:      getEnv("LLM_MODEL", "gemma3:1b"),
		LLMEndpoint:   getEnv("LLM_ENDPOINT", "http://127.0.0.1:11434/api/generate"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 30),
		OllamaBin:     getEnv("OLLAMA_BIN", ""),

		EmbeddingsEnabled:  getEnvBool("EMBEDDINGS_ENABLED", false),
		EmbeddingsModel:    getEnv("EMBEDDINGS_MODEL", "qwen3-embedding:0.6b"),
		EmbeddingsEndpoint: getEnv("EMBEDDINGS_ENDPOINT", "http://localhost:11434/api/embeddings"),
		EmbeddingsPath:     getEnv("EMBEDDINGS_PATH", "./output/embeddings.jsonl"),

		LoopIntervalSec: getEnvInt("LOOP_INTERVAL_SEC", 300),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "marktview"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "marktview123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
