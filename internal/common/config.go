package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Jobs      JobsConfig
	AI        AIConfig
	Pipeline  PipelineConfig
	Output    OutputConfig
	Templates TemplatesConfig
}

// JobsConfig holds job-queue configuration
type JobsConfig struct {
	Backend      string // "memory" | "sqlite" | "postgres" | "redis"
	SQLitePath   string
	PostgresDSN  string
	RedisAddr    string
	Attempts     int
	BackoffBase  time.Duration
	PollInterval time.Duration
	WSAddr       string
}

// AIConfig holds generative-AI client configuration
type AIConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	Timeout       time.Duration // 0 = no per-call timeout
	MaxConcurrent int
}

// PipelineConfig holds extraction/combination ceilings
type PipelineConfig struct {
	MaxFileSizeBytes  int64
	MaxCombinedLength int
	MaxPromptLength   int
	TesseractBin      string
	TesseractLang     string
}

// OutputConfig holds output persistence configuration
type OutputConfig struct {
	Dir           string
	CleanupMaxAge time.Duration
	CleanupEvery  time.Duration
}

// TemplatesConfig holds template loading configuration
type TemplatesConfig struct {
	Dir      string
	CacheTTL time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Jobs: JobsConfig{
			Backend:      getEnv("JOBS_BACKEND", "memory"),
			SQLitePath:   getEnv("JOBS_SQLITE_PATH", "./jobs.db"),
			PostgresDSN:  getEnv("JOBS_POSTGRES_DSN", ""),
			RedisAddr:    getEnv("JOBS_REDIS_ADDR", "localhost:6379"),
			Attempts:     getEnvAsInt("JOBS_ATTEMPTS", 3),
			BackoffBase:  getEnvAsDuration("JOBS_BACKOFF_BASE", time.Second),
			PollInterval: getEnvAsDuration("JOBS_POLL_INTERVAL", time.Second),
			WSAddr:       getEnv("JOBS_WS_ADDR", ":8090"),
		},
		AI: AIConfig{
			APIKey:        getEnv("GEMINI_API_KEY", ""),
			Model:         getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
			BaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:       getEnvAsDuration("AI_CALL_TIMEOUT", 0),
			MaxConcurrent: getEnvAsInt("AI_MAX_CONCURRENT", 3),
		},
		Pipeline: PipelineConfig{
			MaxFileSizeBytes:  getEnvAsInt64("MAX_FILE_SIZE_BYTES", 10*1024*1024),
			MaxCombinedLength: getEnvAsInt("MAX_COMBINED_LENGTH", 30000),
			MaxPromptLength:   getEnvAsInt("MAX_PROMPT_LENGTH", 30000),
			TesseractBin:      getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:     getEnv("TESSERACT_LANG", "eng"),
		},
		Output: OutputConfig{
			Dir:           getEnv("OUTPUT_DIR", "./output"),
			CleanupMaxAge: getEnvAsDuration("OUTPUT_CLEANUP_MAX_AGE", 24*time.Hour),
			CleanupEvery:  getEnvAsDuration("OUTPUT_CLEANUP_EVERY", time.Hour),
		},
		Templates: TemplatesConfig{
			Dir:      getEnv("TEMPLATES_DIR", "./templates"),
			CacheTTL: getEnvAsDuration("TEMPLATE_CACHE_TTL", time.Hour),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.AI.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrValidation)
	}
	switch c.Jobs.Backend {
	case "memory", "sqlite", "redis":
	case "postgres":
		if c.Jobs.PostgresDSN == "" {
			return NewAppError("CONFIG_ERROR", "JOBS_POSTGRES_DSN is required for the postgres backend", ErrValidation)
		}
	default:
		return NewAppError("CONFIG_ERROR", "unknown JOBS_BACKEND: "+c.Jobs.Backend, ErrValidation)
	}
	return nil
}
