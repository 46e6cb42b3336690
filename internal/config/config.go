// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
)

type Config struct {
	App     AppConfig
	LLM     LLMConfig
	Catalog CatalogConfig
	Runner  RunnerConfig
	Cache   CacheConfig

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

type AppConfig struct {
	Port              string `validate:"required,numeric"`
	Environment       string `validate:"oneof=development production test"`
	LogFilePath       string
	LogLevel          string `validate:"oneof=debug info warn error"`
	ProcessTimeout    time.Duration
	SessionTTL        time.Duration
	AsyncRetention    time.Duration
	ShutdownTimeout   time.Duration
	EventBusWorkers   int `validate:"min=1"`
	EventBusBufferLen int `validate:"min=0"`
}

type LLMConfig struct {
	Provider      string  `validate:"oneof=openai googleai"`
	Model         string  `validate:"required"`
	Temperature   float64 `validate:"min=0,max=2"`
	OpenAIAPIKey  string  `validate:"required_if=Provider openai"`
	OpenAIBaseURL string  `validate:"omitempty,url"`
	GeminiAPIKey  string  `validate:"required_if=Provider googleai"`
	MaxRetries    int     `validate:"min=0"`
	Timeout       time.Duration
}

type CatalogConfig struct {
	SearchURL      string `validate:"required,url"`
	Country        string `validate:"required"`
	Locale         string `validate:"required"`
	Limit          int    `validate:"min=1,max=50"`
	SortBy         string `validate:"required"`
	SortDir        string `validate:"oneof=asc desc"`
	Cookie         string
	CookieFile     string
	UserAgent      string
	Timeout        time.Duration
	ForwardFilters bool
}

type RunnerConfig struct {
	MaxConcurrency int `validate:"min=1"`
	StepTimeout    time.Duration
	MaxRetries     int `validate:"min=0,max=5"`
	RetryDelay     time.Duration
	ApplyFilters   bool
}

type CacheConfig struct {
	Backend     string `validate:"oneof=none memory file redis"`
	TTL         time.Duration
	FilePath    string `validate:"required_if=Backend file"`
	RedisURL    string `validate:"required_if=Backend redis"`
	RedisPrefix string
}

// Load reads .env when present, then the environment, applying defaults.
func Load() *Config {
	loaded := godotenv.Load() == nil

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))
	defaultModel := "gpt-4.1"
	if provider == "googleai" {
		defaultModel = "googleai/gemini-2.0-flash"
	}

	return &Config{
		EnvFileLoaded: loaded,
		App: AppConfig{
			Port:              getEnv("APP_PORT", "8080"),
			Environment:       getEnv("GO_ENV", "development"),
			LogFilePath:       getEnv("LOG_FILE_PATH", ""),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			ProcessTimeout:    getEnvAsDuration("PROCESS_TIMEOUT", 2*time.Minute),
			SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			AsyncRetention:    getEnvAsDuration("ASYNC_RETENTION", 15*time.Minute),
			ShutdownTimeout:   getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			EventBusWorkers:   getEnvAsInt("EVENT_BUS_WORKERS", 5),
			EventBusBufferLen: getEnvAsInt("EVENT_BUS_BUFFER", 100),
		},
		LLM: LLMConfig{
			Provider:      provider,
			Model:         getEnv("LLM_MODEL", defaultModel),
			Temperature:   getEnvAsFloat("LLM_TEMPERATURE", 0.3),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			MaxRetries:    getEnvAsInt("LLM_MAX_RETRIES", 2),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Catalog: CatalogConfig{
			SearchURL:      getEnv("CATALOG_SEARCH_URL", "https://api-app.noon.com/_svc/catalog/api/v3/search"),
			Country:        getEnv("CATALOG_COUNTRY", "AE"),
			Locale:         getEnv("CATALOG_LOCALE", "uae-en"),
			Limit:          getEnvAsInt("CATALOG_LIMIT", 2),
			SortBy:         getEnv("CATALOG_SORT_BY", "popularity"),
			SortDir:        getEnv("CATALOG_SORT_DIR", "desc"),
			Cookie:         getEnv("CATALOG_COOKIE", ""),
			CookieFile:     getEnv("CATALOG_COOKIE_FILE", ""),
			UserAgent:      getEnv("CATALOG_USER_AGENT", ""),
			Timeout:        getEnvAsDuration("CATALOG_TIMEOUT", 10*time.Second),
			ForwardFilters: getEnvAsBool("CATALOG_FORWARD_FILTERS", false),
		},
		Runner: RunnerConfig{
			MaxConcurrency: getEnvAsInt("RUNNER_MAX_CONCURRENCY", 5),
			StepTimeout:    getEnvAsDuration("RUNNER_STEP_TIMEOUT", 15*time.Second),
			MaxRetries:     getEnvAsInt("RUNNER_MAX_RETRIES", 0),
			RetryDelay:     getEnvAsDuration("RUNNER_RETRY_DELAY", 500*time.Millisecond),
			ApplyFilters:   getEnvAsBool("RUNNER_APPLY_FILTERS", false),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnv("PLAN_CACHE_BACKEND", "memory")),
			TTL:         getEnvAsDuration("PLAN_CACHE_TTL", time.Hour),
			FilePath:    getEnv("PLAN_CACHE_FILE", ""),
			RedisURL:    getEnv("REDIS_URL", ""),
			RedisPrefix: getEnv("REDIS_PREFIX", "shopscale:"),
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return shopscale.NewConfigurationError("invalid configuration", err)
	}
	return nil
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or bare seconds ("30").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
