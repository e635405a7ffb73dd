package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// RateLimits holds the per-endpoint policy strings, each of the form
// "<N> per <unit>" with unit one of second, minute, hour, day.
type RateLimits struct {
	Enabled     bool
	Stream      string
	ModelSync   string
	Upload      string
	Sessions    string
	Messages    string
	Profiles    string
	ModelsList  string
	UsageLogs   string
	HealthCheck string
}

type Config struct {
	Addr       string
	AppOrigins string
	DBPath     string
	UploadsDir string
	BackupsDir string

	OpenRouterAPIKey      string
	OpenRouterBaseURL     string
	OpenRouterHTTPReferer string
	OpenRouterXTitle      string
	OpenRouterIdleSec     int

	RateLimits RateLimits
}

// Load reads configuration from the environment, with .env support.
// The API key is deliberately not required here: its absence is reported
// per-request as MISSING_API_KEY so the console still serves local data.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:       getEnv("ADDR", ":8000"),
		AppOrigins: getEnv("APP_ORIGINS", "http://localhost:5173"),
		DBPath:     getEnv("DB_PATH", "./console.db"),
		UploadsDir: getEnv("UPLOADS_DIR", "./uploads"),
		BackupsDir: getEnv("BACKUPS_DIR", "./backups"),

		OpenRouterAPIKey:      os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:     getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterHTTPReferer: getEnv("OPENROUTER_HTTP_REFERER", "http://localhost:5173"),
		OpenRouterXTitle:      getEnv("OPENROUTER_X_TITLE", "Self-Hosted LLM Console"),
		OpenRouterIdleSec:     getEnvAsInt("OPENROUTER_IDLE_TIMEOUT", 300),

		RateLimits: RateLimits{
			Enabled:     getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Stream:      getEnv("RATE_LIMIT_STREAM", "20 per minute"),
			ModelSync:   getEnv("RATE_LIMIT_MODEL_SYNC", "5 per hour"),
			Upload:      getEnv("RATE_LIMIT_UPLOAD", "30 per minute"),
			Sessions:    getEnv("RATE_LIMIT_SESSIONS", "60 per minute"),
			Messages:    getEnv("RATE_LIMIT_MESSAGES", "100 per minute"),
			Profiles:    getEnv("RATE_LIMIT_PROFILES", "60 per minute"),
			ModelsList:  getEnv("RATE_LIMIT_MODELS_LIST", "120 per minute"),
			UsageLogs:   getEnv("RATE_LIMIT_USAGE_LOGS", "120 per minute"),
			HealthCheck: getEnv("RATE_LIMIT_HEALTH_CHECK", "300 per minute"),
		},
	}
}

// Origins splits APP_ORIGINS into a trimmed, non-empty list.
func (c Config) Origins() []string {
	parts := strings.Split(c.AppOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
