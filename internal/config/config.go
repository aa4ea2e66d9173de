package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Generation backends understood by the generation package.
const (
	BackendVertex    = "vertex"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Default model identifiers per backend.
var defaultModels = map[string]string{
	BackendVertex:    "gemini-1.5-pro",
	BackendOpenAI:    "gpt-4o-mini",
	BackendAnthropic: "claude-3-5-haiku-latest",
}

// Config holds every environment-supplied setting of the service.
type Config struct {
	Port           string
	Env            string
	AllowedOrigins []string
	LogLevel       slog.Level

	GenerationBackend    string
	GenerationModel      string
	GenerationAPIKey     string
	GenerationBaseURL    string
	GenerationTimeout    time.Duration
	GenerationMaxRetries int

	ProjectID      string
	VertexAIRegion string

	MaxUploadBytes   int64
	MaxInputChars    int
	InputLimitPolicy string

	FirestoreCollection string

	ShutdownTimeout time.Duration
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                GetEnv("PORT", "5000"),
		Env:                 GetEnv("APP_ENV", "production"),
		AllowedOrigins:      splitList(GetEnv("ALLOWED_ORIGINS", "")),
		GenerationBackend:   strings.ToLower(strings.TrimSpace(GetEnv("GENERATION_BACKEND", BackendVertex))),
		GenerationModel:     strings.TrimSpace(GetEnv("GENERATION_MODEL", "")),
		GenerationBaseURL:   strings.TrimSpace(GetEnv("GENERATION_BASE_URL", "")),
		ProjectID:           GetEnv("PROJECT_ID", GetEnv("GOOGLE_CLOUD_PROJECT", "")),
		VertexAIRegion:      GetEnv("VERTEX_AI_REGION", "us-central1"),
		InputLimitPolicy:    strings.ToLower(strings.TrimSpace(GetEnv("INPUT_LIMIT_POLICY", "truncate"))),
		FirestoreCollection: GetEnv("FIRESTORE_COLLECTION", ""),
	}
	cfg.GenerationAPIKey = strings.TrimSpace(GetEnv("GENERATION_API_KEY", GetEnv("GEMINI_API_KEY", "")))

	var err error
	if cfg.LogLevel, err = parseLevel(GetEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.GenerationTimeout, err = parseDuration("GENERATION_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.GenerationMaxRetries, err = parseInt("GENERATION_MAX_RETRIES", "0"); err != nil {
		return nil, err
	}
	if cfg.MaxInputChars, err = parseInt("MAX_INPUT_CHARS", "500000"); err != nil {
		return nil, err
	}
	maxUpload, err := parseInt("MAX_UPLOAD_BYTES", "20971520")
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.GenerationModel == "" {
		cfg.GenerationModel = defaultModels[cfg.GenerationBackend]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.GenerationBackend {
	case BackendVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the vertex backend")
		}
	case BackendOpenAI, BackendAnthropic:
		if c.GenerationAPIKey == "" {
			return fmt.Errorf("GENERATION_API_KEY environment variable must be set for the %s backend", c.GenerationBackend)
		}
	default:
		return fmt.Errorf("GENERATION_BACKEND %q is not supported", c.GenerationBackend)
	}
	if c.GenerationModel == "" {
		return fmt.Errorf("GENERATION_MODEL must be set")
	}
	if c.InputLimitPolicy != "truncate" && c.InputLimitPolicy != "reject" {
		return fmt.Errorf("INPUT_LIMIT_POLICY must be truncate or reject, got %q", c.InputLimitPolicy)
	}
	if c.MaxInputChars < 0 {
		return fmt.Errorf("MAX_INPUT_CHARS must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.GenerationMaxRetries < 0 {
		return fmt.Errorf("GENERATION_MAX_RETRIES must not be negative")
	}
	if c.FirestoreCollection != "" && c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set when FIRESTORE_COLLECTION is set")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(GetEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(GetEnv(key, fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return level, nil
}
