// Package config loads runtime settings from the environment, an optional
// .env file and the saved settings file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docbreak/internal/extractor"
	"docbreak/internal/llm"
	"docbreak/internal/models"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// ErrNoAPIKey is returned by Validate when no provider key is configured.
var ErrNoAPIKey = eris.New("no LLM API key configured")

// Provider describes a direct, OpenAI-compatible provider endpoint. Model ids
// prefixed with ID ("openai/gpt-4o") go there when its key is set.
type Provider struct {
	ID      string
	EnvKey  string
	BaseURL string
}

// Providers lists the direct routes in display order.
var Providers = []Provider{
	{ID: "openai", EnvKey: "OPENAI_API_KEY", BaseURL: "https://api.openai.com/v1"},
	{ID: "anthropic", EnvKey: "ANTHROPIC_API_KEY", BaseURL: "https://api.anthropic.com/v1"},
	{ID: "deepseek", EnvKey: "DEEPSEEK_API_KEY", BaseURL: "https://api.deepseek.com/v1"},
	{ID: "google", EnvKey: "GOOGLE_API_KEY", BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	{ID: "mistralai", EnvKey: "MISTRAL_API_KEY", BaseURL: "https://api.mistral.ai/v1"},
}

// Config holds all application configuration.
type Config struct {
	Port       string
	DataDir    string
	ScratchDir string
	LogLevel   string
	AppSecret  string

	OpenRouterKey     string
	OpenRouterBaseURL string
	ProviderKeys      map[string]string // keyed by Provider.ID

	LLMTimeout       time.Duration
	Temperature      float32
	MaxTokens        int
	TopP             float32
	TransportRetries int
	MaxModelRetries  int
	MaxPromptChars   int

	LibreOfficeBin    string
	DocConvertTimeout time.Duration
	Workers           int

	ModelOverrides map[models.Task]string
}

// Load reads .env (if present) into the process environment and builds a
// Config from it.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) *Config {
	e := env(getenv)
	c := &Config{
		Port:       e.str("PORT", "8080"),
		DataDir:    e.str("DATA_DIR", "data"),
		ScratchDir: e.str("SCRATCH_DIR", ""),
		LogLevel:   e.str("LOG_LEVEL", "info"),
		AppSecret:  e.str("APP_SECRET", ""),

		OpenRouterKey:     e.str("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: e.str("OPENROUTER_BASE_URL", llm.DefaultBaseURL),
		ProviderKeys:      make(map[string]string),

		LLMTimeout:       e.duration("LLM_TIMEOUT", 120*time.Second),
		Temperature:      e.float32("LLM_TEMPERATURE", 0.7),
		MaxTokens:        e.int("LLM_MAX_TOKENS", 4000),
		TopP:             e.float32("LLM_TOP_P", 0.9),
		TransportRetries: e.int("LLM_TRANSPORT_RETRIES", 3),
		MaxModelRetries:  e.int("LLM_MAX_MODEL_RETRIES", 3),
		MaxPromptChars:   e.int("MAX_PROMPT_CHARS", 12000),

		LibreOfficeBin:    e.str("LIBREOFFICE_BIN", ""),
		DocConvertTimeout: e.duration("DOC_CONVERT_TIMEOUT", 60*time.Second),
		Workers:           e.int("WORKERS", 2),

		ModelOverrides: make(map[models.Task]string),
	}
	for _, p := range Providers {
		if k := strings.TrimSpace(getenv(p.EnvKey)); k != "" {
			c.ProviderKeys[p.ID] = k
		}
	}
	for _, t := range models.Tasks() {
		if m := strings.TrimSpace(getenv(models.EnvKey(t))); m != "" {
			c.ModelOverrides[t] = m
		}
	}
	return c
}

// Validate checks that at least one API key is set and numeric settings are
// in range.
func (c *Config) Validate() error {
	if c.OpenRouterKey == "" && len(c.ProviderKeys) == 0 {
		return ErrNoAPIKey
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return eris.Errorf("LLM_TEMPERATURE %.2f out of range [0, 2]", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return eris.Errorf("LLM_TOP_P %.2f out of range [0, 1]", c.TopP)
	}
	if c.MaxModelRetries < 1 {
		return eris.Errorf("LLM_MAX_MODEL_RETRIES must be at least 1, got %d", c.MaxModelRetries)
	}
	if c.Workers < 1 {
		return eris.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	return nil
}

// SettingsPath is where saved settings live.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// LLM builds the remote client configuration. Providers without a key fall
// back to the OpenRouter route.
func (c *Config) LLM() llm.Config {
	routes := make(map[string]llm.Route, len(Providers))
	for _, p := range Providers {
		if k := c.ProviderKeys[p.ID]; k != "" {
			routes[p.ID] = llm.Route{BaseURL: p.BaseURL, APIKey: k}
		}
	}
	return llm.Config{
		Default:          llm.Route{BaseURL: c.OpenRouterBaseURL, APIKey: c.OpenRouterKey},
		Routes:           routes,
		Temperature:      c.Temperature,
		MaxTokens:        c.MaxTokens,
		TopP:             c.TopP,
		TransportRetries: c.TransportRetries,
		Title:            "docbreak",
	}
}

// Extractor builds the extraction configuration.
func (c *Config) Extractor() extractor.Config {
	return extractor.Config{
		ScratchDir:     c.ScratchDir,
		ConvertTimeout: c.DocConvertTimeout,
	}
}

// ==================== env helpers ====================

type env func(string) string

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	if v := e(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (e env) float32(key string, def float32) float32 {
	if v := e(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			return float32(f)
		}
	}
	return def
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func (e env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
