package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime settings for the narrator service.
type Config struct {
	BindAddr                 string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout          time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	SessionInactivityTimeout time.Duration `env:"APP_SESSION_INACTIVITY_TIMEOUT" envDefault:"30m"`
	MetricsNamespace         string        `env:"APP_METRICS_NAMESPACE" envDefault:"narrador"`
	AllowAnyOrigin           bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// PrimaryProvider and SecondaryProvider are gemini, groq, xai, openai,
	// ollama or mock. An empty or "none" secondary disables fallback.
	PrimaryProvider   string        `env:"NARRATOR_PRIMARY" envDefault:"gemini"`
	SecondaryProvider string        `env:"NARRATOR_SECONDARY" envDefault:"groq"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"120s"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`

	GroqAPIKey  string `env:"GROQ_API_KEY"`
	GroqBaseURL string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqModel   string `env:"GROQ_MODEL" envDefault:"llama3-8b-8192"`

	XAIAPIKey  string `env:"XAI_API_KEY"`
	XAIBaseURL string `env:"XAI_BASE_URL" envDefault:"https://api.x.ai/v1"`
	XAIModel   string `env:"XAI_MODEL" envDefault:"grok-4-fast-non-reasoning"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://127.0.0.1:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"llama3"`

	DatabaseURL string `env:"DATABASE_URL"`
}

var providerKinds = map[string]struct{}{
	"gemini": {},
	"groq":   {},
	"xai":    {},
	"openai": {},
	"ollama": {},
	"mock":   {},
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.PrimaryProvider = strings.ToLower(strings.TrimSpace(cfg.PrimaryProvider))
	cfg.SecondaryProvider = strings.ToLower(strings.TrimSpace(cfg.SecondaryProvider))
	if cfg.SecondaryProvider == "none" {
		cfg.SecondaryProvider = ""
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if _, ok := providerKinds[c.PrimaryProvider]; !ok {
		return fmt.Errorf("NARRATOR_PRIMARY %q is not a known provider", c.PrimaryProvider)
	}
	if c.SecondaryProvider != "" {
		if _, ok := providerKinds[c.SecondaryProvider]; !ok {
			return fmt.Errorf("NARRATOR_SECONDARY %q is not a known provider", c.SecondaryProvider)
		}
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}
	return nil
}

// ProviderSettings returns the key, base URL and model configured for kind.
func (c Config) ProviderSettings(kind string) (apiKey, baseURL, model string) {
	switch kind {
	case "gemini":
		return c.GeminiAPIKey, "", c.GeminiModel
	case "groq":
		return c.GroqAPIKey, c.GroqBaseURL, c.GroqModel
	case "xai":
		return c.XAIAPIKey, c.XAIBaseURL, c.XAIModel
	case "openai":
		return c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel
	case "ollama":
		return "", c.OllamaURL, c.OllamaModel
	default:
		return "", "", ""
	}
}
