package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/minhyannv/gemini-agent-go/pkg/errorsx"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultModel   = "gemini-2.0-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	// EnvGeminiAPIKey is the fallback credential source when the flag is absent.
	EnvGeminiAPIKey = "GEMINI_API_KEY"
)

// Config holds all runtime configuration for the agent.
type Config struct {
	GeminiAPIKey string `mapstructure:"gemini-api-key"`

	Provider    string `mapstructure:"provider"`
	Model       string `mapstructure:"model"`
	SearchModel string `mapstructure:"search-model"`
	BaseURL     string `mapstructure:"base-url"`

	Stream         bool          `mapstructure:"stream"`
	Verbose        bool          `mapstructure:"verbose"`
	MaxToolRounds  int           `mapstructure:"max-tool-rounds"`
	MaxConcurrency int           `mapstructure:"max-concurrency"`
	RequestTimeout time.Duration `mapstructure:"timeout"`
	PromptsFile    string        `mapstructure:"prompts-file"`
}

// MissingError reports required configuration values that were not provided.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "Missing configuration values: " + strings.Join(e.Keys, ", ")
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderGemini,
		Model:         DefaultModel,
		SearchModel:   DefaultModel,
		BaseURL:       DefaultBaseURL,
		MaxToolRounds: 0,
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.SearchModel = strings.TrimSpace(cfg.SearchModel)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.PromptsFile = strings.TrimSpace(cfg.PromptsFile)

	if cfg.Provider == "" {
		cfg.Provider = defaults.Provider
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.SearchModel == "" {
		cfg.SearchModel = cfg.Model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.MaxToolRounds < 0 {
		cfg.MaxToolRounds = 0
	}
	if cfg.MaxConcurrency < 0 {
		cfg.MaxConcurrency = 0
	}
	if cfg.RequestTimeout < 0 {
		cfg.RequestTimeout = 0
	}
	return cfg
}

// Validate checks required values. A missing credential yields a
// *MissingError listing the absent keys.
func Validate(cfg Config) error {
	var missing []string
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "geminiApiKey")
	}
	if len(missing) > 0 {
		return errorsx.Wrap(&MissingError{Keys: missing}, errorsx.ReasonConfigMissing)
	}

	switch cfg.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider %q (want %q or %q)", cfg.Provider, ProviderGemini, ProviderOpenAI)
	}
	return nil
}
