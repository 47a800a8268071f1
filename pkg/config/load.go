package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every optional setting in the environment, e.g. AGENT_MODEL.
const EnvPrefix = "AGENT"

// RegisterFlags declares the command-line options on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := DefaultConfig()
	fs.String("gemini-api-key", "", "The API key for the Gemini API")
	fs.String("provider", defaults.Provider, "Model backend: gemini (native) or openai (OpenAI-compatible endpoint)")
	fs.String("model", defaults.Model, "Model used for the conversation")
	fs.String("search-model", "", "Model used by the search agent (defaults to --model)")
	fs.String("base-url", defaults.BaseURL, "Base URL for the OpenAI-compatible provider")
	fs.Bool("stream", false, "Stream assistant output for user turns")
	fs.Bool("verbose", false, "Verbose logging to stderr")
	fs.Int("max-tool-rounds", defaults.MaxToolRounds, "Max tool-call rounds per input (0 = unlimited)")
	fs.Int("max-concurrency", 0, "Max tool calls run at once within a batch (0 = unlimited)")
	fs.Duration("timeout", 0, "Timeout for each request to the model (0 = none)")
	fs.String("prompts-file", "", "YAML file overriding the built-in prompts")
}

// NewViper returns a viper instance with defaults and environment bindings.
// Flags are bound separately with BindFlags so that explicit flags win over env.
func NewViper() *viper.Viper {
	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("gemini-api-key", "")
	v.SetDefault("provider", defaults.Provider)
	v.SetDefault("model", defaults.Model)
	v.SetDefault("search-model", "")
	v.SetDefault("base-url", defaults.BaseURL)
	v.SetDefault("stream", false)
	v.SetDefault("verbose", false)
	v.SetDefault("max-tool-rounds", defaults.MaxToolRounds)
	v.SetDefault("max-concurrency", 0)
	v.SetDefault("timeout", "0s")
	v.SetDefault("prompts-file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini-api-key", EnvGeminiAPIKey)
	return v
}

// BindFlags binds parsed flags to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// Load resolves the configuration from v. The credential comes from the
// --gemini-api-key flag when set, otherwise from GEMINI_API_KEY.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
