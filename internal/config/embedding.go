package config

import (
	"fmt"
	"os"
	"time"
)

// EmbeddingConfig configures the text embedding provider used for catalog items.
type EmbeddingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Name       string        `mapstructure:"name"`         // Identifier used in logs
	Provider   string        `mapstructure:"provider"`     // "jina" or "openai-compatible"
	Model      string        `mapstructure:"model"`        // Model name/ID
	APIKey     string        `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`     // Override of the provider endpoint
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars resolves environment variable references in the configuration.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// Validate checks that the embedding configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("embedding %q: provider is required", c.Name)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Name)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Name)
	}

	switch c.Provider {
	case "jina":
	case "openai-compatible":
		if c.BaseURL == "" {
			return fmt.Errorf("embedding %q: base_url is required for provider %q", c.Name, c.Provider)
		}
	default:
		return fmt.Errorf("embedding %q: unknown provider %q", c.Name, c.Provider)
	}
	return nil
}

// Clone creates a copy of the embedding configuration.
func (c *EmbeddingConfig) Clone() *EmbeddingConfig {
	cp := *c
	return &cp
}
