package llm

import (
	"fmt"
	"time"

	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/resilience"
)

// DefaultModel is used when neither the config nor the node names a model.
const DefaultModel = "gpt-4o"

var defaultBaseURLs = map[string]string{
	"openai": "https://api.openai.com/v1",
	"ollama": "http://localhost:11434",
}

// Config holds configuration for creating an LLM adapter.
// The Dialect field selects the provider mapping.
type Config struct {
	// Name identifies this adapter instance in logs and spans.
	Name string `yaml:"name" mapstructure:"name"`

	// Dialect selects the provider mapping ("openai" or "ollama").
	Dialect string `yaml:"dialect" mapstructure:"dialect"`

	// BaseURL is the provider's API base URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// APIKey is sent as a bearer token by dialects that authenticate.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Model is the default model for nodes without an llm_config.
	Model string `yaml:"model" mapstructure:"model"`

	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// MaxTokens is the default response limit. 0 means provider default.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout for one HTTP request. Defaults to 60s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxInputChars truncates prompts before they are sent. 0 disables.
	MaxInputChars int `yaml:"max_input_chars" mapstructure:"max_input_chars"`

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	Retry          *resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimiter    *resilience.RateLimiterConfig    `yaml:"rate_limiter" mapstructure:"rate_limiter"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = "openai"
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURLs[c.Dialect]
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Name == "" {
		c.Name = c.Dialect + "-llm"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := GetDialect(c.Dialect); err != nil {
		return fmt.Errorf("llm.dialect: %w", err)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required for dialect %q", c.Dialect)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2 (got: %g)", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must not be negative (got: %d)", c.MaxTokens)
	}
	if c.MaxInputChars < 0 {
		return fmt.Errorf("llm.max_input_chars must not be negative (got: %d)", c.MaxInputChars)
	}
	return nil
}

// Resilience returns the resilience policies configured for the adapter.
func (c *Config) Resilience() provider.ResilienceConfig {
	return provider.ResilienceConfig{
		Retry:          c.Retry,
		CircuitBreaker: c.CircuitBreaker,
		RateLimiter:    c.RateLimiter,
	}
}
