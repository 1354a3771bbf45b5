package tool

import (
	"fmt"
	"time"

	"github.com/kbukum/taskflow/process"
	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/resilience"
)

var noResilience provider.ResilienceConfig

// Config declares the tools available to a run.
type Config struct {
	// OutputMaxChars caps stored tool output. Defaults to 20000.
	OutputMaxChars int `yaml:"output_max_chars" mapstructure:"output_max_chars"`
	// MaxConcurrent bounds concurrent tool calls. 0 is unbounded.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxWait bounds how long a call waits for a free slot.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`

	Process  process.Config                   `yaml:"process" mapstructure:"process"`
	Retry    *resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	Breaker  *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Commands []CommandConfig                  `yaml:"commands" mapstructure:"commands" validate:"dive"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.OutputMaxChars == 0 {
		c.OutputMaxChars = 20000
	}
	if c.MaxWait == 0 {
		c.MaxWait = 30 * time.Second
	}
	if c.Process.Name == "" {
		c.Process.Name = "tools"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.OutputMaxChars < 0 {
		return fmt.Errorf("tools.output_max_chars must not be negative (got: %d)", c.OutputMaxChars)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("tools.max_concurrent must not be negative (got: %d)", c.MaxConcurrent)
	}
	if c.Process.MaxOutput < 0 {
		return fmt.Errorf("tools.process.max_output must not be negative (got: %d)", c.Process.MaxOutput)
	}
	seen := map[string]bool{}
	for i, cmd := range c.Commands {
		if cmd.Name == "" || cmd.Command == "" {
			return fmt.Errorf("tools.commands[%d]: name and command are required", i)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("tools.commands[%d]: duplicate name %q", i, cmd.Name)
		}
		seen[cmd.Name] = true
		if cmd.Stdin != "" && cmd.Stdin != "json" && cmd.Stdin != "none" {
			return fmt.Errorf("tools.commands[%d]: stdin must be json or none", i)
		}
	}
	return nil
}

// Build creates a registry holding every configured command tool plus
// extra. All command tools share one process runner.
func (c *Config) Build(extra ...Tool) (*Registry, error) {
	runner := process.NewRunner(c.Process, provider.ResilienceConfig{Retry: c.Retry, CircuitBreaker: c.Breaker})
	reg := NewRegistry(WithMaxConcurrent(c.MaxConcurrent, c.MaxWait))
	for _, cc := range c.Commands {
		cmd, err := NewCommand(cc, runner)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(cmd); err != nil {
			return nil, err
		}
	}
	for _, t := range extra {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
