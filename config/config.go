package config

import (
	"fmt"
	"time"

	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/llm"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
	"github.com/kbukum/taskflow/runstore"
	"github.com/kbukum/taskflow/server"
	"github.com/kbukum/taskflow/tool"
	"github.com/kbukum/taskflow/validation"
)

// ServiceName is the default service name used for file lookup and logs.
const ServiceName = "taskflow"

// BaseConfig contains the fields every deployment sets.
type BaseConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`
}

// ApplyDefaults applies default values to base configuration.
func (c *BaseConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
}

// SchedulerConfig configures run scheduling.
type SchedulerConfig struct {
	// MaxParallel caps nodes in flight per run. 0 is unlimited.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel" validate:"min=0"`
	// NodeTimeout bounds one node execution. 0 disables.
	NodeTimeout time.Duration `yaml:"node_timeout" mapstructure:"node_timeout" validate:"min=0"`
	// FailurePolicy is skip, fail-propagate or execute-with-hole.
	FailurePolicy string `yaml:"failure_policy" mapstructure:"failure_policy"`
}

// ApplyDefaults applies default values to scheduler configuration.
func (c *SchedulerConfig) ApplyDefaults() {
	if c.FailurePolicy == "" {
		c.FailurePolicy = string(dag.PolicySkip)
	}
}

// Validate checks the failure policy name.
func (c *SchedulerConfig) Validate() error {
	if _, err := dag.ParseFailurePolicy(c.FailurePolicy); err != nil {
		return fmt.Errorf("scheduler.failure_policy: %w", err)
	}
	return nil
}

// Policy returns the parsed failure policy.
func (c *SchedulerConfig) Policy() dag.FailurePolicy {
	p, err := dag.ParseFailurePolicy(c.FailurePolicy)
	if err != nil {
		return dag.PolicySkip
	}
	return p
}

// AppConfig is the full taskflow configuration.
type AppConfig struct {
	Base      BaseConfig                 `yaml:"base" mapstructure:"base"`
	Logging   logger.Config              `yaml:"logging" mapstructure:"logging"`
	Scheduler SchedulerConfig            `yaml:"scheduler" mapstructure:"scheduler"`
	LLM       llm.Config                 `yaml:"llm" mapstructure:"llm"`
	Tools     tool.Config                `yaml:"tools" mapstructure:"tools"`
	Store     runstore.Config            `yaml:"store" mapstructure:"store"`
	Server    server.Config              `yaml:"server" mapstructure:"server"`
	Tracing   observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	// GraphDirs are searched by name when a graph path is not found.
	GraphDirs []string `yaml:"graph_dirs" mapstructure:"graph_dirs"`
}

// ApplyDefaults applies defaults to every section.
func (c *AppConfig) ApplyDefaults() {
	c.Base.ApplyDefaults()
	c.Logging.ApplyDefaults()
	if c.Base.Debug && c.Logging.Level == "info" {
		c.Logging.Level = "debug"
	}
	c.Scheduler.ApplyDefaults()
	c.LLM.ApplyDefaults()
	c.Tools.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Tracing.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Base.Name
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.Base.Environment
	}
	if len(c.GraphDirs) == 0 {
		c.GraphDirs = []string{".", "graphs"}
	}
}

// GetServiceConfig returns the service identity section.
func (c *AppConfig) GetServiceConfig() *BaseConfig { return &c.Base }

// GetLogging returns the logging section.
func (c *AppConfig) GetLogging() *logger.Config { return &c.Logging }

// Validate runs struct-tag validation and then each section's checks.
func (c *AppConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	checks := []func() error{
		c.Logging.Validate,
		c.Scheduler.Validate,
		c.LLM.Validate,
		c.Tools.Validate,
		c.Store.Validate,
		c.Server.Validate,
		c.Tracing.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// DispatcherOptions returns the dispatch limits this configuration sets.
func (c *AppConfig) DispatcherOptions() []dag.DispatcherOption {
	return []dag.DispatcherOption{
		dag.WithNodeTimeout(c.Scheduler.NodeTimeout),
		dag.WithMaxInputChars(c.LLM.MaxInputChars),
		dag.WithToolOutputMaxChars(c.Tools.OutputMaxChars),
	}
}

// SchedulerOptions returns the scheduler settings this configuration sets.
func (c *AppConfig) SchedulerOptions() []dag.SchedulerOption {
	return []dag.SchedulerOption{
		dag.WithMaxParallel(c.Scheduler.MaxParallel),
		dag.WithFailurePolicy(c.Scheduler.Policy()),
	}
}
