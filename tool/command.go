package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/kbukum/taskflow/process"
)

// CommandConfig declares a tool backed by an external command.
type CommandConfig struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Description string `yaml:"description" mapstructure:"description"`
	// Command is a shell-style command line. Arguments may contain {key}
	// placeholders filled from the call's arguments.
	Command string `yaml:"command" mapstructure:"command" validate:"required"`
	// Stdin "json" (default) writes the arguments as a JSON object to the
	// process's standard input; "none" sends nothing.
	Stdin   string        `yaml:"stdin" mapstructure:"stdin" validate:"omitempty,oneof=json none"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Env     []string      `yaml:"env" mapstructure:"env"`
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Command is a tool that runs an external process per call. Its output is
// stdout decoded as JSON when possible, else the trimmed text.
type Command struct {
	cfg    CommandConfig
	base   process.Command
	runner *process.Runner
}

// NewCommand builds a command tool. runner supplies the process defaults
// and resilience state shared by every command tool.
func NewCommand(cfg CommandConfig, runner *process.Runner) (*Command, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool: command tool needs a name")
	}
	base, err := process.ParseCommandLine(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", cfg.Name, err)
	}
	base.Env = cfg.Env
	if runner == nil {
		runner = process.NewRunner(process.Config{Name: cfg.Name}, noResilience)
	}
	return &Command{cfg: cfg, base: base, runner: runner}, nil
}

// Name returns the tool name.
func (c *Command) Name() string { return c.cfg.Name }

// Description returns the configured description.
func (c *Command) Description() string { return c.cfg.Description }

// IsAvailable reports whether the runner can start processes.
func (c *Command) IsAvailable(ctx context.Context) bool { return c.runner.IsAvailable(ctx) }

// Execute runs the command with args.
func (c *Command) Execute(ctx context.Context, args map[string]any) (any, error) {
	cmd := c.base
	cmd.Args = make([]string, len(c.base.Args))
	for i, a := range c.base.Args {
		expanded, err := expand(a, args)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", c.cfg.Name, err)
		}
		cmd.Args[i] = expanded
	}
	if c.cfg.Stdin != "none" {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("tool %s: encode arguments: %w", c.cfg.Name, err)
		}
		cmd.Stdin = bytes.NewReader(payload)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	res, err := c.runner.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return res.Value(), nil
}

// expand substitutes {key} placeholders. Strings are inserted verbatim,
// other values as JSON.
func expand(s string, args map[string]any) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := args[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		if str, ok := v.(string); ok {
			return str
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	})
	if missing != "" {
		return "", fmt.Errorf("missing argument %q", missing)
	}
	return out, nil
}
