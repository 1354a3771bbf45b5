package process

import (
	"context"
	"time"

	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/provider"
)

// Config configures a Runner.
type Config struct {
	// Name identifies the runner in logs and errors.
	Name string `yaml:"name,omitempty" mapstructure:"name"`
	// GracePeriod is the default grace period for SIGTERM to SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// Timeout is the default execution timeout. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	// Dir and Env apply to commands that leave them unset.
	Dir string   `yaml:"dir,omitempty" mapstructure:"dir"`
	Env []string `yaml:"env,omitempty" mapstructure:"env"`
	// MaxOutput caps captured stdout for commands that leave it unset.
	MaxOutput int `yaml:"max_output,omitempty" mapstructure:"max_output"`
}

// Runner executes commands with shared defaults and resilience state.
// The circuit breaker state persists across calls, so repeated crashes
// trip the breaker.
type Runner struct {
	config Config
	state  *provider.ResilienceState
	log    *logger.Logger
}

var _ provider.RequestResponse[Command, *Result] = (*Runner)(nil)

// NewRunner creates a Runner. An empty resilience config runs commands
// directly.
func NewRunner(cfg Config, res provider.ResilienceConfig) *Runner {
	return &Runner{
		config: cfg,
		state:  provider.BuildResilience(res),
		log:    logger.Get("process"),
	}
}

// Name implements provider.Provider.
func (r *Runner) Name() string { return r.config.Name }

// IsAvailable implements provider.Provider. Subprocesses are always
// available.
func (r *Runner) IsAvailable(context.Context) bool { return true }

// Execute runs cmd, applying runner defaults.
func (r *Runner) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.GracePeriod == 0 {
		cmd.GracePeriod = r.config.GracePeriod
	}
	if cmd.Dir == "" {
		cmd.Dir = r.config.Dir
	}
	if len(cmd.Env) == 0 {
		cmd.Env = r.config.Env
	}
	if cmd.MaxOutput == 0 {
		cmd.MaxOutput = r.config.MaxOutput
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	res, err := provider.ExecuteWithResilience(ctx, r.state, func() (*Result, error) {
		return Run(ctx, cmd)
	})

	fields := map[string]interface{}{"runner": r.config.Name, "command": cmd.Binary}
	if res != nil {
		fields = logger.MergeWithDuration(fields, res.Duration)
		fields["exit_code"] = res.ExitCode
	}
	if err != nil {
		r.log.Debug("command failed", logger.MergeWithError(fields, err))
	} else {
		r.log.Debug("command finished", fields)
	}
	return res, err
}
