package dag

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/provider"
)

// ExecRequest is what an Executor receives: the node and its resolved
// input.
type ExecRequest struct {
	RunID string
	Node  Node
	Input any
}

// Executor runs one node kind.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ExecRequest) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req ExecRequest) (any, error) {
	return f(ctx, req)
}

// ModelRequest is one completion request made by a model-call node.
type ModelRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ModelResponse is the model's reply.
type ModelResponse struct {
	Text  string
	Model string
}

// ToolRequest is one tool invocation made by a tool-call node.
type ToolRequest struct {
	Tool string
	Args map[string]any
}

// ModelCapability answers model-call nodes.
type ModelCapability = provider.RequestResponse[ModelRequest, ModelResponse]

// ToolCapability answers tool-call nodes. Output is any JSON-like value or
// a JSON string.
type ToolCapability = provider.RequestResponse[ToolRequest, any]

// Capabilities are the external providers node executors call.
type Capabilities struct {
	Models ModelCapability
	Tools  ToolCapability
}

// Outcome is the result of one dispatch. Err is nil on success.
type Outcome struct {
	Output   any
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the executor ran.
func (o Outcome) Duration() time.Duration { return o.Finished.Sub(o.Started) }

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNodeTimeout bounds every node that does not set its own Timeout.
func WithNodeTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// WithMaxInputChars truncates model prompts longer than n characters.
func WithMaxInputChars(n int) DispatcherOption {
	return func(dp *Dispatcher) { dp.limits.maxInputChars = n }
}

// WithToolOutputMaxChars truncates tool outputs longer than n characters.
func WithToolOutputMaxChars(n int) DispatcherOption {
	return func(dp *Dispatcher) { dp.limits.toolOutputMaxChars = n }
}

// Dispatcher routes each node to the Executor registered for its Kind.
type Dispatcher struct {
	executors map[Kind]Executor
	timeout   time.Duration
	limits    limits
}

type limits struct {
	maxInputChars      int
	toolOutputMaxChars int
}

// DefaultToolOutputMaxChars caps tool outputs when no limit is configured.
const DefaultToolOutputMaxChars = 20000

// NewDispatcher registers the built-in executors over caps. A nil
// capability leaves its kind registered; nodes of that kind then fail.
func NewDispatcher(caps Capabilities, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		executors: make(map[Kind]Executor, len(Kinds)),
		limits:    limits{toolOutputMaxChars: DefaultToolOutputMaxChars},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.executors[KindModelCall] = &modelExecutor{models: caps.Models, maxInputChars: d.limits.maxInputChars}
	d.executors[KindToolCall] = &toolExecutor{tools: caps.Tools, maxOutputChars: d.limits.toolOutputMaxChars}
	d.executors[KindParamGuard] = paramGuardExecutor{}
	return d
}

// Register replaces the executor for kind.
func (d *Dispatcher) Register(kind Kind, exec Executor) {
	d.executors[kind] = exec
}

// Wrap decorates every registered executor with mw.
func (d *Dispatcher) Wrap(mw func(Executor) Executor) {
	for k, exec := range d.executors {
		d.executors[k] = mw(exec)
	}
}

// Timeout returns the effective timeout for n.
func (d *Dispatcher) Timeout(n Node) time.Duration {
	if n.Timeout > 0 {
		return n.Timeout
	}
	return d.timeout
}

// Dispatch runs req.Node through its executor. It never returns an error
// directly: executor errors, timeouts and panics all land in Outcome.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, req ExecRequest) Outcome {
	out := Outcome{Started: time.Now()}

	exec, ok := d.executors[req.Node.Kind]
	if !ok || exec == nil {
		out.Err = fmt.Errorf("no executor registered for kind %q", req.Node.Kind)
		out.Finished = time.Now()
		return out
	}

	if timeout := d.Timeout(req.Node); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		output any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("executor panic: %v\n%s", r, debug.Stack())}
			}
		}()
		output, err := exec.Execute(ctx, req)
		done <- result{output: output, err: err}
	}()

	select {
	case r := <-done:
		out.Output, out.Err = r.output, r.err
	case <-ctx.Done():
		out.Err = contextError(ctx, req.Node)
	}
	out.Finished = time.Now()
	return out
}

func contextError(ctx context.Context, n Node) error {
	if ctx.Err() == context.DeadlineExceeded {
		return taskerrors.Timeout("node " + n.ID).WithCause(ctx.Err())
	}
	return ctx.Err()
}
