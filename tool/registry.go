package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/taskflow/dag"
	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/resilience"
)

// Tool is a named capability taking structured arguments.
type Tool = provider.RequestResponse[map[string]any, any]

// Describer is implemented by tools that carry a description.
type Describer interface {
	Description() string
}

// Registry maps tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	bulkhead *resilience.Bulkhead
	log      *logger.Logger
}

var _ dag.ToolCapability = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithMaxConcurrent limits concurrent tool calls across the registry.
// Calls beyond the limit wait up to maxWait for a slot; zero rejects them
// at once.
func WithMaxConcurrent(n int, maxWait time.Duration) Option {
	return func(r *Registry) {
		if n > 0 {
			r.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{Name: "tools", MaxConcurrent: n, MaxWait: maxWait})
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.GetGlobalLogger()
	}
	r.log = r.log.WithComponent("tools")
	return r
}

// Register adds t under t.Name(). Names must be unique.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("tool: %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns each tool's description keyed by name.
func (r *Registry) Catalog() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.tools))
	for name, t := range r.tools {
		if d, ok := t.(Describer); ok {
			out[name] = d.Description()
		} else {
			out[name] = ""
		}
	}
	return out
}

// Name implements provider.Provider.
func (r *Registry) Name() string { return "tools" }

// IsAvailable reports whether at least one tool is registered.
func (r *Registry) IsAvailable(context.Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools) > 0
}

// Execute invokes the named tool. Unknown names fail with NOT_FOUND.
func (r *Registry) Execute(ctx context.Context, req dag.ToolRequest) (any, error) {
	t, ok := r.Get(req.Tool)
	if !ok {
		return nil, taskerrors.NotFound("tool", req.Tool)
	}
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	r.log.Debug("tool call", map[string]interface{}{"tool": req.Tool, "args": len(args)})
	if r.bulkhead == nil {
		return t.Execute(ctx, args)
	}
	return resilience.ExecuteWithResult(ctx, r.bulkhead, func() (any, error) {
		return t.Execute(ctx, args)
	})
}
