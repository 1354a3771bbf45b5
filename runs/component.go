package runs

import (
	"context"
	"fmt"

	"github.com/kbukum/taskflow/component"
)

// Component ties a Manager and its store to the process lifecycle.
// Stopping it cancels in-flight runs, waits for them to be saved and
// closes the store.
type Component struct {
	manager *Manager
	driver  string
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent wraps m. driver names the store backend for display.
func NewComponent(m *Manager, driver string) *Component {
	return &Component{manager: m, driver: driver}
}

// Name returns the component name.
func (c *Component) Name() string { return "runs" }

// Start is a no-op; the manager accepts runs as soon as it exists.
func (c *Component) Start(context.Context) error { return nil }

// Stop shuts the manager down.
func (c *Component) Stop(ctx context.Context) error {
	return c.manager.Shutdown(ctx)
}

// Health reports the number of in-flight runs. A store that cannot list
// its runs makes the component unhealthy.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if _, err := c.manager.store.List(ctx); err != nil {
		h.Status = component.StatusUnhealthy
		h.Message = "store: " + err.Error()
		return h
	}
	h.Message = fmt.Sprintf("%d runs in flight", c.manager.ActiveCount())
	return h
}

// Describe returns a startup summary line.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Run Manager",
		Type:    "runs",
		Details: "store: " + c.driver,
	}
}
