package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/taskflow/component"
	"github.com/kbukum/taskflow/logger"
)

// Summary records what an app started with: its components, their
// health and the HTTP routes they serve.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	components      []component.Description
	health          []component.Health
	routes          []component.Route
}

// NewSummary creates an empty summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Collect snapshots descriptions, routes and live health from registry.
func (s *Summary) Collect(ctx context.Context, registry *component.Registry) {
	s.components = registry.Descriptions()
	s.routes = registry.Routes()
	s.health = registry.HealthAll(ctx)
}

// Components returns the collected component descriptions.
func (s *Summary) Components() []component.Description { return s.components }

// Routes returns the collected routes.
func (s *Summary) Routes() []component.Route { return s.routes }

// Log writes one structured line for the whole summary.
func (s *Summary) Log(log *logger.Logger) {
	names := make([]string, 0, len(s.components))
	for _, c := range s.components {
		names = append(names, c.Name)
	}
	unhealthy := 0
	for _, h := range s.health {
		if h.Status != component.StatusHealthy {
			unhealthy++
		}
	}
	log.Info("startup complete", map[string]interface{}{
		"service":     s.serviceName,
		"version":     s.version,
		"duration_ms": s.startupDuration.Milliseconds(),
		"components":  names,
		"routes":      len(s.routes),
		"unhealthy":   unhealthy,
	})
}

// Write renders the summary as a tree.
func (s *Summary) Write(w io.Writer) {
	version := s.version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "\n%s %s started in %s\n", s.serviceName, version, s.startupDuration.Round(time.Millisecond))

	if len(s.components) > 0 {
		fmt.Fprintf(w, "\nComponents\n")
		for i, c := range s.components {
			line := c.Name
			if c.Type != "" {
				line += " [" + c.Type + "]"
			}
			if c.Details != "" {
				line += " " + c.Details
			}
			fmt.Fprintf(w, "   %s %s\n", branch(i, len(s.components)), line)
		}
	}

	if len(s.routes) > 0 {
		fmt.Fprintf(w, "\nRoutes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(w, "   %s %-7s %s\n", branch(i, len(s.routes)), r.Method, r.Path)
		}
	}

	if len(s.health) > 0 {
		fmt.Fprintf(w, "\nHealth\n")
		for i, h := range s.health {
			msg := ""
			if h.Message != "" {
				msg = " (" + h.Message + ")"
			}
			fmt.Fprintf(w, "   %s %s %s: %s%s\n", branch(i, len(s.health)), healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
		}
	}
	fmt.Fprintln(w)
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
