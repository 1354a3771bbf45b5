package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/taskflow/component"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// ProbeResponse is the body of /health, /ready and /alive.
type ProbeResponse struct {
	Status     string             `json:"status"`
	Service    string             `json:"service"`
	Timestamp  string             `json:"timestamp"`
	Components []component.Health `json:"components,omitempty"`
}

// Overall folds component statuses: any unhealthy component makes the
// whole service unhealthy, any degraded one makes it degraded.
func Overall(components []component.Health) component.HealthStatus {
	status := component.StatusHealthy
	for _, h := range components {
		switch h.Status {
		case component.StatusUnhealthy:
			return component.StatusUnhealthy
		case component.StatusDegraded:
			status = component.StatusDegraded
		}
	}
	return status
}

func probe(serviceName, status string, components []component.Health) ProbeResponse {
	return ProbeResponse{
		Status:     status,
		Service:    serviceName,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
}

func check(c *gin.Context, checker HealthChecker) []component.Health {
	if checker == nil {
		return nil
	}
	return checker(c.Request.Context())
}

// Health reports every component and the folded status. Unhealthy
// answers 503; degraded still answers 200.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := check(c, checker)
		status := Overall(components)
		code := http.StatusOK
		if status == component.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, probe(serviceName, string(status), components))
	}
}

// Readiness answers 503 until no component is unhealthy. A stopped run
// store makes the service unready because runs could not be recorded.
func Readiness(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Overall(check(c, checker)) == component.StatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, probe(serviceName, "not_ready", nil))
			return
		}
		c.JSON(http.StatusOK, probe(serviceName, "ready", nil))
	}
}

// Liveness only confirms the process serves HTTP.
func Liveness(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, probe(serviceName, "alive", nil))
	}
}
