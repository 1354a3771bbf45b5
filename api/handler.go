package api

import (
	"mime"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/taskflow/dag"
	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/layout"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/runs"
	"github.com/kbukum/taskflow/server/middleware"
	"github.com/kbukum/taskflow/sse"
)

// Handler serves the run API.
type Handler struct {
	runs      *runs.Manager
	hub       *sse.Hub
	rateLimit middleware.RateLimitConfig
	layout    []layout.Option
	log       *logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimit limits run creation and replay per client.
func WithRateLimit(cfg middleware.RateLimitConfig) Option {
	return func(h *Handler) { h.rateLimit = cfg }
}

// WithLayoutOptions sets the options used by the layout endpoint.
func WithLayoutOptions(opts ...layout.Option) Option {
	return func(h *Handler) { h.layout = opts }
}

// WithLogger sets the handler's logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler creates a Handler over m. Event streams subscribe to hub,
// which must be the broadcaster m publishes to.
func NewHandler(m *runs.Manager, hub *sse.Hub, opts ...Option) *Handler {
	h := &Handler{runs: m, hub: hub}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.GetGlobalLogger()
	}
	h.log = h.log.WithComponent("api")
	return h
}

// Register mounts the API on r.
func (h *Handler) Register(r gin.IRouter) {
	limited := middleware.RateLimit(h.rateLimit)

	v1 := r.Group("/api/v1")
	v1.POST("/runs", limited, h.createRun)
	v1.GET("/runs", h.listRuns)
	v1.GET("/runs/:id", h.getRun)
	v1.GET("/runs/:id/events", h.streamEvents)
	v1.POST("/runs/:id/cancel", h.cancelRun)
	v1.POST("/runs/:id/replay", limited, h.replayRun)
	v1.GET("/runs/:id/layout", h.runLayout)
	v1.POST("/graphs/validate", h.validateGraph)
	v1.POST("/graphs/layout", h.graphLayout)
}

// readDocument decodes the request body as a graph document. The format
// comes from the Content-Type, falling back to detection.
func readDocument(c *gin.Context) (*dag.Document, error) {
	data, err := c.GetRawData()
	if err != nil {
		return nil, taskerrors.InvalidInput("body", err.Error())
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, taskerrors.InvalidInput("body", "graph document is empty")
	}
	doc, err := dag.ParseDocument(data, bodyFormat(c.GetHeader("Content-Type")))
	if err != nil {
		return nil, taskerrors.InvalidInput("body", err.Error()).WithCause(err)
	}
	return doc, nil
}

func bodyFormat(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch {
	case strings.HasSuffix(mediaType, "json"):
		return "json"
	case strings.HasSuffix(mediaType, "yaml"), strings.HasSuffix(mediaType, "yml"):
		return "yaml"
	}
	return ""
}
