package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kbukum/taskflow/logger"
)

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type streamConfig struct {
	backlog   func() []Frame
	skip      func(Frame) bool
	closeOn   func(Frame) bool
	keepAlive time.Duration
}

// StreamOption configures ServeSSE.
type StreamOption func(*streamConfig)

// WithBacklog sends the frames returned by fn right after the connected
// event. fn is called after the client is registered, so nothing
// broadcast in between is lost; pair it with WithFilter to drop
// duplicates.
func WithBacklog(fn func() []Frame) StreamOption {
	return func(c *streamConfig) { c.backlog = fn }
}

// WithSkip drops live frames for which skip returns true. It runs on the
// streaming goroutine after the backlog has been written, so it may read
// state the backlog function set.
func WithSkip(skip func(Frame) bool) StreamOption {
	return func(c *streamConfig) { c.skip = skip }
}

// WithCloseOn ends the stream after writing a frame for which last
// returns true.
func WithCloseOn(last func(Frame) bool) StreamOption {
	return func(c *streamConfig) { c.closeOn = last }
}

// WithKeepAlive sets the keep-alive comment interval. Default 30s.
func WithKeepAlive(d time.Duration) StreamOption {
	return func(c *streamConfig) { c.keepAlive = d }
}

// WriteFrame writes f in SSE wire format. Multi-line data is split into
// one data line per line.
func WriteFrame(w io.Writer, f Frame) error {
	if f.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", f.Event); err != nil {
			return err
		}
	}
	for _, line := range bytes.Split(f.Data, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ServeSSE registers client with hub and streams its frames until the
// request ends, the hub stops, or a close frame is written.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, client *Client, opts ...StreamOption) {
	cfg := streamConfig{keepAlive: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := logger.Get("sse").WithContext(r.Context())
	fields := map[string]interface{}{"client_id": client.ID(), "topic": client.Topic()}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported", fields)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived stream; the server WriteTimeout must not apply.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not disable write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	hub.Register(client)
	defer hub.Unregister(client)

	connected, _ := json.Marshal(ConnectedEvent{
		ClientID: client.ID(),
		Topic:    client.Topic(),
		Metadata: client.Metadata(),
	})
	if err := WriteFrame(w, Frame{Event: EventTypeConnected, Data: connected}); err != nil {
		return
	}
	if cfg.backlog != nil {
		for _, f := range cfg.backlog() {
			if err := WriteFrame(w, f); err != nil {
				return
			}
			if cfg.closeOn != nil && cfg.closeOn(f) {
				flusher.Flush()
				return
			}
		}
	}
	flusher.Flush()
	log.Debug("client connected", fields)

	keepAlive := time.NewTicker(cfg.keepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", fields)
			return

		case f, ok := <-client.Frames():
			if !ok {
				return
			}
			if cfg.skip != nil && cfg.skip(f) {
				continue
			}
			if err := WriteFrame(w, f); err != nil {
				log.Debug("write failed", logger.MergeWithError(fields, err))
				return
			}
			flusher.Flush()
			if cfg.closeOn != nil && cfg.closeOn(f) {
				return
			}

		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
