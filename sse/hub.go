package sse

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/taskflow/logger"
)

// clientBuffer is the per-client frame buffer. A client that falls this
// far behind is sent an error frame and closed; it has to reconnect and
// reload the backlog.
const clientBuffer = 256

// Client represents a connected SSE client.
type Client struct {
	id       string
	topic    string
	metadata map[string]string
	frames   chan Frame
	filter   func(Frame) bool
	dropped  int
	mu       sync.Mutex
	closed   bool
	joined   chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetadata adds a metadata key-value pair to the client.
func WithMetadata(key, value string) ClientOption {
	return func(c *Client) {
		if c.metadata == nil {
			c.metadata = make(map[string]string)
		}
		c.metadata[key] = value
	}
}

// WithFilter drops broadcast frames for which keep returns false.
func WithFilter(keep func(Frame) bool) ClientOption {
	return func(c *Client) { c.filter = keep }
}

// NewClient creates a client subscribed to topic with a fresh id.
func NewClient(topic string, opts ...ClientOption) *Client {
	c := &Client{
		id:       uuid.NewString(),
		topic:    topic,
		metadata: make(map[string]string),
		frames:   make(chan Frame, clientBuffer+1),
		joined:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Topic returns the topic the client subscribed to.
func (c *Client) Topic() string { return c.topic }

// Metadata returns all client metadata.
func (c *Client) Metadata() map[string]string { return c.metadata }

// Frames returns the channel for receiving frames.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Dropped reports how many frames were lost to a full buffer.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Send queues f for the client. It returns false when the frame was
// filtered or the client is closed. A send that would overflow the buffer
// queues an error frame in the spare slot and closes the client instead.
func (c *Client) Send(f Frame) bool {
	if c.filter != nil && !c.filter(f) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if len(c.frames) < clientBuffer {
		c.frames <- f
		return true
	}

	c.dropped++
	data, _ := json.Marshal(map[string]any{"error": "client fell behind, reconnect to resume", "dropped": c.dropped})
	c.frames <- Frame{Event: EventTypeError, Data: data}
	c.closed = true
	close(c.frames)
	logger.Warn("sse client buffer full, closing stream", map[string]interface{}{
		"client_id": c.id,
		"topic":     c.topic,
	})
	return false
}

// Close closes the client's frame channel. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
}

// Message is one broadcast request.
type Message struct {
	Pattern string // glob matched against client topics
	Frame   Frame
}

// Hub manages SSE client connections and message broadcasting.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	stopped    bool
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        logger.Get("sse"),
	}
}

// Run starts the hub's main event loop. It blocks until Stop is called
// and should be run in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			close(client.joined)
			h.log.Debug("client registered", map[string]interface{}{
				"client_id":     client.id,
				"topic":         client.topic,
				"total_clients": total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", map[string]interface{}{
				"client_id":     client.id,
				"total_clients": total,
			})

		case msg := <-h.broadcast:
			h.broadcastWithPattern(msg.Pattern, msg.Frame)
		}
	}
}

// Stop signals the hub to shut down. It closes all client connections
// and causes Run to return. Safe to call multiple times.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
	h.log.Debug("all clients closed during shutdown")
}

// Register adds a client to the hub. Once it returns the client receives
// every later broadcast. On a stopped hub the client is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
		return
	}
	select {
	case <-client.joined:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern sends an unnamed frame to all clients whose topic
// matches pattern.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	h.Publish(pattern, Frame{Data: data})
}

// Publish sends f to all clients whose topic matches pattern. It is a
// no-op once the hub has stopped.
func (h *Hub) Publish(pattern string, f Frame) {
	select {
	case h.broadcast <- &Message{Pattern: pattern, Frame: f}:
	case <-h.done:
	}
}

func (h *Hub) broadcastWithPattern(pattern string, f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matchCount := 0
	for _, client := range h.clients {
		matched, err := filepath.Match(pattern, client.topic)
		if err != nil {
			h.log.Error("pattern match error", logger.MergeWithError(map[string]interface{}{"pattern": pattern}, err))
			return
		}
		if matched && client.Send(f) {
			matchCount++
		}
	}
	h.log.Debug("broadcast sent", map[string]interface{}{
		"pattern":     pattern,
		"event":       f.Event,
		"match_count": matchCount,
		"data_size":   len(f.Data),
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Topics returns the topic of every connected client.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.clients))
	for _, c := range h.clients {
		topics = append(topics, c.topic)
	}
	return topics
}

var _ Broadcaster = (*Hub)(nil)
