package sse

// Broadcaster is an interface for broadcasting events to clients.
// This allows handlers to depend on an abstraction rather than a concrete Hub.
type Broadcaster interface {
	// BroadcastToPattern sends data to all clients whose topic matches the
	// given pattern. Pattern uses glob-style matching (e.g. "run:*" or
	// "run:abc123").
	BroadcastToPattern(pattern string, data []byte)
}
