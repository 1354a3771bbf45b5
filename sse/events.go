package sse

// Stream-level SSE event names. Run progress frames carry the event kind
// of the run event instead.
const (
	// EventTypeConnected is sent when a client successfully connects.
	EventTypeConnected = "connected"

	// EventTypeMessage is the default name for unnamed frames.
	EventTypeMessage = "message"

	// EventTypeError is sent when the stream ends on an error.
	EventTypeError = "error"
)

// Frame is one SSE message: an optional event name plus a data payload.
type Frame struct {
	Event string
	Data  []byte
}
