package provider

import "context"

// Closeable is optionally implemented by providers that hold resources
// requiring explicit cleanup (idle HTTP connections, a child process).
type Closeable interface {
	Close(ctx context.Context) error
}

// Close calls Close on p if it implements Closeable.
func Close(ctx context.Context, p Provider) error {
	if c, ok := p.(Closeable); ok {
		return c.Close(ctx)
	}
	return nil
}
