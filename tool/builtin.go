package tool

import (
	"context"
	"strings"
	"time"
)

// Builtins returns the tools every registry built by the CLI and server
// carries.
func Builtins() []Tool {
	return []Tool{
		Func("echo", "Returns its arguments unchanged.", func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		}),
		Func("join", "Joins the string items of args.items with args.sep.", func(_ context.Context, args map[string]any) (any, error) {
			items, _ := args["items"].([]any)
			sep, _ := args["sep"].(string)
			parts := make([]string, 0, len(items))
			for _, it := range items {
				if s, ok := it.(string); ok {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, sep), nil
		}),
		Func("sleep", "Waits args.ms milliseconds, then returns them.", func(ctx context.Context, args map[string]any) (any, error) {
			ms, _ := args["ms"].(float64)
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return map[string]any{"slept_ms": ms}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	}
}
