package tool

import (
	"context"

	"github.com/kbukum/taskflow/provider"
)

type funcTool struct {
	Tool
	description string
}

func (f funcTool) Description() string { return f.description }

// Func wraps fn as a tool.
func Func(name, description string, fn func(ctx context.Context, args map[string]any) (any, error)) Tool {
	return funcTool{Tool: provider.Func(name, fn), description: description}
}
