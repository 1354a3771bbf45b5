package dag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kbukum/taskflow/validation"
)

// InputTruncatedSuffix marks a model prompt cut at the input limit.
const InputTruncatedSuffix = "\n... [input truncated]"

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ErrNoCapability is returned when a node's kind needs a capability that
// was not configured.
var ErrNoCapability = errors.New("capability not configured")

type modelExecutor struct {
	models        ModelCapability
	maxInputChars int
}

func (e *modelExecutor) Execute(ctx context.Context, req ExecRequest) (any, error) {
	if e.models == nil {
		return nil, fmt.Errorf("model-call %s: %w", req.Node.ID, ErrNoCapability)
	}

	mr := ModelRequest{Prompt: extractPrompt(req.Input)}
	if b := req.Node.Model; b != nil {
		mr.Model, mr.System, mr.Temperature, mr.MaxTokens = b.Name, b.System, b.Temperature, b.MaxTokens
	}
	if m, ok := req.Input.(map[string]any); ok {
		if sys, ok := m["system"].(string); ok && sys != "" {
			mr.System = sys
		}
	}
	mr.Prompt = truncateInput(mr.Prompt, e.maxInputChars)

	resp, err := e.models.Execute(ctx, mr)
	if err != nil {
		return nil, err
	}
	return stripThink(resp.Text), nil
}

// extractPrompt takes "prompt", then "content", then the whole input as
// JSON.
func extractPrompt(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"prompt", "content"} {
			if p, ok := v[key]; ok {
				return render(p)
			}
		}
	}
	return render(input)
}

func truncateInput(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + InputTruncatedSuffix
}

func stripThink(s string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(s, ""))
}

type toolExecutor struct {
	tools          ToolCapability
	maxOutputChars int
}

func (e *toolExecutor) Execute(ctx context.Context, req ExecRequest) (any, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("tool-call %s: %w", req.Node.ID, ErrNoCapability)
	}

	var args map[string]any
	switch in := req.Input.(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = in
	default:
		return nil, fmt.Errorf("tool-call %s: input must be an object, got %s", req.Node.ID, typeName(in))
	}

	out, err := e.tools.Execute(ctx, ToolRequest{Tool: req.Node.Tool, Args: args})
	if err != nil {
		return nil, err
	}
	out = normalizeToolOutput(out)
	if isToolFailure(out) {
		return nil, fmt.Errorf("tool %s returned failure: %s", req.Node.Tool, TruncateOutput(out, 500))
	}
	return TruncateOutput(out, e.maxOutputChars), nil
}

// normalizeToolOutput decodes JSON text into structured data and leaves
// anything else alone.
func normalizeToolOutput(out any) any {
	switch v := out.(type) {
	case []byte:
		return normalizeToolOutput(string(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return v
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
		return v
	}
	return out
}

func isToolFailure(out any) bool {
	switch v := out.(type) {
	case string:
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "error")
	case map[string]any:
		_, ok := v["error"]
		return ok
	}
	return false
}

// TruncateOutput caps the rendered size of out at limit characters. A
// string is cut and suffixed; objects and arrays are replaced by a marker
// object holding a preview.
func TruncateOutput(out any, limit int) any {
	if limit <= 0 {
		return out
	}
	text := render(out)
	n := utf8.RuneCountInString(text)
	if n <= limit {
		return out
	}
	cut := string([]rune(text)[:limit]) +
		fmt.Sprintf("\n... [output truncated, original length: %d chars, showing first %d] ...", n, limit)
	if _, ok := out.(string); ok {
		return cut
	}
	return map[string]any{
		"_truncated":       true,
		"_original_type":   typeName(out),
		"_original_length": n,
		"_preview":         cut,
	}
}

// Param-guard input keys.
const (
	GuardTargetTemplate = "target_input_template"
	GuardDefaults       = "defaults"
	GuardRules          = "rules"
	GuardCoerceJSON     = "coerce_json"
)

// paramGuardExecutor reshapes already-resolved upstream values into the
// argument object a downstream tool expects. It makes no external call.
type paramGuardExecutor struct{}

func (paramGuardExecutor) Execute(_ context.Context, req ExecRequest) (any, error) {
	in, ok := req.Input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("param-guard %s: input must be an object, got %s", req.Node.ID, typeName(req.Input))
	}

	var target map[string]any
	if raw, ok := in[GuardTargetTemplate]; ok {
		target, ok = raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param-guard %s: %s resolved to %s, want object", req.Node.ID, GuardTargetTemplate, typeName(raw))
		}
	} else {
		target = make(map[string]any, len(in))
		for k, v := range in {
			switch k {
			case GuardDefaults, GuardRules, GuardCoerceJSON:
			default:
				target[k] = v
			}
		}
	}

	out := make(map[string]any, len(target))
	if defaults, ok := in[GuardDefaults].(map[string]any); ok {
		for k, v := range defaults {
			out[k] = cloneValue(v)
		}
	}
	coerce := true
	if c, ok := in[GuardCoerceJSON].(bool); ok {
		coerce = c
	}
	for k, v := range target {
		if coerce {
			v = coerceJSON(v)
		}
		if v == nil {
			if _, hasDefault := out[k]; hasDefault {
				continue
			}
		}
		out[k] = v
	}

	if rules, ok := in[GuardRules].(map[string]any); ok && len(rules) > 0 {
		if err := validation.ValidateMap(out, rules); err != nil {
			return nil, fmt.Errorf("param-guard %s: %w", req.Node.ID, err)
		}
	}
	return out, nil
}

// coerceJSON decodes strings that look like a JSON object or array.
func coerceJSON(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 {
		return v
	}
	if (trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}') || (trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']') {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return v
}
