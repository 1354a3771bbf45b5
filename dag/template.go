package dag

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Guard merge directives recognized in tool-call inputs.
const (
	DirectiveFromGuard     = "__from_guard__"
	DirectiveFromGuards    = "__from_guards__"
	DirectiveParamOverride = "_param_overrides"
)

var refPattern = regexp.MustCompile(`\{([A-Za-z0-9_\-]+)\.output([^}]*)\}`)

// ResolutionError means a template referenced a node with no recorded
// output. The scheduler treats it as fatal: readiness guarantees it cannot
// happen for a valid graph.
type ResolutionError struct {
	NodeID string
	Ref    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("dag: node %q: no output recorded for %q", e.NodeID, e.Ref)
}

// PathError means a reference's field path did not match the referenced
// output. Only the consuming node fails.
type PathError struct {
	NodeID string
	Ref    string
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("dag: node %q: invalid path %q on %s.output: %s", e.NodeID, e.Path, e.Ref, e.Reason)
}

// References lists the node ids referenced anywhere in tmpl, in order of
// first appearance.
func References(tmpl any) []string {
	var out []string
	seen := make(map[string]bool)
	walkStrings(tmpl, func(s string) {
		for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	})
	return out
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for _, k := range sortedKeys(t) {
			walkStrings(t[k], fn)
		}
	case []any:
		for _, x := range t {
			walkStrings(x, fn)
		}
	case []string:
		for _, x := range t {
			fn(x)
		}
	}
}

// guardDirectiveIDs returns the guard ids named by merge directives in a
// tool-call input.
func guardDirectiveIDs(tmpl any) []string {
	m, ok := tmpl.(map[string]any)
	if !ok {
		return nil
	}
	if id, ok := m[DirectiveFromGuard].(string); ok && !isNullRef(id) {
		return []string{id}
	}
	var out []string
	switch ids := m[DirectiveFromGuards].(type) {
	case []any:
		for _, x := range ids {
			if s, ok := x.(string); ok && !isNullRef(s) {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range ids {
			if !isNullRef(s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// ResolveTemplate substitutes every reference in tmpl with the recorded
// output it names. tmpl itself is not modified.
func ResolveTemplate(tmpl any, outputs map[string]any) (any, error) {
	r := &resolver{outputs: outputs}
	return r.value(tmpl)
}

// resolver fills templates for one node. Ids in holes belong to
// predecessors that did not succeed; they resolve to placeholders instead
// of failing.
type resolver struct {
	nodeID  string
	outputs map[string]any
	holes   map[string]bool
}

func (r *resolver) value(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.str(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			res, err := r.value(x)
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			res, err := r.value(x)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, x := range t {
			res, err := r.str(x)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *resolver) str(s string) (any, error) {
	locs := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s, nil
	}

	// A string that is exactly one reference keeps the referenced type.
	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(s) {
		ref, path := s[locs[0][2]:locs[0][3]], s[locs[0][4]:locs[0][5]]
		val, hole, err := r.lookup(ref, path)
		if err != nil || hole {
			return nil, err
		}
		return cloneValue(val), nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		ref, path := s[loc[2]:loc[3]], s[loc[4]:loc[5]]
		val, hole, err := r.lookup(ref, path)
		if err != nil {
			return nil, err
		}
		if hole {
			b.WriteString("{Missing Output: " + ref + "}")
		} else {
			b.WriteString(render(val))
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func (r *resolver) lookup(ref, path string) (any, bool, error) {
	val, ok := r.outputs[ref]
	if !ok {
		if r.holes[ref] {
			return nil, true, nil
		}
		return nil, false, &ResolutionError{NodeID: r.nodeID, Ref: ref}
	}
	res, err := walkPath(val, path)
	if err != nil {
		return nil, false, &PathError{NodeID: r.nodeID, Ref: ref, Path: strings.TrimSpace(path), Reason: err.Error()}
	}
	return res, false, nil
}

// walkPath applies ".key" and "[n]" segments to v.
func walkPath(v any, path string) (any, error) {
	expr := strings.TrimSpace(path)
	i := 0
	for i < len(expr) {
		switch expr[i] {
		case '.':
			i++
			start := i
			for i < len(expr) && isKeyChar(expr[i]) {
				i++
			}
			key := expr[start:i]
			if key == "" {
				return nil, fmt.Errorf("empty field name at offset %d", start)
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %q on %s", key, typeName(v))
			}
			next, ok := m[key]
			if !ok {
				return nil, fmt.Errorf("missing field %q", key)
			}
			v = next
		case '[':
			i++
			start := i
			for i < len(expr) && expr[i] >= '0' && expr[i] <= '9' {
				i++
			}
			if i >= len(expr) || expr[i] != ']' || i == start {
				return nil, fmt.Errorf("malformed index at offset %d", start)
			}
			n, _ := strconv.Atoi(expr[start:i])
			i++
			list, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("index [%d] on %s", n, typeName(v))
			}
			if n >= len(list) {
				return nil, fmt.Errorf("index [%d] out of range (len %d)", n, len(list))
			}
			v = list[n]
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", expr[i], i)
		}
	}
	return v, nil
}

func isKeyChar(c byte) bool {
	return c == '_' || c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, int, int64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// resolveInput produces the input a node is dispatched with. Tool-call
// inputs carrying guard directives take their arguments from the named
// guard outputs, with _param_overrides applied last.
func resolveInput(n Node, outputs map[string]any, holes map[string]bool) (any, error) {
	r := &resolver{nodeID: n.ID, outputs: outputs, holes: holes}
	if n.Kind != KindToolCall {
		return r.value(n.Input)
	}
	m, ok := n.Input.(map[string]any)
	if !ok {
		return r.value(n.Input)
	}
	_, single := m[DirectiveFromGuard]
	_, multi := m[DirectiveFromGuards]
	if !single && !multi {
		return r.value(n.Input)
	}

	args := make(map[string]any)
	for _, id := range guardDirectiveIDs(m) {
		out, ok := outputs[id]
		if !ok {
			if holes[id] {
				continue
			}
			return nil, &ResolutionError{NodeID: n.ID, Ref: id}
		}
		gm, ok := out.(map[string]any)
		if !ok {
			return nil, &PathError{NodeID: n.ID, Ref: id, Reason: fmt.Sprintf("guard output is %s, want object", typeName(out))}
		}
		for k, v := range gm {
			args[k] = cloneValue(v)
		}
	}
	if raw, ok := m[DirectiveParamOverride]; ok {
		ov, err := r.value(raw)
		if err != nil {
			return nil, err
		}
		om, ok := ov.(map[string]any)
		if !ok {
			return nil, &PathError{NodeID: n.ID, Ref: n.ID, Path: DirectiveParamOverride, Reason: "overrides must be an object"}
		}
		for k, v := range om {
			args[k] = v
		}
	}
	return args, nil
}
