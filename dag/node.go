package dag

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the closed set of node variants.
type Kind string

const (
	KindModelCall  Kind = "model-call"
	KindToolCall   Kind = "tool-call"
	KindParamGuard Kind = "param-guard"
)

// Kinds lists every valid Kind.
var Kinds = []Kind{KindModelCall, KindToolCall, KindParamGuard}

// ParseKind accepts the canonical names and the aliases used in graph
// documents ("llm", "tool", "param_guard").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "model-call", "model_call", "llm", "model":
		return KindModelCall, nil
	case "tool-call", "tool_call", "tool":
		return KindToolCall, nil
	case "param-guard", "param_guard", "guard":
		return KindParamGuard, nil
	}
	return "", fmt.Errorf("dag: unknown node kind %q", s)
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindModelCall, KindToolCall, KindParamGuard:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// ModelBinding selects and tunes the model used by a model-call node.
// Zero fields fall back to the model capability's defaults.
type ModelBinding struct {
	Name        string  `json:"model,omitempty" yaml:"model,omitempty"`
	System      string  `json:"system,omitempty" yaml:"system,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Node is one unit of work. Input is a template: a JSON-like value whose
// strings may reference upstream outputs as {ID.output} or
// {ID.output.field[0]}.
type Node struct {
	ID          string
	Kind        Kind
	Name        string
	Description string
	Input       any
	Tool        string
	Model       *ModelBinding

	// Upstream and Downstream declare edges by node id. "null" and empty
	// values are ignored.
	Upstream   []string
	Downstream []string

	// Timeout bounds the node's capability call. Zero uses the scheduler's.
	Timeout time.Duration
}

// References returns the ids of nodes whose output this node consumes: the
// template references in Input plus any guard merge directives.
func (n Node) References() []string {
	refs := References(n.Input)
	if n.Kind != KindToolCall {
		return refs
	}
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[r] = true
	}
	for _, id := range guardDirectiveIDs(n.Input) {
		if !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}

func (n Node) clone() Node {
	c := n
	c.Input = cloneValue(n.Input)
	c.Upstream = append([]string(nil), n.Upstream...)
	c.Downstream = append([]string(nil), n.Downstream...)
	if n.Model != nil {
		m := *n.Model
		c.Model = &m
	}
	return c
}

func (n Node) label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

func isNullRef(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || strings.EqualFold(id, "null") || strings.EqualFold(id, "none")
}

// cloneValue deep-copies the JSON-like containers in v.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
