package dag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Document is the serialized form of a graph, as produced by a planner or
// written by hand. It reads from JSON or YAML.
type Document struct {
	Nodes []NodeDoc `json:"nodes" yaml:"nodes"`
	Edges []Edge    `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// NodeDoc is one node in a Document.
type NodeDoc struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Executor    string        `json:"executor" yaml:"executor"`
	ToolName    string        `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	Source      StringList    `json:"source,omitempty" yaml:"source,omitempty"`
	Target      StringList    `json:"target,omitempty" yaml:"target,omitempty"`
	Input       any           `json:"input,omitempty" yaml:"input,omitempty"`
	LLMConfig   *ModelBinding `json:"llm_config,omitempty" yaml:"llm_config,omitempty"`
	Timeout     string        `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("want string or list of strings: %w", err)
	}
	*l = list
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: want string or list of strings", n.Line)
}

// ParseDocument decodes data as "json" or "yaml". An empty format is
// detected from the first non-space byte.
func ParseDocument(data []byte, format string) (*Document, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		format = "yaml"
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = "json"
		}
	}

	var doc Document
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("dag: parsing json document: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("dag: parsing yaml document: %w", err)
		}
		doc.normalize()
	default:
		return nil, fmt.Errorf("dag: unknown document format %q", format)
	}
	return &doc, nil
}

// LoadDocument reads a document, choosing the format from the extension.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// FindDocument resolves a graph name to a file: {name}.yaml, .yml or .json
// in each directory, searched in order, then one level of subdirectories.
func FindDocument(name string, dirs ...string) (string, error) {
	exts := []string{".yaml", ".yml", ".json"}
	for _, dir := range dirs {
		for _, ext := range exts {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		for _, ext := range exts {
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			if len(matches) > 0 {
				return matches[0], nil
			}
		}
	}
	return "", fmt.Errorf("dag: graph %q not found in %v", name, dirs)
}

// Graph converts and validates the document.
func (d *Document) Graph() (*Graph, error) {
	nodes := make([]Node, 0, len(d.Nodes))
	for _, nd := range d.Nodes {
		n, err := nd.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return Build(nodes, d.Edges)
}

func (nd NodeDoc) node() (Node, error) {
	kind := KindModelCall
	if nd.Executor != "" {
		k, err := ParseKind(nd.Executor)
		if err != nil {
			return Node{}, &InvalidNodeError{NodeID: nd.ID, Reason: err.Error()}
		}
		kind = k
	}
	n := Node{
		ID:          nd.ID,
		Kind:        kind,
		Name:        nd.Name,
		Description: nd.Description,
		Input:       cloneValue(nd.Input),
		Tool:        nd.ToolName,
		Upstream:    append([]string(nil), nd.Source...),
		Downstream:  append([]string(nil), nd.Target...),
	}
	if nd.LLMConfig != nil {
		m := *nd.LLMConfig
		n.Model = &m
	}
	if nd.Timeout != "" {
		d, err := time.ParseDuration(nd.Timeout)
		if err != nil {
			return Node{}, &InvalidNodeError{NodeID: nd.ID, Reason: fmt.Sprintf("timeout: %v", err)}
		}
		n.Timeout = d
	}
	return n, nil
}

// DocumentOf serializes g. Only explicit edges are written; the rest are
// implied by the nodes again on load.
func DocumentOf(g *Graph) *Document {
	doc := &Document{Edges: append([]Edge(nil), g.explicit...)}
	for _, n := range g.nodes {
		nd := NodeDoc{
			ID:          n.ID,
			Name:        n.Name,
			Description: n.Description,
			Executor:    string(n.Kind),
			ToolName:    n.Tool,
			Source:      StringList(append([]string(nil), n.Upstream...)),
			Target:      StringList(append([]string(nil), n.Downstream...)),
			Input:       cloneValue(n.Input),
		}
		if n.Model != nil {
			m := *n.Model
			nd.LLMConfig = &m
		}
		if n.Timeout > 0 {
			nd.Timeout = n.Timeout.String()
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

// normalize converts YAML-decoded values into the JSON-like shapes used by
// templates (float64 numbers, map[string]any objects).
func (d *Document) normalize() {
	for i := range d.Nodes {
		d.Nodes[i].Input = normalizeYAML(d.Nodes[i].Input)
	}
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeYAML(x)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[fmt.Sprint(k)] = normalizeYAML(x)
		}
		return out
	case []any:
		for i, x := range t {
			t[i] = normalizeYAML(x)
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	}
	return v
}
