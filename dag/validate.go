package dag

import (
	"errors"
	"fmt"
	"strings"
)

// CycleError reports a directed cycle. Path starts and ends on the same id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dag: cycle detected: " + strings.Join(e.Path, " -> ")
}

// DanglingEdgeError reports an edge whose endpoint is not a node.
type DanglingEdgeError struct {
	Edge    Edge
	Missing string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("dag: edge %s references unknown node %q", e.Edge, e.Missing)
}

// DuplicateIDError reports two nodes with the same id.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("dag: duplicate node id %q", e.ID)
}

// UnknownReferenceError reports a template or guard reference to an id
// that is not in the graph, or not upstream of the referencing node.
type UnknownReferenceError struct {
	NodeID string
	Ref    string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("dag: node %q references unknown node %q", e.NodeID, e.Ref)
}

// InvalidNodeError reports a malformed node definition.
type InvalidNodeError struct {
	NodeID string
	Reason string
}

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("dag: node %q: %s", e.NodeID, e.Reason)
}

// ValidationErrors collects every structural problem found in one pass.
type ValidationErrors []error

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, err := range v {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.As find individual problems.
func (v ValidationErrors) Unwrap() []error { return v }

// Validate checks g for duplicate ids, malformed nodes, dangling edges,
// unknown references and cycles. It never mutates g, so repeated calls on
// the same graph return the same result.
func Validate(g *Graph) error {
	if g == nil {
		return errors.New("dag: nil graph")
	}
	var errs ValidationErrors

	seen := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		if n.ID == "" {
			continue
		}
		if seen[n.ID] {
			errs = append(errs, &DuplicateIDError{ID: n.ID})
		}
		seen[n.ID] = true
	}

	for i, n := range g.nodes {
		switch {
		case strings.TrimSpace(n.ID) == "":
			errs = append(errs, &InvalidNodeError{NodeID: fmt.Sprintf("#%d", i), Reason: "empty id"})
		case !n.Kind.Valid():
			errs = append(errs, &InvalidNodeError{NodeID: n.ID, Reason: fmt.Sprintf("invalid kind %q", n.Kind)})
		case n.Kind == KindToolCall && strings.TrimSpace(n.Tool) == "":
			errs = append(errs, &InvalidNodeError{NodeID: n.ID, Reason: "tool-call without tool name"})
		}
	}

	for _, d := range g.dangling {
		errs = append(errs, &DanglingEdgeError{Edge: d.edge, Missing: d.missing})
	}
	for i := range g.unknownRefs {
		ref := g.unknownRefs[i]
		errs = append(errs, &ref)
	}

	if path := findCycle(g.IDs(), g.succs); path != nil {
		errs = append(errs, &CycleError{Path: path})
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errs
	}
}

// WouldCreateCycle reports whether adding source -> target to edges closes
// a cycle. A self-edge always does.
func WouldCreateCycle(edges []Edge, source, target string) bool {
	if source == target {
		return true
	}
	adj := adjacency(edges)
	visited := make(map[string]bool)
	stack := []string{target}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == source {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, adj[id]...)
	}
	return false
}

func adjacency(edges []Edge) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

// cyclePathThrough returns the cycle that adding e would close, as a path
// from e.Source back to itself.
func cyclePathThrough(edges []Edge, e Edge) []string {
	if e.Source == e.Target {
		return []string{e.Source, e.Source}
	}
	adj := adjacency(edges)
	parent := map[string]string{e.Target: ""}
	queue := []string{e.Target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == e.Source {
			break
		}
		for _, next := range adj[id] {
			if _, ok := parent[next]; !ok {
				parent[next] = id
				queue = append(queue, next)
			}
		}
	}
	var rev []string
	for id := e.Source; id != ""; id = parent[id] {
		rev = append(rev, id)
	}
	path := []string{e.Source}
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// findCycle runs a colored depth-first search in the order of ids and
// returns the first cycle found, closed on its first id.
func findCycle(ids []string, succs map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(ids))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range succs[id] {
			switch color[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
