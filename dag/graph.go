package dag

import (
	"fmt"
	"sort"
)

// Edge means Target consumes Source's output.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

func (e Edge) String() string { return e.Source + " -> " + e.Target }

// Graph is an immutable set of nodes and deduplicated edges with derived
// predecessor and successor sets. Edits return a new Graph.
type Graph struct {
	nodes    []Node
	index    map[string]int
	explicit []Edge
	edges    []Edge
	preds    map[string][]string
	succs    map[string][]string

	// dangling and unknownRefs are kept for Validate; Build never returns a
	// graph that has either.
	dangling    []danglingEdge
	unknownRefs []UnknownReferenceError
}

type danglingEdge struct {
	edge    Edge
	missing string
}

// Build derives the edge set and validates the result. Edges come from the
// explicit list, from each node's Upstream and Downstream ids, and from the
// node ids referenced by input templates. Duplicates collapse to one.
func Build(nodes []Node, edges []Edge) (*Graph, error) {
	g := NewGraph(nodes, edges)
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGraph derives a graph without validating it. Callers that schedule the
// result must Validate it first; Build does both.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes:    make([]Node, 0, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		explicit: append([]Edge(nil), edges...),
		preds:    make(map[string][]string, len(nodes)),
		succs:    make(map[string][]string, len(nodes)),
	}
	for _, n := range nodes {
		g.nodes = append(g.nodes, n.clone())
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = len(g.nodes) - 1
		}
	}

	seen := make(map[Edge]bool)
	add := func(e Edge) {
		if seen[e] {
			return
		}
		seen[e] = true
		for _, id := range []string{e.Source, e.Target} {
			if _, ok := g.index[id]; !ok {
				g.dangling = append(g.dangling, danglingEdge{edge: e, missing: id})
				return
			}
		}
		g.edges = append(g.edges, e)
	}

	for _, e := range edges {
		add(e)
	}
	for _, n := range g.nodes {
		for _, up := range n.Upstream {
			if !isNullRef(up) {
				add(Edge{Source: up, Target: n.ID})
			}
		}
		for _, down := range n.Downstream {
			if !isNullRef(down) {
				add(Edge{Source: n.ID, Target: down})
			}
		}
		for _, ref := range n.References() {
			if _, ok := g.index[ref]; !ok {
				g.unknownRefs = append(g.unknownRefs, UnknownReferenceError{NodeID: n.ID, Ref: ref})
				continue
			}
			add(Edge{Source: ref, Target: n.ID})
		}
	}

	for _, e := range g.edges {
		g.preds[e.Target] = append(g.preds[e.Target], e.Source)
		g.succs[e.Source] = append(g.succs[e.Source], e.Target)
	}
	for id := range g.preds {
		g.sortByDeclaration(g.preds[id])
	}
	for id := range g.succs {
		g.sortByDeclaration(g.succs[id])
	}
	return g
}

func (g *Graph) sortByDeclaration(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return g.index[ids[i]] < g.index[ids[j]] })
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether id names a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i].clone(), true
}

// Nodes returns copies of all nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.clone()
	}
	return out
}

// IDs returns node ids in declaration order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.ID
	}
	return out
}

// Edges returns the deduplicated edge set.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Predecessors returns the ids id depends on, in declaration order.
func (g *Graph) Predecessors(id string) []string {
	return append([]string(nil), g.preds[id]...)
}

// Successors returns the ids that depend on id, in declaration order.
func (g *Graph) Successors(id string) []string {
	return append([]string(nil), g.succs[id]...)
}

// Entries returns the nodes without predecessors.
func (g *Graph) Entries() []string {
	var out []string
	for _, n := range g.nodes {
		if len(g.preds[n.ID]) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Exits returns the nodes without successors.
func (g *Graph) Exits() []string {
	var out []string
	for _, n := range g.nodes {
		if len(g.succs[n.ID]) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Descendants returns every node reachable forward from ids, excluding ids
// themselves unless reachable from another start, in declaration order.
func (g *Graph) Descendants(ids ...string) []string {
	return g.reach(g.succs, ids)
}

// Ancestors returns every node from which any of ids is reachable.
func (g *Graph) Ancestors(ids ...string) []string {
	return g.reach(g.preds, ids)
}

func (g *Graph) reach(adj map[string][]string, starts []string) []string {
	visited := make(map[string]bool)
	stack := append([]string(nil), starts...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	var out []string
	for _, n := range g.nodes {
		if visited[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// WithNode returns a new graph with n added, or replacing the node with the
// same id.
func (g *Graph) WithNode(n Node) (*Graph, error) {
	nodes := g.Nodes()
	if i, ok := g.index[n.ID]; ok {
		nodes[i] = n
	} else {
		nodes = append(nodes, n)
	}
	return Build(nodes, g.explicit)
}

// WithoutNode returns a new graph without id and its explicit edges. It
// fails if another node still references id.
func (g *Graph) WithoutNode(id string) (*Graph, error) {
	if !g.Has(id) {
		return nil, fmt.Errorf("dag: node %q not found", id)
	}
	nodes := make([]Node, 0, len(g.nodes)-1)
	for _, n := range g.nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	edges := make([]Edge, 0, len(g.explicit))
	for _, e := range g.explicit {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	return Build(nodes, edges)
}

// WithEdge returns a new graph with e added. The proposed edge is checked
// for cycles before anything is built.
func (g *Graph) WithEdge(e Edge) (*Graph, error) {
	if WouldCreateCycle(g.edges, e.Source, e.Target) {
		return nil, &CycleError{Path: cyclePathThrough(g.edges, e)}
	}
	return Build(g.nodes, append(append([]Edge(nil), g.explicit...), e))
}

// WithoutEdge returns a new graph without the explicit edge e. Edges implied
// by Upstream, Downstream or template references remain.
func (g *Graph) WithoutEdge(e Edge) (*Graph, error) {
	edges := make([]Edge, 0, len(g.explicit))
	for _, x := range g.explicit {
		if x != e {
			edges = append(edges, x)
		}
	}
	return Build(g.nodes, edges)
}

// Levels groups node ids by dependency depth using Kahn's algorithm. Nodes
// within a level have no edges between them. Within a level ids keep
// declaration order. Levels fails with a CycleError on a cyclic graph.
func (g *Graph) Levels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n.ID] = len(g.preds[n.ID])
	}

	var queue []string
	for _, n := range g.nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, s := range g.succs[id] {
				inDegree[s]--
				if inDegree[s] == 0 {
					next = append(next, s)
				}
			}
		}
		g.sortByDeclaration(next)
		queue = next
	}

	if visited != len(g.nodes) {
		if path := findCycle(g.IDs(), g.succs); path != nil {
			return nil, &CycleError{Path: path}
		}
		return nil, fmt.Errorf("dag: cycle detected, processed %d of %d nodes", visited, len(g.nodes))
	}
	return levels, nil
}

// TopologicalOrder flattens Levels.
func (g *Graph) TopologicalOrder() ([]string, error) {
	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(g.nodes))
	for _, l := range levels {
		order = append(order, l...)
	}
	return order, nil
}
