// Package layout places graph nodes on a grid for rendering. It is a
// presentation helper and plays no part in execution.
package layout

import (
	"sort"

	"github.com/kbukum/taskflow/dag"
)

// Position is one node's place in the layout.
type Position struct {
	ID    string  `json:"id"`
	Layer int     `json:"layer"`
	Order int     `json:"order"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Layout is the result of Layered. Layers run left to right.
type Layout struct {
	Nodes  []Position `json:"nodes"`
	Edges  []dag.Edge `json:"edges"`
	Layers [][]string `json:"layers"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`

	index map[string]int
}

// Position returns the position of id.
func (l *Layout) Position(id string) (Position, bool) {
	i, ok := l.index[id]
	if !ok {
		return Position{}, false
	}
	return l.Nodes[i], true
}

type options struct {
	nodeWidth, nodeHeight float64
	hGap, vGap            float64
	sweeps                int
}

// Option configures Layered.
type Option func(*options)

// WithNodeSize sets the box size of each node.
func WithNodeSize(w, h float64) Option {
	return func(o *options) { o.nodeWidth, o.nodeHeight = w, h }
}

// WithGaps sets the horizontal gap between layers and the vertical gap
// between nodes of a layer.
func WithGaps(h, v float64) Option {
	return func(o *options) { o.hGap, o.vGap = h, v }
}

// WithSweeps sets how many barycenter passes reorder the layers.
func WithSweeps(n int) Option {
	return func(o *options) { o.sweeps = n }
}

// Layered assigns each node to the layer of its longest path from an entry
// node, orders every layer by the barycenter of its neighbours in the
// adjacent layer, and places the layers on a grid.
func Layered(g *dag.Graph, opts ...Option) (*Layout, error) {
	o := options{nodeWidth: 180, nodeHeight: 60, hGap: 80, vGap: 40, sweeps: 4}
	for _, opt := range opts {
		opt(&o)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	decl := make(map[string]int, len(order))
	for i, id := range g.IDs() {
		decl[id] = i
	}

	layerOf := make(map[string]int, len(order))
	depth := 0
	for _, id := range order {
		l := 0
		for _, p := range g.Predecessors(id) {
			if layerOf[p]+1 > l {
				l = layerOf[p] + 1
			}
		}
		layerOf[id] = l
		if l+1 > depth {
			depth = l + 1
		}
	}

	layers := make([][]string, depth)
	for _, id := range g.IDs() {
		layers[layerOf[id]] = append(layers[layerOf[id]], id)
	}

	pos := make(map[string]int, len(order))
	index := func(layer []string) {
		for i, id := range layer {
			pos[id] = i
		}
	}
	for _, layer := range layers {
		index(layer)
	}
	for s := 0; s < o.sweeps; s++ {
		if s%2 == 0 {
			for i := 1; i < len(layers); i++ {
				reorder(layers[i], g.Predecessors, pos, decl)
				index(layers[i])
			}
		} else {
			for i := len(layers) - 2; i >= 0; i-- {
				reorder(layers[i], g.Successors, pos, decl)
				index(layers[i])
			}
		}
	}

	return place(g, layers, o), nil
}

// reorder sorts layer by the mean position of each node's neighbours.
// Nodes without neighbours keep their current position as their key.
func reorder(layer []string, neighbours func(string) []string, pos, decl map[string]int) {
	key := make(map[string]float64, len(layer))
	for _, id := range layer {
		ns := neighbours(id)
		if len(ns) == 0 {
			key[id] = float64(pos[id])
			continue
		}
		sum := 0.0
		for _, n := range ns {
			sum += float64(pos[n])
		}
		key[id] = sum / float64(len(ns))
	}
	sort.SliceStable(layer, func(i, j int) bool {
		a, b := layer[i], layer[j]
		if key[a] != key[b] {
			return key[a] < key[b]
		}
		return decl[a] < decl[b]
	})
}

func place(g *dag.Graph, layers [][]string, o options) *Layout {
	tallest := 0
	for _, layer := range layers {
		if len(layer) > tallest {
			tallest = len(layer)
		}
	}
	colHeight := func(n int) float64 {
		if n == 0 {
			return 0
		}
		return float64(n)*o.nodeHeight + float64(n-1)*o.vGap
	}

	l := &Layout{Edges: g.Edges(), index: make(map[string]int, g.Len())}
	for li, layer := range layers {
		offset := (colHeight(tallest) - colHeight(len(layer))) / 2
		for oi, id := range layer {
			l.index[id] = len(l.Nodes)
			l.Nodes = append(l.Nodes, Position{
				ID:    id,
				Layer: li,
				Order: oi,
				X:     float64(li) * (o.nodeWidth + o.hGap),
				Y:     offset + float64(oi)*(o.nodeHeight+o.vGap),
			})
		}
		l.Layers = append(l.Layers, append([]string(nil), layer...))
	}
	if n := len(layers); n > 0 {
		l.Width = float64(n)*o.nodeWidth + float64(n-1)*o.hGap
	}
	l.Height = colHeight(tallest)
	return l
}

// Crossings counts pairs of edges between adjacent layers that cross.
func Crossings(l *Layout) int {
	var count int
	for i, a := range l.Edges {
		pa, qa := l.Nodes[l.index[a.Source]], l.Nodes[l.index[a.Target]]
		for _, b := range l.Edges[i+1:] {
			pb, qb := l.Nodes[l.index[b.Source]], l.Nodes[l.index[b.Target]]
			if pa.Layer != pb.Layer || qa.Layer != qb.Layer {
				continue
			}
			if (pa.Order-pb.Order)*(qa.Order-qb.Order) < 0 {
				count++
			}
		}
	}
	return count
}
