package dag

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotPredecessor is returned when an arrival names a node that is not a
// predecessor of the barrier's node.
var ErrNotPredecessor = errors.New("dag: arrival from non-predecessor")

// JoinBarrier holds a node with several predecessors until each of them has
// reported a terminal state. It releases exactly once.
type JoinBarrier struct {
	mu       sync.Mutex
	nodeID   string
	expected map[string]bool
	arrived  map[string]bool
	released bool
}

// NewJoinBarrier creates a barrier for nodeID waiting on preds.
func NewJoinBarrier(nodeID string, preds []string) *JoinBarrier {
	b := &JoinBarrier{
		nodeID:   nodeID,
		expected: make(map[string]bool, len(preds)),
		arrived:  make(map[string]bool, len(preds)),
	}
	for _, p := range preds {
		b.expected[p] = true
	}
	return b
}

// Arrive records pred's completion. It returns true on the single call that
// completes the set. Repeated arrivals from the same predecessor are no-ops.
func (b *JoinBarrier) Arrive(pred string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.expected[pred] {
		return false, fmt.Errorf("%w: %q is not upstream of %q", ErrNotPredecessor, pred, b.nodeID)
	}
	if b.released || b.arrived[pred] {
		return false, nil
	}
	b.arrived[pred] = true
	if len(b.arrived) == len(b.expected) {
		b.released = true
		return true, nil
	}
	return false, nil
}

// Released reports whether the barrier has fired.
func (b *JoinBarrier) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Pending returns the predecessors that have not arrived, sorted.
func (b *JoinBarrier) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for p := range b.expected {
		if !b.arrived[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// joinSet tracks one barrier per join node of a graph. Nodes with a single
// predecessor pass straight through.
type joinSet struct {
	g        *Graph
	barriers map[string]*JoinBarrier
}

func newJoinSet(g *Graph) *joinSet {
	js := &joinSet{g: g, barriers: make(map[string]*JoinBarrier)}
	for _, id := range g.IDs() {
		if preds := g.preds[id]; len(preds) > 1 {
			js.barriers[id] = NewJoinBarrier(id, preds)
		}
	}
	return js
}

// complete reports pred's arrival at succ and whether succ is now ready.
func (js *joinSet) complete(succ, pred string) (bool, error) {
	b, ok := js.barriers[succ]
	if !ok {
		for _, p := range js.g.preds[succ] {
			if p == pred {
				return true, nil
			}
		}
		return false, fmt.Errorf("%w: %q is not upstream of %q", ErrNotPredecessor, pred, succ)
	}
	return b.Arrive(pred)
}
