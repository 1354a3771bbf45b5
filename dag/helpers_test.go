package dag

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// --- test helpers ---

func tool(id string, input any, upstream ...string) Node {
	return Node{ID: id, Kind: KindToolCall, Tool: "echo", Input: input, Upstream: upstream}
}

func mustBuild(t *testing.T, nodes []Node, edges ...Edge) *Graph {
	t.Helper()
	g, err := Build(nodes, edges)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func e(source, target string) Edge { return Edge{Source: source, Target: target} }

// chain builds tool nodes from "A->B" style edges. Every node echoes its
// id plus the outputs of its predecessors.
func chain(t *testing.T, edges ...Edge) *Graph {
	t.Helper()
	var nodes []Node
	seen := map[string]bool{}
	for _, ed := range edges {
		for _, id := range []string{ed.Source, ed.Target} {
			if !seen[id] {
				seen[id] = true
				nodes = append(nodes, tool(id, map[string]any{"id": id}))
			}
		}
	}
	return mustBuild(t, nodes, edges...)
}

// recorder is a scripted executor. Behavior is looked up by node id;
// unknown nodes return their id. It records the order nodes started and
// what each saw in its input.
type recorder struct {
	mu       sync.Mutex
	started  []string
	inputs   map[string]any
	behavior map[string]func(ctx context.Context, req ExecRequest) (any, error)
}

func newRecorder() *recorder {
	return &recorder{
		inputs:   map[string]any{},
		behavior: map[string]func(ctx context.Context, req ExecRequest) (any, error){},
	}
}

func (r *recorder) Execute(ctx context.Context, req ExecRequest) (any, error) {
	r.mu.Lock()
	r.started = append(r.started, req.Node.ID)
	r.inputs[req.Node.ID] = req.Input
	fn := r.behavior[req.Node.ID]
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return "out-" + req.Node.ID, nil
}

func (r *recorder) fail(id string) {
	r.behavior[id] = func(context.Context, ExecRequest) (any, error) {
		return nil, fmt.Errorf("%s exploded", id)
	}
}

func (r *recorder) startedNodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func (r *recorder) input(id string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs[id]
}

// scheduler returns a scheduler whose every kind is served by rec.
func scheduler(rec *recorder, opts ...SchedulerOption) *Scheduler {
	d := NewDispatcher(Capabilities{})
	for _, k := range Kinds {
		d.Register(k, rec)
	}
	return NewScheduler(d, opts...)
}

// gate holds executors until released.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 16), release: make(chan struct{})}
}

func (g *gate) hold(ctx context.Context, req ExecRequest) (any, error) {
	g.entered <- req.Node.ID
	select {
	case <-g.release:
		return "out-" + req.Node.ID, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) await(t *testing.T, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		select {
		case id := <-g.entered:
			ids = append(ids, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d executors, got %v", n, ids)
		}
	}
	return ids
}

func collect(sub *Subscription) []Event {
	var events []Event
	for ev := range sub.C() {
		events = append(events, ev)
	}
	return events
}

func statusOf(t *testing.T, sum *Summary, id string) Status {
	t.Helper()
	for _, r := range sum.Nodes {
		if r.ID == id {
			return r.Status
		}
	}
	t.Fatalf("node %s not in summary", id)
	return ""
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
