package dag

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
)

// replayGraph is {A->B->C, A->D}; B and C consume their predecessor.
func replayGraph(t *testing.T) *Graph {
	return mustBuild(t, []Node{
		tool("A", map[string]any{"q": "seed"}),
		tool("B", map[string]any{"from": "{A.output}", "mode": "v1"}),
		tool("C", map[string]any{"from": "{B.output}"}),
		tool("D", map[string]any{"from": "{A.output}"}),
	})
}

func TestAffectedSet(t *testing.T) {
	g := replayGraph(t)
	if got := AffectedSet(g, OverrideMap{"B": nil}); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("affected(B) = %v", got)
	}
	if got := AffectedSet(g, OverrideMap{"A": nil}); !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) {
		t.Errorf("affected(A) = %v", got)
	}
	if got := AffectedSet(g, nil); len(got) != 0 {
		t.Errorf("affected(nil) = %v", got)
	}
}

func TestReplay_ReExecutesOnlyAffectedNodes(t *testing.T) {
	g := replayGraph(t)
	first := newRecorder()
	sched := scheduler(first)
	prior, err := sched.Execute(context.Background(), g, RunOptions{RunID: "prior"})
	if err != nil {
		t.Fatal(err)
	}
	priorRun := Snapshot{RunID: prior.RunID, Stage: prior.Stage, Nodes: prior.Nodes}

	second := newRecorder()
	second.behavior["B"] = func(_ context.Context, req ExecRequest) (any, error) {
		return "B-" + req.Input.(map[string]any)["mode"].(string), nil
	}
	sched2 := scheduler(second)

	var events []Event
	run, err := sched2.Replay(context.Background(), g, priorRun,
		OverrideMap{"B": map[string]any{"from": "{A.output}", "mode": "v2"}},
		RunOptions{Observers: []func(Event){func(ev Event) { events = append(events, ev) }}})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := run.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}

	started := second.startedNodes()
	sort.Strings(started)
	if !reflect.DeepEqual(started, []string{"B", "C"}) {
		t.Errorf("re-executed %v, want [B C]", started)
	}
	if got := second.input("B"); !reflect.DeepEqual(got, map[string]any{"from": "out-A", "mode": "v2"}) {
		t.Errorf("B input = %#v", got)
	}
	if got := second.input("C"); !reflect.DeepEqual(got, map[string]any{"from": "B-v2"}) {
		t.Errorf("C input = %#v", got)
	}
	if sum.Outputs["A"] != "out-A" || sum.Outputs["D"] != "out-D" || sum.Outputs["B"] != "B-v2" {
		t.Errorf("outputs = %v", sum.Outputs)
	}

	for _, id := range []string{"A", "D"} {
		now, _ := run.Snapshot().Node(id)
		was, _ := priorRun.Node(id)
		if !now.Copied || now.Output != was.Output || !now.Finished.Equal(was.Finished) {
			t.Errorf("%s not copied verbatim: %+v vs %+v", id, now, was)
		}
	}
	if run.Snapshot().ParentRunID != "prior" {
		t.Errorf("parent = %q", run.Snapshot().ParentRunID)
	}

	for _, ev := range events {
		if ev.NodeID == "A" || ev.NodeID == "D" {
			t.Errorf("event for copied node: %+v", ev)
		}
	}
}

func TestReplay_Rejections(t *testing.T) {
	g := replayGraph(t)
	sched := scheduler(newRecorder())
	done := Snapshot{RunID: "r", Stage: StageCompleted}
	for _, n := range g.Nodes() {
		done.Nodes = append(done.Nodes, NodeRecord{ID: n.ID, Kind: n.Kind, Status: StatusSucceeded, Output: "x"})
	}

	running := done
	running.Stage = StageRunning
	if _, err := Replay(context.Background(), sched, g, running, OverrideMap{"B": nil}); !errors.Is(err, ErrRunNotFinished) {
		t.Errorf("running prior: %v", err)
	}

	if _, err := Replay(context.Background(), sched, g, done, OverrideMap{"Z": nil}); !errors.Is(err, ErrUnknownOverride) {
		t.Errorf("unknown override: %v", err)
	}

	// D is not upstream of B, so B may not consume it.
	_, err := Replay(context.Background(), sched, g, done, OverrideMap{"B": map[string]any{"from": "{D.output}"}})
	var unknown *UnknownReferenceError
	if !errors.As(err, &unknown) || unknown.NodeID != "B" || unknown.Ref != "D" {
		t.Errorf("non-ancestor reference: %v", err)
	}

	partial := done
	partial.Nodes = partial.Nodes[:1]
	if _, err := Replay(context.Background(), sched, g, partial, OverrideMap{"B": nil}); err == nil {
		t.Error("prior without record for D should be rejected")
	}
}

// priorOf builds a finished snapshot from id/status pairs; succeeded
// nodes get "out-<id>" as output.
func priorOf(g *Graph, statuses map[string]Status) Snapshot {
	snap := Snapshot{RunID: "prior", Stage: StageCompleted}
	for _, n := range g.Nodes() {
		rec := NodeRecord{ID: n.ID, Kind: n.Kind, Status: statuses[n.ID]}
		if rec.Status == StatusSucceeded {
			rec.Output = "out-" + n.ID
		}
		snap.Nodes = append(snap.Nodes, rec)
	}
	return snap
}

func TestReplay_FailedUpstreamCountsAsSettled(t *testing.T) {
	g := mustBuild(t, []Node{
		tool("A", map[string]any{"q": "seed"}),
		tool("B", map[string]any{"x": 1}, "A"),
		tool("C", map[string]any{"a": "{A.output}", "b": "{B.output}"}),
	})
	prior := priorOf(g, map[string]Status{"A": StatusFailed, "B": StatusSkipped, "C": StatusSkipped})

	t.Run("skip", func(t *testing.T) {
		rec := newRecorder()
		run, err := scheduler(rec).Replay(context.Background(), g, prior, OverrideMap{"B": map[string]any{"x": 2}}, RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		sum, err := run.Wait(waitCtx(t))
		if err != nil {
			t.Fatal(err)
		}
		if got := rec.startedNodes(); !reflect.DeepEqual(got, []string{"B"}) {
			t.Errorf("started %v, want [B]", got)
		}
		if got := rec.input("B"); !reflect.DeepEqual(got, map[string]any{"x": 2}) {
			t.Errorf("B input = %#v", got)
		}
		// C still consumes A, which has no output.
		if statusOf(t, sum, "B") != StatusSucceeded || statusOf(t, sum, "C") != StatusSkipped {
			t.Errorf("B=%s C=%s", statusOf(t, sum, "B"), statusOf(t, sum, "C"))
		}
		if statusOf(t, sum, "A") != StatusFailed {
			t.Errorf("copied A = %s, want failed", statusOf(t, sum, "A"))
		}
	})

	t.Run("execute-with-hole", func(t *testing.T) {
		rec := newRecorder()
		sched := scheduler(rec, WithFailurePolicy(PolicyExecuteWithHole))
		run, err := sched.Replay(context.Background(), g, prior, OverrideMap{"B": map[string]any{"x": 2}}, RunOptions{})
		if err != nil {
			t.Fatal(err)
		}
		sum, err := run.Wait(waitCtx(t))
		if err != nil {
			t.Fatal(err)
		}
		if got := rec.input("C"); !reflect.DeepEqual(got, map[string]any{"a": nil, "b": "out-B"}) {
			t.Errorf("C input = %#v", got)
		}
		if sum.Stage != StageCompleted {
			t.Errorf("stage = %s", sum.Stage)
		}
	})

	t.Run("override consuming missing output", func(t *testing.T) {
		_, err := scheduler(newRecorder()).Replay(context.Background(), g, prior,
			OverrideMap{"B": map[string]any{"x": "{A.output}"}}, RunOptions{})
		if !errors.Is(err, ErrNoPriorOutput) {
			t.Errorf("err = %v, want ErrNoPriorOutput", err)
		}
	})
}

func TestReplay_OverrideConsumesFailedAncestor(t *testing.T) {
	g := chain(t, e("A", "B"), e("B", "C"))
	prior := priorOf(g, map[string]Status{"A": StatusFailed, "B": StatusSucceeded, "C": StatusSucceeded})

	rec := newRecorder()
	sched := scheduler(rec, WithFailurePolicy(PolicyExecuteWithHole))
	run, err := sched.Replay(context.Background(), g, prior,
		OverrideMap{"C": map[string]any{"x": "{A.output}", "y": "after {A.output}"}}, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := run.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("replay aborted: %v", err)
	}
	if sum.Stage != StageCompleted || statusOf(t, sum, "C") != StatusSucceeded {
		t.Errorf("stage=%s C=%s", sum.Stage, statusOf(t, sum, "C"))
	}
	want := map[string]any{"x": nil, "y": "after {Missing Output: A}"}
	if got := rec.input("C"); !reflect.DeepEqual(got, want) {
		t.Errorf("C input = %#v, want %#v", got, want)
	}
}
