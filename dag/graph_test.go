package dag

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuild_EdgeSources(t *testing.T) {
	g := mustBuild(t, []Node{
		tool("A", nil, "null"),
		{ID: "B", Kind: KindModelCall, Input: map[string]any{"prompt": "summarize {A.output.text}"}, Upstream: []string{"A"}},
		{ID: "C", Kind: KindModelCall, Downstream: []string{"D", "none", ""}},
		tool("D", map[string]any{"q": "{B.output}"}),
	}, e("A", "B"), e("A", "B"))

	want := []Edge{e("A", "B"), e("C", "D"), e("B", "D")}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
	if got := g.Predecessors("D"); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("preds(D) = %v, want declaration order [B C]", got)
	}
	if got := g.Entries(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("entries = %v", got)
	}
	if got := g.Exits(); !reflect.DeepEqual(got, []string{"D"}) {
		t.Errorf("exits = %v", got)
	}
}

func TestBuild_GuardDirectivesCreateEdges(t *testing.T) {
	g := mustBuild(t, []Node{
		{ID: "G1", Kind: KindParamGuard},
		{ID: "G2", Kind: KindParamGuard},
		tool("T", map[string]any{DirectiveFromGuards: []any{"G1", "G2"}}),
	})
	if got := g.Predecessors("T"); !reflect.DeepEqual(got, []string{"G1", "G2"}) {
		t.Errorf("preds(T) = %v", got)
	}
}

func TestGraph_Reachability(t *testing.T) {
	g := chain(t, e("A", "B"), e("B", "C"), e("A", "D"), e("E", "C"))

	if got := g.Descendants("B"); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("descendants(B) = %v", got)
	}
	if got := g.Descendants("A"); !reflect.DeepEqual(got, []string{"B", "C", "D"}) {
		t.Errorf("descendants(A) = %v", got)
	}
	if got := g.Ancestors("C"); !reflect.DeepEqual(got, []string{"A", "B", "E"}) {
		t.Errorf("ancestors(C) = %v", got)
	}
}

func TestGraph_Levels(t *testing.T) {
	g := chain(t, e("A", "B"), e("A", "C"), e("B", "D"), e("C", "D"))
	levels, err := g.Levels()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	for _, ed := range g.Edges() {
		if pos[ed.Source] >= pos[ed.Target] {
			t.Errorf("edge %s out of order in %v", ed, order)
		}
	}
}

func TestGraph_LevelsOnUnvalidatedCycle(t *testing.T) {
	g := NewGraph([]Node{tool("A", nil), tool("B", nil)}, []Edge{e("A", "B"), e("B", "A")})
	_, err := g.Levels()
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestGraph_NodeCopiesAreIndependent(t *testing.T) {
	g := mustBuild(t, []Node{tool("A", map[string]any{"k": "v"})})
	n, _ := g.Node("A")
	n.Input.(map[string]any)["k"] = "changed"

	again, _ := g.Node("A")
	if again.Input.(map[string]any)["k"] != "v" {
		t.Error("mutating a returned node changed the graph")
	}
}

func TestGraph_WithEdgeRejectsCycle(t *testing.T) {
	g := chain(t, e("A", "B"), e("B", "C"))

	_, err := g.WithEdge(e("C", "A"))
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if want := []string{"C", "A", "B", "C"}; !reflect.DeepEqual(cycle.Path, want) {
		t.Errorf("path = %v, want %v", cycle.Path, want)
	}
	if len(g.Edges()) != 2 {
		t.Error("original graph was modified")
	}

	g2, err := g.WithEdge(e("A", "C"))
	if err != nil {
		t.Fatal(err)
	}
	if len(g2.Edges()) != 3 || len(g.Edges()) != 2 {
		t.Errorf("edges: new %d, old %d", len(g2.Edges()), len(g.Edges()))
	}
}

func TestGraph_WithoutEdgeKeepsImpliedEdges(t *testing.T) {
	g := mustBuild(t, []Node{
		tool("A", nil),
		tool("B", map[string]any{"x": "{A.output}"}),
	}, e("A", "B"))

	g2, err := g.WithoutEdge(e("A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if got := g2.Predecessors("B"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("template edge lost: preds(B) = %v", got)
	}
}

func TestGraph_WithAndWithoutNode(t *testing.T) {
	g := chain(t, e("A", "B"))

	g2, err := g.WithNode(tool("C", map[string]any{"x": "{B.output}"}))
	if err != nil {
		t.Fatal(err)
	}
	if g2.Len() != 3 || g.Len() != 2 {
		t.Fatalf("len: new %d, old %d", g2.Len(), g.Len())
	}

	if _, err := g2.WithoutNode("B"); err == nil {
		t.Error("removing a referenced node should fail")
	}
	g3, err := g2.WithoutNode("C")
	if err != nil {
		t.Fatal(err)
	}
	if g3.Has("C") {
		t.Error("C still present")
	}
	if _, err := g3.WithoutNode("missing"); err == nil {
		t.Error("expected error for unknown node")
	}
}
