package dag

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRunNotFinished rejects a replay of a run that is still going.
	ErrRunNotFinished = errors.New("dag: prior run has not finished")
	// ErrUnknownOverride rejects an override for an id not in the graph.
	ErrUnknownOverride = errors.New("dag: override for unknown node")
	// ErrNoPriorOutput rejects an override that consumes a node the prior
	// run left without output, unless holes are allowed.
	ErrNoPriorOutput = errors.New("dag: override references a node without prior output")
)

// OverrideMap maps node ids to replacement input templates for one replay.
type OverrideMap map[string]any

type replayPlan struct {
	prior     Snapshot
	affected  map[string]bool
	overrides OverrideMap
}

func (p *replayPlan) override(id string) (any, bool) {
	if p == nil {
		return nil, false
	}
	tmpl, ok := p.overrides[id]
	return cloneValue(tmpl), ok
}

func (p *replayPlan) runs(id string) bool {
	return p == nil || p.affected[id]
}

// AffectedSet returns the overridden ids plus all their descendants, in
// declaration order.
func AffectedSet(g *Graph, overrides OverrideMap) []string {
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, id := range g.Descendants(ids...) {
		set[id] = true
	}
	var out []string
	for _, id := range g.IDs() {
		if set[id] {
			out = append(out, id)
			delete(set, id)
		}
	}
	return out
}

// CheckOverrides validates an override map against g without running
// anything.
func CheckOverrides(g *Graph, overrides OverrideMap) error {
	for _, id := range sortedOverrideIDs(overrides) {
		n, ok := g.Node(id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOverride, id)
		}
		ancestors := make(map[string]bool)
		for _, a := range g.Ancestors(id) {
			ancestors[a] = true
		}
		n.Input = overrides[id]
		for _, ref := range n.References() {
			if !ancestors[ref] {
				return &UnknownReferenceError{NodeID: id, Ref: ref}
			}
		}
	}
	return nil
}

func sortedOverrideIDs(overrides OverrideMap) []string {
	return sortedKeys(map[string]any(overrides))
}

// Replay re-executes the part of g affected by overrides. Every other
// node's record is copied from prior and counts as succeeded for barriers,
// whatever its prior status.
func Replay(ctx context.Context, sched *Scheduler, g *Graph, prior Snapshot, overrides OverrideMap) (*Run, error) {
	return sched.Replay(ctx, g, prior, overrides, RunOptions{})
}

// Replay starts a replay run of g against prior. Only re-executed nodes
// emit node events; the summary covers every node.
func (s *Scheduler) Replay(ctx context.Context, g *Graph, prior Snapshot, overrides OverrideMap, opts RunOptions) (*Run, error) {
	if !prior.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotFinished, prior.RunID, prior.Stage)
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	if err := CheckOverrides(g, overrides); err != nil {
		return nil, err
	}

	plan := &replayPlan{prior: prior, affected: make(map[string]bool), overrides: overrides}
	for _, id := range AffectedSet(g, overrides) {
		plan.affected[id] = true
	}
	for _, id := range g.IDs() {
		if plan.affected[id] {
			continue
		}
		if _, ok := prior.Node(id); !ok {
			return nil, fmt.Errorf("dag: prior run %s has no record for node %q", prior.RunID, id)
		}
	}
	if s.policy != PolicyExecuteWithHole {
		for _, id := range sortedOverrideIDs(overrides) {
			if refs := plan.missingRefs(g, id); len(refs) > 0 {
				rec, _ := prior.Node(refs[0])
				return nil, fmt.Errorf("%w: %q uses %q, which was %s in %s", ErrNoPriorOutput, id, refs[0], rec.Status, prior.RunID)
			}
		}
	}
	opts.replay = plan
	return s.Start(ctx, g, opts)
}

// missingRefs lists the unaffected nodes id consumes that have no output in
// the prior run.
func (p *replayPlan) missingRefs(g *Graph, id string) []string {
	n, _ := g.Node(id)
	if tmpl, ok := p.overrides[id]; ok {
		n.Input = tmpl
	}
	var out []string
	for _, ref := range n.References() {
		if p.affected[ref] {
			continue
		}
		if rec, _ := p.prior.Node(ref); rec.Status != StatusSucceeded {
			out = append(out, ref)
		}
	}
	return out
}

// seedReplay copies unaffected records from the prior run and releases
// them to the barriers of affected successors as succeeded. An affected
// node that consumes a copied node without output is handled by the
// failure policy instead.
func (r *Run) seedReplay(ls *loopState) {
	var copied []NodeRecord
	for _, id := range r.g.IDs() {
		if r.replay.affected[id] {
			continue
		}
		prev, _ := r.replay.prior.Node(id)
		prev.Copied = true
		prev.Input = cloneValue(prev.Input)
		prev.Output = cloneValue(prev.Output)
		r.state.update(id, func(rec *NodeRecord) { *rec = prev })
		copied = append(copied, prev)
	}
	r.log.Debug("replay seeded", map[string]interface{}{"copied": len(copied), "affected": len(r.replay.affected)})

	for _, id := range r.g.IDs() {
		if r.replay.affected[id] && len(r.replay.missingRefs(r.g, id)) > 0 {
			ls.upstreamBad[id] = true
		}
	}
	for _, rec := range copied {
		r.settle(ls, rec.ID, StatusSucceeded)
	}
	for _, id := range r.g.IDs() {
		if r.replay.affected[id] && len(r.g.preds[id]) == 0 {
			r.becomeReady(ls, id)
		}
	}
}
