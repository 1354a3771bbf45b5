package dag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
)

// Run is one execution of a graph. All state changes happen on the run's
// loop goroutine; workers report completions back to it over a channel.
type Run struct {
	id    string
	g     *Graph
	sched *Scheduler
	state *runState
	bus   *EventBus
	log   *logger.Logger

	replay    *replayPlan
	observers []*Subscription

	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	summary *Summary
	err     error
}

type completion struct {
	id      string
	outcome Outcome
}

func newRun(s *Scheduler, g *Graph, opts RunOptions) *Run {
	r := &Run{
		id:       opts.RunID,
		g:        g,
		sched:    s,
		state:    newRunState(opts.RunID, g),
		bus:      NewEventBus(),
		log:      s.log.WithFields(map[string]interface{}{logger.FieldRunID: opts.RunID}),
		replay:   opts.replay,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if r.replay != nil {
		r.state.parent = r.replay.prior.RunID
	}
	return r
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Graph returns the graph being run.
func (r *Run) Graph() *Graph { return r.g }

// Stage returns the current stage.
func (r *Run) Stage() Stage { return r.state.getStage() }

// Snapshot returns a copy of the current Run State.
func (r *Run) Snapshot() Snapshot { return r.state.snapshot() }

// Subscribe returns a subscription to events published from now on. After
// the run has finished the subscription is already closed. Drain C or call
// Close on the subscription.
func (r *Run) Subscribe() *Subscription { return r.bus.Subscribe() }

// Cancel stops dispatching. Pending nodes become cancelled; nodes already
// running finish and keep their results.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Done closes when the run is finished and observers have drained.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx ends. The error is non-nil
// only for a fatal run error or ctx expiry.
func (r *Run) Wait(ctx context.Context) (*Summary, error) {
	select {
	case <-r.done:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Run) emit(e Event) {
	e.RunID = r.id
	r.bus.Publish(e)
}

func (r *Run) emitStage(stage Stage) {
	r.state.setStage(stage)
	r.emit(Event{Kind: EventStage, Stage: stage})
}

func (r *Run) emitNode(kind EventKind, id string) {
	rec := r.state.record(id)
	e := Event{
		Kind:     kind,
		NodeID:   id,
		NodeKind: rec.Kind,
		Status:   rec.Status,
		Input:    cloneValue(rec.Input),
		Output:   cloneValue(rec.Output),
		Error:    rec.Error,
	}
	if kind == EventNodeCompleted {
		e.DurationMs = rec.Duration().Milliseconds()
	}
	r.emit(e)
}

// loopState is owned by the loop goroutine.
type loopState struct {
	joins       *joinSet
	ready       []string
	inflight    int
	upstreamBad map[string]bool
	cancelled   bool
	fatal       error
	completions chan completion
}

func (r *Run) loop(ctx context.Context) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, r.id)
	defer span.End()

	runLog := r.log.WithContext(ctx)
	runLog.Info("run started", map[string]interface{}{
		"nodes":        r.g.Len(),
		"max_parallel": r.sched.maxParallel,
		"policy":       string(r.sched.policy),
		"replay":       r.replay != nil,
	})

	ls := &loopState{
		joins:       newJoinSet(r.g),
		upstreamBad: make(map[string]bool),
		completions: make(chan completion, r.g.Len()),
	}
	r.emitStage(StageRunning)

	if r.replay != nil {
		r.seedReplay(ls)
	} else {
		for _, id := range r.g.Entries() {
			r.becomeReady(ls, id)
		}
	}
	r.launch(ctx, ls)

	cancelCh := r.cancelCh
	ctxDone := ctx.Done()
	for ls.inflight > 0 || (len(ls.ready) > 0 && ls.fatal == nil && !ls.cancelled) {
		select {
		case c := <-ls.completions:
			ls.inflight--
			// A cancel that raced the completion wins, so nothing new starts.
			select {
			case <-cancelCh:
				cancelCh = nil
				r.cancelPending(ls)
			default:
			}
			if ctxDone != nil && ctx.Err() != nil {
				ctxDone = nil
				r.cancelPending(ls)
			}
			r.complete(ls, c)
		case <-cancelCh:
			cancelCh = nil
			r.cancelPending(ls)
		case <-ctxDone:
			ctxDone = nil
			r.cancelPending(ls)
		}
		r.launch(ctx, ls)
	}

	stage := StageCompleted
	switch {
	case ls.fatal != nil:
		stage = StageFailed
		r.state.mu.Lock()
		r.state.err = ls.fatal
		r.state.mu.Unlock()
		r.cancelRemaining(ls)
	case ls.cancelled:
		stage = StageCancelled
		r.cancelRemaining(ls)
	default:
		r.cancelRemaining(ls)
	}
	r.emitStage(stage)

	r.summary = Summarize(r.state.snapshot())
	r.err = ls.fatal
	r.emit(Event{Kind: EventRunSummary, Stage: stage, Summary: r.summary})
	r.bus.Close()

	if r.sched.metrics != nil {
		r.sched.metrics.RecordRun(ctx, string(stage), time.Since(start))
	}
	fields := map[string]interface{}{
		logger.FieldStage: string(stage),
		"failed":          len(r.summary.Failed),
		"skipped":         len(r.summary.Skipped),
		"cancelled":       len(r.summary.Cancelled),
	}
	if ls.fatal != nil {
		observability.SetSpanError(ctx, ls.fatal)
		runLog.Error("run aborted", logger.MergeWithError(logger.MergeWithDuration(fields, time.Since(start)), ls.fatal))
	} else {
		runLog.Info("run finished", logger.MergeWithDuration(fields, time.Since(start)))
	}

	for _, sub := range r.observers {
		<-sub.Done()
	}
	close(r.done)
}

// becomeReady is called once per node, when its last predecessor has
// reported (or immediately for entry nodes).
func (r *Run) becomeReady(ls *loopState, id string) {
	if ls.cancelled || ls.fatal != nil {
		return
	}
	if ls.upstreamBad[id] {
		switch r.sched.policy {
		case PolicyFailPropagate:
			r.finishWithoutRun(ls, id, StatusFailed, ErrUpstreamFailed.Error())
			return
		case PolicyExecuteWithHole:
		default:
			r.finishWithoutRun(ls, id, StatusSkipped, "")
			return
		}
	}
	ls.ready = append(ls.ready, id)
}

func (r *Run) finishWithoutRun(ls *loopState, id string, status Status, msg string) {
	r.state.update(id, func(rec *NodeRecord) {
		rec.Status = status
		rec.Error = msg
	})
	r.log.Debug("node not run", map[string]interface{}{logger.FieldNodeID: id, logger.FieldStatus: string(status)})
	r.emitNode(EventNodeCompleted, id)
	r.settle(ls, id, status)
}

// settle reports id's terminal status to each successor's barrier.
func (r *Run) settle(ls *loopState, id string, status Status) {
	for _, succ := range r.g.succs[id] {
		if !r.replay.runs(succ) {
			continue
		}
		if status != StatusSucceeded {
			ls.upstreamBad[succ] = true
		}
		released, err := ls.joins.complete(succ, id)
		if err != nil {
			ls.fatal = err
			return
		}
		if released {
			r.becomeReady(ls, succ)
		}
	}
}

func (r *Run) launch(ctx context.Context, ls *loopState) {
	limit := r.sched.maxParallel
	for len(ls.ready) > 0 && ls.fatal == nil && !ls.cancelled && (limit <= 0 || ls.inflight < limit) {
		id := ls.ready[0]
		ls.ready = ls.ready[1:]
		r.dispatch(ctx, ls, id)
	}
}

func (r *Run) dispatch(ctx context.Context, ls *loopState, id string) {
	node, _ := r.g.Node(id)
	if tmpl, ok := r.replay.override(id); ok {
		node.Input = tmpl
	}

	// Overrides may consume any ancestor, not only a predecessor.
	var holes map[string]bool
	if r.sched.policy == PolicyExecuteWithHole {
		for _, ref := range node.References() {
			if r.state.record(ref).Status != StatusSucceeded {
				if holes == nil {
					holes = make(map[string]bool)
				}
				holes[ref] = true
			}
		}
	}

	input, err := resolveInput(node, r.state.outputs(), holes)
	if err != nil {
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			ls.fatal = err
			r.state.update(id, func(rec *NodeRecord) {
				rec.Status = StatusFailed
				rec.Error = err.Error()
			})
			r.emitNode(EventNodeCompleted, id)
			return
		}
		r.log.Warn("node input resolution failed", map[string]interface{}{logger.FieldNodeID: id, logger.FieldError: err.Error()})
		r.finishWithoutRun(ls, id, StatusFailed, err.Error())
		return
	}

	r.state.update(id, func(rec *NodeRecord) {
		rec.Status = StatusRunning
		rec.Input = input
		rec.Started = time.Now()
	})
	r.emitNode(EventNodeStarted, id)
	r.log.Debug("node dispatched", map[string]interface{}{logger.FieldNodeID: id, logger.FieldNodeKind: string(node.Kind)})

	ls.inflight++
	req := ExecRequest{RunID: r.id, Node: node, Input: cloneValue(input)}
	go func() {
		ls.completions <- completion{id: id, outcome: r.sched.dispatcher.Dispatch(ctx, req)}
	}()
}

func (r *Run) complete(ls *loopState, c completion) {
	status := StatusSucceeded
	if c.outcome.Err != nil {
		status = StatusFailed
	}
	r.state.update(c.id, func(rec *NodeRecord) {
		rec.Status = status
		rec.Started = c.outcome.Started
		rec.Finished = c.outcome.Finished
		if c.outcome.Err != nil {
			rec.Error = c.outcome.Err.Error()
		} else {
			rec.Output = c.outcome.Output
		}
	})

	fields := map[string]interface{}{logger.FieldNodeID: c.id}
	fields = logger.MergeWithDuration(fields, c.outcome.Duration())
	if c.outcome.Err != nil {
		r.log.Warn("node failed", logger.MergeWithError(fields, c.outcome.Err))
	} else {
		r.log.Debug("node succeeded", fields)
	}
	r.emitNode(EventNodeCompleted, c.id)
	r.settle(ls, c.id, status)
}

// cancelPending marks every node that has not started as cancelled.
func (r *Run) cancelPending(ls *loopState) {
	if ls.cancelled {
		return
	}
	ls.cancelled = true
	ls.ready = nil
	r.log.Info("run cancel requested", map[string]interface{}{"in_flight": ls.inflight})
	for _, id := range r.g.IDs() {
		if r.state.record(id).Status == StatusPending {
			r.state.update(id, func(rec *NodeRecord) { rec.Status = StatusCancelled })
			r.emitNode(EventNodeCompleted, id)
		}
	}
}

// cancelRemaining closes out nodes that can no longer run after an abort.
func (r *Run) cancelRemaining(ls *loopState) {
	for _, id := range r.g.IDs() {
		if !r.state.record(id).Status.Terminal() {
			r.state.update(id, func(rec *NodeRecord) { rec.Status = StatusCancelled })
			r.emitNode(EventNodeCompleted, id)
		}
	}
}
