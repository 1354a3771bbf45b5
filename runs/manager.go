package runs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/taskflow/dag"
	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/runstore"
	"github.com/kbukum/taskflow/sse"
)

// ErrClosed is returned by Start and Replay after Close.
var ErrClosed = errors.New("runs: manager closed")

// Manager owns the in-flight runs of a process.
type Manager struct {
	sched       *dag.Scheduler
	store       runstore.Store
	broadcaster sse.Broadcaster
	observers   []func(dag.Event)
	log         *logger.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	active   map[string]*Handle
	reserved map[string]bool
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBroadcaster forwards every run event to b.
func WithBroadcaster(b sse.Broadcaster) Option {
	return func(m *Manager) { m.broadcaster = b }
}

// WithObserver adds fn to the observers of every run.
func WithObserver(fn func(dag.Event)) Option {
	return func(m *Manager) { m.observers = append(m.observers, fn) }
}

// WithLogger sets the manager's logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager. Runs live under ctx: cancelling it
// cancels every in-flight run.
func NewManager(ctx context.Context, sched *dag.Scheduler, store runstore.Store, opts ...Option) *Manager {
	base, cancel := context.WithCancel(ctx)
	m := &Manager{
		sched:    sched,
		store:    store,
		base:     base,
		cancel:   cancel,
		active:   make(map[string]*Handle),
		reserved: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.GetGlobalLogger()
	}
	m.log = m.log.WithComponent("runs")
	return m
}

// Handle is an in-flight run together with its recorder.
type Handle struct {
	Run      *dag.Run
	recorder *runstore.Recorder
	saved    chan struct{}
	record   *runstore.RunRecord
	saveErr  error
}

// Events returns the events recorded so far.
func (h *Handle) Events() []dag.Event { return h.recorder.Events() }

// Wait blocks until the run has finished and been saved.
func (h *Handle) Wait(ctx context.Context) (*runstore.RunRecord, error) {
	select {
	case <-h.saved:
		return h.record, h.saveErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start validates g and runs it. An empty runID gets a fresh one; a
// taken one is a conflict.
func (m *Manager) Start(g *dag.Graph, runID string) (*Handle, error) {
	if runID != "" {
		if err := m.reserve(runID); err != nil {
			return nil, err
		}
		defer m.release(runID)
		if _, err := m.store.Load(m.base, runID); err == nil {
			return nil, taskerrors.Conflict("run " + runID + " already exists")
		}
	}
	return m.launch(runID, func(opts dag.RunOptions) (*dag.Run, error) {
		return m.sched.Start(m.base, g, opts)
	})
}

// reserve claims id until release, so concurrent starts with the same id
// cannot both pass the store lookup.
func (m *Manager) reserve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.active[id]; ok || m.reserved[id] {
		return taskerrors.Conflict("run " + id + " already exists")
	}
	m.reserved[id] = true
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.reserved, id)
	m.mu.Unlock()
}

// Replay re-runs the finished run priorID with overrides.
func (m *Manager) Replay(ctx context.Context, priorID string, overrides dag.OverrideMap) (*Handle, error) {
	g, prior, err := m.priorRun(ctx, priorID)
	if err != nil {
		return nil, err
	}
	return m.launch("", func(opts dag.RunOptions) (*dag.Run, error) {
		return m.sched.Replay(m.base, g, prior, overrides, opts)
	})
}

// priorRun returns the graph and final snapshot of a finished run.
func (m *Manager) priorRun(ctx context.Context, id string) (*dag.Graph, dag.Snapshot, error) {
	if h, ok := m.Active(id); ok {
		snap := h.Run.Snapshot()
		if !snap.Terminal() {
			return nil, dag.Snapshot{}, taskerrors.RunNotReplayable(id, string(snap.Stage))
		}
		return h.Run.Graph(), snap, nil
	}
	rec, err := m.Record(ctx, id)
	if err != nil {
		return nil, dag.Snapshot{}, err
	}
	g, err := rec.Graph.Graph()
	if err != nil {
		return nil, dag.Snapshot{}, err
	}
	return g, rec.Snapshot, nil
}

func (m *Manager) launch(runID string, start func(dag.RunOptions) (*dag.Run, error)) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.active[runID]; ok {
		return nil, taskerrors.Conflict("run " + runID + " already exists")
	}

	h := &Handle{recorder: runstore.NewRecorder(), saved: make(chan struct{})}
	opts := dag.RunOptions{RunID: runID, Observers: []func(dag.Event){h.recorder.Observe}}
	if m.broadcaster != nil {
		opts.Observers = append(opts.Observers, dag.BroadcastTo(m.broadcaster))
	}
	opts.Observers = append(opts.Observers, m.observers...)
	run, err := start(opts)
	if err != nil {
		return nil, err
	}
	h.Run = run
	m.active[run.ID()] = h

	m.wg.Add(1)
	go m.persist(h)
	return h, nil
}

// persist waits for the run, saves it and drops it from the active set.
// The save is not bound to the manager context so cancelled runs are
// stored too.
func (m *Manager) persist(h *Handle) {
	defer m.wg.Done()
	defer close(h.saved)

	<-h.Run.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h.record, h.saveErr = h.recorder.Save(ctx, m.store, h.Run)
	fields := map[string]interface{}{logger.FieldRunID: h.Run.ID()}
	if h.saveErr != nil {
		m.log.Error("run not saved", logger.MergeWithError(fields, h.saveErr))
	} else {
		fields["result"] = string(h.record.Summary().Result())
		m.log.Info("run saved", fields)
	}

	m.mu.Lock()
	delete(m.active, h.Run.ID())
	m.mu.Unlock()
}

// Active returns the in-flight run with id, if any.
func (m *Manager) Active(id string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.active[id]
	return h, ok
}

// ActiveCount returns the number of runs not yet saved.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Record returns the finished record for id. It returns (nil, nil) while
// the run is still in flight and RUN_NOT_FOUND when it is unknown.
func (m *Manager) Record(ctx context.Context, id string) (*runstore.RunRecord, error) {
	if h, ok := m.Active(id); ok {
		select {
		case <-h.saved:
			return h.record, h.saveErr
		default:
			return nil, nil
		}
	}
	rec, err := m.store.Load(ctx, id)
	if errors.Is(err, runstore.ErrNotFound) {
		return nil, taskerrors.RunNotFound(id).WithCause(err)
	}
	return rec, err
}

// View is what callers see of a run, in flight or stored.
type View struct {
	ID       string        `json:"id"`
	Active   bool          `json:"active"`
	Snapshot dag.Snapshot  `json:"snapshot"`
	Summary  *dag.Summary  `json:"summary,omitempty"`
	Result   dag.Result    `json:"result,omitempty"`
	Graph    *dag.Document `json:"graph,omitempty"`
}

// Get returns the current view of run id.
func (m *Manager) Get(ctx context.Context, id string) (*View, error) {
	if h, ok := m.Active(id); ok {
		snap := h.Run.Snapshot()
		v := &View{ID: id, Active: true, Snapshot: snap, Graph: dag.DocumentOf(h.Run.Graph())}
		if snap.Terminal() {
			v.Summary = dag.Summarize(snap)
			v.Result = v.Summary.Result()
		}
		return v, nil
	}
	rec, err := m.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := rec.Summary()
	return &View{ID: id, Snapshot: rec.Snapshot, Summary: sum, Result: sum.Result(), Graph: rec.Graph}, nil
}

// Graph returns the graph of run id.
func (m *Manager) Graph(ctx context.Context, id string) (*dag.Graph, error) {
	if h, ok := m.Active(id); ok {
		return h.Run.Graph(), nil
	}
	rec, err := m.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Graph.Graph()
}

// Events returns the events of run id so far and whether the run is
// still producing more.
func (m *Manager) Events(ctx context.Context, id string) ([]dag.Event, bool, error) {
	if h, ok := m.Active(id); ok {
		select {
		case <-h.saved:
			return h.Events(), false, nil
		default:
			return h.Events(), true, nil
		}
	}
	rec, err := m.Record(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return rec.Events, false, nil
}

// Cancel stops the in-flight run id. Finished runs are a conflict.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if h, ok := m.Active(id); ok && !h.Run.Stage().Terminal() {
		h.Run.Cancel()
		m.log.Info("run cancel requested", map[string]interface{}{logger.FieldRunID: id})
		return nil
	}
	if _, err := m.Record(ctx, id); err != nil {
		return err
	}
	return taskerrors.Conflict("run " + id + " has already finished")
}

// List returns in-flight runs followed by stored runs, newest first.
func (m *Manager) List(ctx context.Context) ([]runstore.Info, error) {
	m.mu.RLock()
	infos := make([]runstore.Info, 0, len(m.active))
	seen := make(map[string]bool, len(m.active))
	for id, h := range m.active {
		snap := h.Run.Snapshot()
		infos = append(infos, runstore.Info{
			ID:        id,
			ParentID:  snap.ParentRunID,
			Stage:     snap.Stage,
			Nodes:     len(snap.Nodes),
			CreatedAt: snap.Started,
		})
		seen[id] = true
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })

	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range stored {
		if !seen[info.ID] {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Close cancels every in-flight run and waits until each has been saved
// or ctx ends.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the manager, then its store.
func (m *Manager) Shutdown(ctx context.Context) error {
	closeErr := m.Close(ctx)
	return errors.Join(closeErr, m.store.Close())
}
