package runstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/taskflow/dag"
)

// Recorder collects a run's events so the finished run can be saved with
// its trace. Pass Observe in dag.RunOptions.Observers.
type Recorder struct {
	mu     sync.Mutex
	events []dag.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Observe appends ev. It is safe for concurrent use.
func (r *Recorder) Observe(ev dag.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []dag.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dag.Event(nil), r.events...)
}

// Record builds the record for a finished run.
func (r *Recorder) Record(run *dag.Run) (*RunRecord, error) {
	snap := run.Snapshot()
	if !snap.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotTerminal, snap.RunID, snap.Stage)
	}
	created := snap.Started
	if created.IsZero() {
		created = time.Now()
	}
	return &RunRecord{
		ID:        snap.RunID,
		ParentID:  snap.ParentRunID,
		Graph:     dag.DocumentOf(run.Graph()),
		Events:    r.Events(),
		Snapshot:  snap,
		CreatedAt: created.UTC(),
	}, nil
}

// Save waits for run to finish and stores it with the recorded events.
func (r *Recorder) Save(ctx context.Context, store Store, run *dag.Run) (*RunRecord, error) {
	select {
	case <-run.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	rec, err := r.Record(run)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
