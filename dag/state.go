package dag

import (
	"sync"
	"time"
)

// Status is a node's lifecycle state within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Stage is the run's lifecycle state.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageRunning   Stage = "running"
	StageCompleted Stage = "completed"
	StageCancelled Stage = "cancelled"
	StageFailed    Stage = "failed"
)

// Terminal reports whether s is final.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageFailed
}

// NodeRecord is everything a run knows about one node.
type NodeRecord struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Status   Status    `json:"status"`
	Input    any       `json:"input,omitempty"`
	Output   any       `json:"output,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
	// Copied is set on replay for records taken verbatim from the prior run.
	Copied bool `json:"copied,omitempty"`
}

// Duration returns the execution time, or zero if the node never ran.
func (r NodeRecord) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Snapshot is a point-in-time copy of a run's state.
type Snapshot struct {
	RunID       string       `json:"run_id"`
	ParentRunID string       `json:"parent_run_id,omitempty"`
	Stage       Stage        `json:"stage"`
	Started     time.Time    `json:"started,omitzero"`
	Finished    time.Time    `json:"finished,omitzero"`
	Error       string       `json:"error,omitempty"`
	Nodes       []NodeRecord `json:"nodes"`
}

// Node returns the record for id.
func (s Snapshot) Node(id string) (NodeRecord, bool) {
	for _, r := range s.Nodes {
		if r.ID == id {
			return r, true
		}
	}
	return NodeRecord{}, false
}

// Outputs returns the outputs of succeeded nodes.
func (s Snapshot) Outputs() map[string]any {
	out := make(map[string]any)
	for _, r := range s.Nodes {
		if r.Status == StatusSucceeded {
			out[r.ID] = r.Output
		}
	}
	return out
}

// Terminal reports whether the run has finished.
func (s Snapshot) Terminal() bool { return s.Stage.Terminal() }

// Summary is the final report of a run.
type Summary struct {
	RunID     string         `json:"run_id"`
	Stage     Stage          `json:"stage"`
	Outputs   map[string]any `json:"outputs"`
	Failed    []string       `json:"failed,omitempty"`
	Skipped   []string       `json:"skipped,omitempty"`
	Cancelled []string       `json:"cancelled,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	Error     string         `json:"error,omitempty"`
	Nodes     []NodeRecord   `json:"nodes"`
}

// Result classifies a finished run.
type Result string

const (
	ResultSuccess Result = "success"
	ResultPartial Result = "partial"
	ResultFailure Result = "failure"
)

// Result reports success when every node succeeded, failure when none
// did or the run aborted, and partial otherwise.
func (s *Summary) Result() Result {
	succeeded := 0
	for _, r := range s.Nodes {
		if r.Status == StatusSucceeded {
			succeeded++
		}
	}
	switch {
	case s.Error != "" || (succeeded == 0 && len(s.Nodes) > 0):
		return ResultFailure
	case succeeded == len(s.Nodes):
		return ResultSuccess
	default:
		return ResultPartial
	}
}

// Summarize builds a Summary from a terminal snapshot. A run that failed
// on a fatal error reports no outputs.
func Summarize(s Snapshot) *Summary {
	sum := &Summary{
		RunID:   s.RunID,
		Stage:   s.Stage,
		Outputs: make(map[string]any),
		Error:   s.Error,
		Nodes:   s.Nodes,
	}
	if !s.Started.IsZero() && !s.Finished.IsZero() {
		sum.Duration = s.Finished.Sub(s.Started)
	}
	fatal := s.Stage == StageFailed && s.Error != ""
	for _, r := range s.Nodes {
		switch r.Status {
		case StatusSucceeded:
			if !fatal {
				sum.Outputs[r.ID] = r.Output
			}
		case StatusFailed:
			sum.Failed = append(sum.Failed, r.ID)
		case StatusSkipped:
			sum.Skipped = append(sum.Skipped, r.ID)
		case StatusCancelled:
			sum.Cancelled = append(sum.Cancelled, r.ID)
		}
	}
	return sum
}

// runState is the Run State of one run. The scheduler loop is the only
// writer; readers take snapshots.
type runState struct {
	mu       sync.RWMutex
	runID    string
	parent   string
	stage    Stage
	order    []string
	nodes    map[string]*NodeRecord
	started  time.Time
	finished time.Time
	err      error
}

func newRunState(runID string, g *Graph) *runState {
	s := &runState{
		runID: runID,
		stage: StageIdle,
		order: g.IDs(),
		nodes: make(map[string]*NodeRecord, g.Len()),
	}
	for _, n := range g.nodes {
		s.nodes[n.ID] = &NodeRecord{ID: n.ID, Kind: n.Kind, Status: StatusPending}
	}
	return s
}

func (s *runState) update(id string, fn func(r *NodeRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.nodes[id]; ok {
		fn(r)
	}
}

func (s *runState) record(id string) NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.nodes[id]
}

func (s *runState) setStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	switch {
	case stage == StageRunning && s.started.IsZero():
		s.started = time.Now()
	case stage.Terminal():
		s.finished = time.Now()
	}
}

func (s *runState) getStage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// outputs returns succeeded outputs for template resolution.
func (s *runState) outputs() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.nodes))
	for id, r := range s.nodes {
		if r.Status == StatusSucceeded {
			out[id] = r.Output
		}
	}
	return out
}

func (s *runState) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		RunID:       s.runID,
		ParentRunID: s.parent,
		Stage:       s.stage,
		Started:     s.started,
		Finished:    s.finished,
		Nodes:       make([]NodeRecord, 0, len(s.order)),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	seen := make(map[string]bool, len(s.order))
	for _, id := range s.order {
		if seen[id] {
			continue
		}
		seen[id] = true
		r := *s.nodes[id]
		r.Input = cloneValue(r.Input)
		r.Output = cloneValue(r.Output)
		snap.Nodes = append(snap.Nodes, r)
	}
	return snap
}
