package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
)

// FailurePolicy decides what happens to a node whose predecessor failed,
// was skipped or was cancelled.
type FailurePolicy string

const (
	// PolicySkip marks the node skipped without running it.
	PolicySkip FailurePolicy = "skip"
	// PolicyFailPropagate marks the node failed with "upstream failed".
	PolicyFailPropagate FailurePolicy = "fail-propagate"
	// PolicyExecuteWithHole runs the node; references to the missing
	// outputs resolve to placeholders.
	PolicyExecuteWithHole FailurePolicy = "execute-with-hole"
)

// FailurePolicies lists every valid policy.
var FailurePolicies = []FailurePolicy{PolicySkip, PolicyFailPropagate, PolicyExecuteWithHole}

// ParseFailurePolicy parses a policy name. Empty means PolicySkip.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFailPropagate, "fail_propagate", "propagate":
		return PolicyFailPropagate, nil
	case PolicyExecuteWithHole, "execute_with_hole", "hole":
		return PolicyExecuteWithHole, nil
	}
	return "", fmt.Errorf("dag: unknown failure policy %q", s)
}

// ErrUpstreamFailed is the node error recorded under PolicyFailPropagate.
var ErrUpstreamFailed = errors.New("upstream failed")

// ErrNoDispatcher is returned by Start when the scheduler has no
// Dispatcher.
var ErrNoDispatcher = errors.New("dag: scheduler has no dispatcher")

// Scheduler runs validated graphs. One Scheduler may run many graphs
// concurrently; each Run has its own state.
type Scheduler struct {
	dispatcher  *Dispatcher
	maxParallel int
	policy      FailurePolicy
	log         *logger.Logger
	metrics     *observability.Metrics
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxParallel caps the number of nodes in flight. Zero is unlimited.
func WithMaxParallel(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxParallel = n }
}

// WithFailurePolicy sets the policy applied to nodes downstream of a
// failure.
func WithFailurePolicy(p FailurePolicy) SchedulerOption {
	return func(s *Scheduler) { s.policy = p }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithRunMetrics records run counts and durations on m.
func WithRunMetrics(m *observability.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a Scheduler dispatching through d.
func NewScheduler(d *Dispatcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{dispatcher: d, policy: PolicySkip}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetGlobalLogger()
	}
	s.log = s.log.WithComponent("scheduler")
	return s
}

// Policy returns the configured failure policy.
func (s *Scheduler) Policy() FailurePolicy { return s.policy }

// RunOptions configures one run.
type RunOptions struct {
	// RunID defaults to a new UUID.
	RunID string
	// Observers receive every event of the run, starting with the first
	// stage event. Wait returns only after they have seen the last one.
	Observers []func(Event)

	replay *replayPlan
}

// NewRunID returns a fresh run id.
func NewRunID() string { return uuid.NewString() }

// Start validates g and begins executing it. Validation failures reject
// the run before any node is dispatched.
func (s *Scheduler) Start(ctx context.Context, g *Graph, opts RunOptions) (*Run, error) {
	if s.dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}

	r := newRun(s, g, opts)
	for _, fn := range opts.Observers {
		r.observers = append(r.observers, r.bus.Observe(fn))
	}
	go r.loop(ctx)
	return r, nil
}

// Execute runs g to completion and returns its summary. The error is
// non-nil only when the run could not start or aborted on a fatal error.
func (s *Scheduler) Execute(ctx context.Context, g *Graph, opts RunOptions) (*Summary, error) {
	r, err := s.Start(ctx, g, opts)
	if err != nil {
		return nil, err
	}
	return r.Wait(context.Background())
}
