package dag

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/sse"
)

// EventKind names what an Event reports.
type EventKind string

const (
	EventStage         EventKind = "stage"
	EventNodeStarted   EventKind = "node_started"
	EventNodeCompleted EventKind = "node_completed"
	EventRunSummary    EventKind = "run_summary"
)

// Event is one progress notification from a run.
type Event struct {
	Seq        uint64    `json:"seq"`
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Kind       EventKind `json:"kind"`
	Stage      Stage     `json:"stage,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	NodeKind   Kind      `json:"node_kind,omitempty"`
	Status     Status    `json:"status,omitempty"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Summary    *Summary  `json:"summary,omitempty"`
}

// EventBus fans events out to subscribers. Each subscriber has its own
// unbounded FIFO mailbox drained by a goroutine, so Publish never blocks
// on a slow reader.
type EventBus struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Publish stamps e with the next sequence number and queues it for every
// current subscriber. Publishing on a closed bus is a no-op.
func (b *EventBus) Publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return e
	}
	b.seq++
	e.Seq = b.seq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for s := range b.subs {
		s.push(e)
	}
	return e
}

// Subscribe returns a subscription that receives every event published
// from now on. The caller must drain C to its close or call Close;
// otherwise the delivery goroutine and its queue stay alive.
func (b *EventBus) Subscribe() *Subscription {
	s := newSubscription(b)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.finish()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Observe calls fn for each event on its own goroutine, in order. The
// returned subscription's Done channel closes once fn has seen the last
// event.
func (b *EventBus) Observe(fn func(Event)) *Subscription {
	s := b.Subscribe()
	s.observed = make(chan struct{})
	go func() {
		defer close(s.observed)
		for e := range s.C() {
			fn(e)
		}
	}()
	return s
}

// Close delivers what is queued and then closes every subscription.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.finish()
	}
	b.subs = nil
}

func (b *EventBus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Subscription is one subscriber's view of an EventBus.
type Subscription struct {
	bus      *EventBus
	out      chan Event
	mu       sync.Mutex
	queue    []Event
	notify   chan struct{}
	ended    bool
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	observed chan struct{}
}

func newSubscription(b *EventBus) *Subscription {
	s := &Subscription{
		bus:    b,
		out:    make(chan Event),
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// C returns the event channel. It is closed after the bus closes and the
// mailbox drains, or after Close.
func (s *Subscription) C() <-chan Event { return s.out }

// Close stops delivery. Undelivered events are dropped.
func (s *Subscription) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.bus.remove(s)
}

// Done closes when an Observe callback has processed its last event. For
// plain subscriptions it closes with C.
func (s *Subscription) Done() <-chan struct{} {
	if s.observed != nil {
		return s.observed
	}
	return s.done
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.done)
	defer close(s.out)
	defer s.quitOnce.Do(func() { close(s.quit) })
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.notify:
				continue
			case <-s.quit:
				return
			}
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.quit:
			return
		}
	}
}

// BroadcastTo returns an observer that forwards events as JSON to the
// SSE clients subscribed to "run:<id>".
func BroadcastTo(b sse.Broadcaster) func(Event) {
	return func(e Event) {
		data, err := json.Marshal(e)
		if err != nil {
			logger.Warn("event encode failed", logger.ErrorFields("broadcast", err))
			return
		}
		b.BroadcastToPattern(RunTopic(e.RunID), data)
	}
}

// RunTopic is the SSE topic for a run's events.
func RunTopic(runID string) string { return "run:" + runID }
