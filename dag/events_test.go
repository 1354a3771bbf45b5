package dag

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (f *fakeBroadcaster) BroadcastToPattern(pattern string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = map[string][][]byte{}
	}
	f.msgs[pattern] = append(f.msgs[pattern], data)
}

func TestEventBus_OrderAndSequence(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	for i := 0; i < 100; i++ {
		bus.Publish(Event{Kind: EventNodeStarted})
	}
	bus.Close()

	events := collect(sub)
	if len(events) != 100 {
		t.Fatalf("got %d events", len(events))
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) || ev.Time.IsZero() {
			t.Fatalf("event %d: seq=%d", i, ev.Seq)
		}
	}
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	slow := bus.Subscribe() // never read until the end
	fast := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Kind: EventStage})
		}
		bus.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if n := len(collect(fast)); n != 1000 {
		t.Errorf("fast got %d", n)
	}
	if n := len(collect(slow)); n != 1000 {
		t.Errorf("slow got %d", n)
	}
}

func TestEventBus_LateSubscriberAndClose(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(Event{Kind: EventStage, Stage: StageRunning})
	late := bus.Subscribe()
	bus.Publish(Event{Kind: EventStage, Stage: StageCompleted})
	bus.Close()

	events := collect(late)
	if len(events) != 1 || events[0].Stage != StageCompleted || events[0].Seq != 2 {
		t.Errorf("late subscriber got %+v", events)
	}

	after := bus.Subscribe()
	if n := len(collect(after)); n != 0 {
		t.Errorf("subscriber after close got %d", n)
	}
}

func TestSubscription_CloseStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	sub.Close()
	bus.Publish(Event{Kind: EventStage})

	select {
	case _, ok := <-sub.C():
		if ok {
			// A delivered event is allowed only if it raced Close; the
			// channel must still close.
			for range sub.C() {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after Close")
	}
	<-sub.Done()
	bus.Close()
}

func TestSubscription_UndrainedReleasedByClose(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()
	if sub.Done() != sub.Done() {
		t.Error("Done should return the same channel on every call")
	}
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Kind: EventStage})
	}
	bus.Close()

	select {
	case <-sub.Done():
		t.Fatal("done before the undrained events were delivered")
	case <-time.After(20 * time.Millisecond):
	}

	sub.Close()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not release the delivery goroutine")
	}
	for range sub.C() {
	}
}

func TestEventBus_ObserveDone(t *testing.T) {
	bus := NewEventBus()
	var seen []uint64
	sub := bus.Observe(func(ev Event) {
		time.Sleep(time.Millisecond)
		seen = append(seen, ev.Seq)
	})
	for i := 0; i < 10; i++ {
		bus.Publish(Event{})
	}
	bus.Close()
	<-sub.Done()
	if len(seen) != 10 || seen[9] != 10 {
		t.Errorf("observer saw %v", seen)
	}
}

func TestBroadcastTo(t *testing.T) {
	b := &fakeBroadcaster{}
	send := BroadcastTo(b)
	send(Event{RunID: "r1", Seq: 3, Kind: EventNodeCompleted, NodeID: "A", Status: StatusSucceeded})

	msgs := b.msgs[RunTopic("r1")]
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", b.msgs)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["node_id"] != "A" || decoded["kind"] != "node_completed" || decoded["status"] != "succeeded" {
		t.Errorf("payload = %v", decoded)
	}
}
