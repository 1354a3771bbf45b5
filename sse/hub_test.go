package sse

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case f := <-c.Frames():
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case f := <-c.Frames():
		t.Errorf("unexpected frame %q", f.Data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestClient_NewClient(t *testing.T) {
	a := NewClient("run:abc", WithMetadata("remote", "127.0.0.1"))
	b := NewClient("run:abc")

	if a.Topic() != "run:abc" {
		t.Errorf("expected topic 'run:abc', got %q", a.Topic())
	}
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("expected distinct ids, got %q and %q", a.ID(), b.ID())
	}
	if a.Metadata()["remote"] != "127.0.0.1" {
		t.Errorf("metadata = %v", a.Metadata())
	}
}

func TestClient_Send_OverflowClosesWithError(t *testing.T) {
	c := NewClient("run:abc")
	for i := 0; i < clientBuffer; i++ {
		if !c.Send(Frame{Data: []byte("msg")}) {
			t.Fatalf("send %d failed", i)
		}
	}
	if c.Send(Frame{Event: "run_summary", Data: []byte("last")}) {
		t.Error("expected send to fail when buffer is full")
	}
	if c.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", c.Dropped())
	}
	if c.Send(Frame{Data: []byte("later")}) {
		t.Error("expected send on an overflowed client to fail")
	}

	var frames []Frame
	for f := range c.Frames() {
		frames = append(frames, f)
	}
	if len(frames) != clientBuffer+1 {
		t.Fatalf("got %d frames, want %d", len(frames), clientBuffer+1)
	}
	last := frames[len(frames)-1]
	if last.Event != EventTypeError || !strings.Contains(string(last.Data), `"dropped":1`) {
		t.Errorf("last frame = %s %s, want error frame", last.Event, last.Data)
	}
}

func TestHub_OverflowEndsOnlySlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := NewClient("run:slow")
	other := NewClient("run:other")
	hub.Register(slow)
	hub.Register(other)

	for i := 0; i <= clientBuffer; i++ {
		hub.Publish("run:slow", Frame{Event: "node_completed", Data: []byte("x")})
	}
	hub.Publish("run:other", Frame{Event: "stage", Data: []byte("y")})

	var last Frame
	count := 0
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case f, ok := <-slow.Frames():
			if !ok {
				done = true
				continue
			}
			last = f
			count++
		case <-timeout:
			t.Fatalf("slow client was not closed, read %d frames", count)
		}
	}
	if count != clientBuffer+1 || last.Event != EventTypeError {
		t.Errorf("slow client got %d frames ending in %q", count, last.Event)
	}
	if f := recv(t, other); string(f.Data) != "y" {
		t.Errorf("other client got %q", f.Data)
	}
}

func TestClient_CloseTwice(t *testing.T) {
	c := NewClient("run:abc")
	c.Close()
	c.Close()
	if c.Send(Frame{Data: []byte("late")}) {
		t.Error("send after close must fail")
	}
	if _, open := <-c.Frames(); open {
		t.Error("expected channel to be closed")
	}
}

func TestClient_Filter(t *testing.T) {
	c := NewClient("run:abc", WithFilter(func(f Frame) bool { return f.Event != "skip" }))
	if c.Send(Frame{Event: "skip"}) {
		t.Error("filtered frame was queued")
	}
	if !c.Send(Frame{Event: "keep"}) {
		t.Error("kept frame was not queued")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := NewClient("run:abc")
	hub.Register(c)
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", hub.ClientCount())
	}

	hub.Unregister(c)
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHub_BroadcastByTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	abc := NewClient("run:abc")
	abc2 := NewClient("run:abc")
	xyz := NewClient("run:xyz")
	other := NewClient("graph:abc")
	for _, c := range []*Client{abc, abc2, xyz, other} {
		hub.Register(c)
	}

	hub.BroadcastToPattern("run:abc", []byte("exact"))
	if f := recv(t, abc); string(f.Data) != "exact" {
		t.Errorf("abc got %q", f.Data)
	}
	if f := recv(t, abc2); string(f.Data) != "exact" {
		t.Errorf("abc2 got %q", f.Data)
	}
	expectNone(t, xyz)

	hub.Publish("run:*", Frame{Event: "stage", Data: []byte("all")})
	for _, c := range []*Client{abc, abc2, xyz} {
		if f := recv(t, c); f.Event != "stage" || string(f.Data) != "all" {
			t.Errorf("%s got %+v", c.Topic(), f)
		}
	}
	expectNone(t, other)
}

func TestHub_BadPatternMatchesNothing(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := NewClient("run:abc")
	hub.Register(c)
	hub.BroadcastToPattern("run:[", []byte("x"))
	expectNone(t, c)
}

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	clients := make([]*Client, 10)
	for i := range clients {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			clients[idx] = NewClient("run:" + string(rune('a'+idx)))
			hub.Register(clients[idx])
		}(i)
	}
	wg.Wait()
	if hub.ClientCount() != 10 {
		t.Errorf("expected 10 clients, got %d", hub.ClientCount())
	}
	if len(hub.Topics()) != 10 {
		t.Errorf("topics = %v", hub.Topics())
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.BroadcastToPattern("run:*", []byte("concurrent"))
		}()
	}
	wg.Wait()

	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.Unregister(c)
		}(c)
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHub_StopDoesNotBlockCallers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := NewClient("run:abc")
	hub.Register(c)
	hub.Stop()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.BroadcastToPattern("run:*", []byte("late"))
		hub.Register(NewClient("run:late"))
		hub.Unregister(c)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after Stop")
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Event: "node_completed", Data: []byte("a\nb")}); err != nil {
		t.Fatal(err)
	}
	want := "event: node_completed\ndata: a\ndata: b\n\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	_ = WriteFrame(&buf, Frame{Data: []byte("{}")})
	if buf.String() != "data: {}\n\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	comp := NewComponent("/api/v1/runs/:id/events")
	ctx := context.Background()

	if comp.Name() != "sse" {
		t.Errorf("expected name 'sse', got %q", comp.Name())
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	comp.Hub().Register(NewClient("run:abc"))
	health := comp.Health(ctx)
	if health.Status != "healthy" || !strings.Contains(health.Message, "1 clients") {
		t.Errorf("health = %+v", health)
	}
	if desc := comp.Describe(); desc.Type != "sse" || !strings.Contains(desc.Details, "/events") {
		t.Errorf("describe = %+v", desc)
	}

	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

// readFrames parses SSE frames from r until n frames were read or the
// stream ends.
func readFrames(t *testing.T, r *bufio.Reader, n int) []Frame {
	t.Helper()
	var (
		frames []Frame
		cur    Frame
	)
	for len(frames) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			return frames
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			frames = append(frames, cur)
			cur = Frame{}
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = append(cur.Data, strings.TrimPrefix(line, "data: ")...)
		}
	}
	return frames
}

func TestServeSSE_BacklogSkipLiveAndClose(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	registered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := NewClient("run:r1")
		ServeSSE(hub, w, r, client,
			WithBacklog(func() []Frame {
				close(registered)
				return []Frame{{Event: "stage", Data: []byte(`{"seq":1}`)}}
			}),
			WithSkip(func(f Frame) bool { return string(f.Data) == `{"seq":1}` }),
			WithCloseOn(func(f Frame) bool { return f.Event == "run_summary" }),
		)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}

	<-registered
	hub.Publish("run:r1", Frame{Event: "stage", Data: []byte(`{"seq":1}`)})
	hub.Publish("run:r1", Frame{Event: "node_completed", Data: []byte(`{"seq":2}`)})
	hub.Publish("run:r1", Frame{Event: "run_summary", Data: []byte(`{"seq":3}`)})

	frames := readFrames(t, bufio.NewReader(resp.Body), 5)
	var events []string
	for _, f := range frames {
		events = append(events, f.Event)
	}
	want := "connected,stage,node_completed,run_summary"
	if strings.Join(events, ",") != want {
		t.Errorf("events = %v, want %s", events, want)
	}
}
