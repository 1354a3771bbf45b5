package component

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	health   Health
	log      *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	*f.log = append(*f.log, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	*f.log = append(*f.log, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) Health { return f.health }

func (f *fakeComponent) Routes() []Route {
	return []Route{{Method: "GET", Path: "/" + f.name}}
}

func TestRegistry_StartStopOrder(t *testing.T) {
	var log []string
	r := NewRegistry()
	for _, name := range []string{"store", "sse", "http"} {
		if err := r.Register(&fakeComponent{name: name, log: &log}); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Register(&fakeComponent{name: "sse", log: &log}); err == nil {
		t.Error("expected duplicate registration error")
	}

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"start:store", "start:sse", "start:http", "stop:http", "stop:sse", "stop:store"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("order = %v, want %v", log, want)
	}
	if len(r.Routes()) != 3 {
		t.Errorf("routes = %v", r.Routes())
	}
}

func TestRegistry_StartFailureStopsStarted(t *testing.T) {
	var log []string
	r := NewRegistry()
	_ = r.Register(&fakeComponent{name: "store", log: &log})
	_ = r.Register(&fakeComponent{name: "http", startErr: errors.New("port in use"), log: &log})
	_ = r.Register(&fakeComponent{name: "never", log: &log})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	want := []string{"start:store", "start:http", "stop:store"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("order = %v, want %v", log, want)
	}
}

func TestRegistry_StopErrorsJoined(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	r := NewRegistry()
	_ = r.Register(&fakeComponent{name: "a", stopErr: boom, log: &log})
	_ = r.Register(&fakeComponent{name: "b", log: &log})
	_ = r.StartAll(context.Background())

	if err := r.StopAll(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry_HealthAndGet(t *testing.T) {
	var log []string
	r := NewRegistry()
	_ = r.Register(&fakeComponent{name: "sse", health: Health{Name: "sse", Status: StatusHealthy}, log: &log})

	if got := r.HealthAll(context.Background()); len(got) != 1 || got[0].Status != StatusHealthy {
		t.Errorf("health = %v", got)
	}
	if r.Get("sse") == nil || r.Get("missing") != nil {
		t.Error("Get mismatch")
	}
}

type describedComponent struct{ fakeComponent }

func (d *describedComponent) Describe() Description {
	return Description{Type: "store", Details: "sqlite"}
}

func TestRegistry_Descriptions(t *testing.T) {
	var log []string
	r := NewRegistry()
	_ = r.Register(&describedComponent{fakeComponent{name: "runs", log: &log}})
	_ = r.Register(&fakeComponent{name: "http", log: &log})

	want := []Description{
		{Name: "runs", Type: "store", Details: "sqlite"},
		{Name: "http"},
	}
	if got := r.Descriptions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Descriptions() = %+v, want %+v", got, want)
	}
}
