package provider_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/resilience"
)

func echo() provider.RequestResponse[string, string] {
	return provider.Func("echo", func(_ context.Context, in string) (string, error) {
		return "echo:" + in, nil
	})
}

type orderTracker struct {
	inner provider.RequestResponse[string, string]
	tag   string
	order *[]string
}

func (o *orderTracker) Name() string                         { return o.inner.Name() }
func (o *orderTracker) IsAvailable(ctx context.Context) bool { return o.inner.IsAvailable(ctx) }
func (o *orderTracker) Execute(ctx context.Context, in string) (string, error) {
	*o.order = append(*o.order, o.tag+":before")
	out, err := o.inner.Execute(ctx, in)
	*o.order = append(*o.order, o.tag+":after")
	return out, err
}

func TestFunc(t *testing.T) {
	p := echo()
	if p.Name() != "echo" || !p.IsAvailable(context.Background()) {
		t.Fatalf("unexpected provider %q", p.Name())
	}
	out, err := p.Execute(context.Background(), "hi")
	if err != nil || out != "echo:hi" {
		t.Fatalf("got %q, %v", out, err)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(tag string) provider.Middleware[string, string] {
		return func(inner provider.RequestResponse[string, string]) provider.RequestResponse[string, string] {
			return &orderTracker{inner: inner, tag: tag, order: &order}
		}
	}

	wrapped := provider.Apply(echo(), mw("A"), nil, mw("B"), mw("C"))
	if _, err := wrapped.Execute(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	want := "A:before B:before C:before C:after B:after A:after"
	if got := strings.Join(order, " "); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
}

func TestWithLogging(t *testing.T) {
	var buf strings.Builder
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, &buf, "test")

	failing := provider.Func("broken", func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	wrapped := provider.Apply(failing, provider.WithLogging[string, string](log))
	if _, err := wrapped.Execute(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(buf.String(), "provider execute failed") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("log output missing failure: %s", buf.String())
	}
}

func TestWithTracing(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	wrapped := provider.Apply(echo(), provider.WithTracing[string, string]("taskflow"))
	if _, err := wrapped.Execute(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "taskflow.echo" {
		t.Fatalf("unexpected spans %v", spans)
	}
}

func TestAdapt(t *testing.T) {
	length := provider.Adapt(echo(), "len",
		func(_ context.Context, n int) (string, error) {
			if n < 0 {
				return "", errors.New("negative")
			}
			return strings.Repeat("a", n), nil
		},
		func(out string) (int, error) { return len(out), nil },
	)
	if length.Name() != "len" {
		t.Errorf("name = %q", length.Name())
	}
	got, err := length.Execute(context.Background(), 3)
	if err != nil || got != len("echo:aaa") {
		t.Fatalf("got %d, %v", got, err)
	}
	if _, err := length.Execute(context.Background(), -1); err == nil {
		t.Fatal("expected mapIn error")
	}
}

func TestWithResilienceRetries(t *testing.T) {
	var calls atomic.Int32
	flaky := provider.Func("flaky", func(context.Context, string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	wrapped := provider.WithResilience(flaky, provider.ResilienceConfig{
		Retry: &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	out, err := wrapped.Execute(context.Background(), "x")
	if err != nil || out != "ok" || calls.Load() != 3 {
		t.Fatalf("got %q, %v after %d calls", out, err, calls.Load())
	}
}

func TestWithResilienceEmptyIsPassthrough(t *testing.T) {
	p := echo()
	if provider.WithResilience(p, provider.ResilienceConfig{}) != p {
		t.Error("empty config should return the provider unchanged")
	}
}

func TestCircuitOpenBecomesAppError(t *testing.T) {
	failing := provider.Func("down", func(context.Context, string) (string, error) {
		return "", errors.New("unreachable")
	})
	wrapped := provider.WithResilience(failing, provider.ResilienceConfig{
		CircuitBreaker: &resilience.CircuitBreakerConfig{Name: "down", MaxFailures: 1, Timeout: time.Hour, HalfOpenMaxCalls: 1},
	})
	if _, err := wrapped.Execute(context.Background(), "x"); err == nil {
		t.Fatal("expected first failure")
	}
	_, err := wrapped.Execute(context.Background(), "x")
	appErr, ok := taskerrors.AsAppError(err)
	if !ok || appErr.Code != taskerrors.ErrCodeServiceUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Error("cause should be ErrCircuitOpen")
	}
}

func TestRegistry(t *testing.T) {
	reg := provider.NewRegistry[provider.RequestResponse[string, string]]()
	reg.Register("Echo", func(map[string]any) (provider.RequestResponse[string, string], error) {
		return echo(), nil
	})
	if _, err := reg.Create("echo", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Create("missing", nil); err == nil || !strings.Contains(err.Error(), "echo") {
		t.Fatalf("expected error listing names, got %v", err)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "echo" {
		t.Errorf("names = %v", names)
	}
}

type closer struct {
	provider.RequestResponse[string, string]
	closed bool
}

func (c *closer) Close(context.Context) error { c.closed = true; return nil }

func TestClose(t *testing.T) {
	c := &closer{RequestResponse: echo()}
	if err := provider.Close(context.Background(), c); err != nil || !c.closed {
		t.Fatalf("close: %v closed=%v", err, c.closed)
	}
	if err := provider.Close(context.Background(), echo()); err != nil {
		t.Fatalf("non-closeable: %v", err)
	}
}
