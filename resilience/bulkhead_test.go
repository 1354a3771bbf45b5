package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "tools", MaxConcurrent: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	if b.InUse() != 1 || b.Available() != 0 {
		t.Errorf("InUse=%d Available=%d", b.InUse(), b.Available())
	}
	close(release)
	<-done
	if b.InUse() != 0 {
		t.Errorf("slot not released, InUse=%d", b.InUse())
	}
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("expected slot after wait, got %v", err)
	}
}

func TestBulkhead_TimesOut(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	if err := b.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})
	got, err := ExecuteWithResult(context.Background(), b, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("got %d, %v", got, err)
	}
}
