package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher_RunsJobs(t *testing.T) {
	d := NewDispatcher(10)
	d.Start(3)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		if !d.Submit(Job{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}}) {
			t.Fatal("expected job to be accepted")
		}
	}
	d.Close()

	if ran.Load() != 10 {
		t.Errorf("expected 10 jobs run, got %d", ran.Load())
	}
}

func TestDispatcher_RetriesThenGivesUp(t *testing.T) {
	d := NewDispatcher(1, WithRetries(2), WithBackoff(time.Millisecond))
	d.Start(1)

	var attempts atomic.Int32
	d.Submit(Job{Name: "flaky", Run: func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("boom")
	}})
	d.Close()

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestDispatcher_RetrySucceeds(t *testing.T) {
	d := NewDispatcher(1, WithRetries(3), WithBackoff(time.Millisecond))
	d.Start(1)

	var attempts atomic.Int32
	d.Submit(Job{Name: "eventually", Run: func(ctx context.Context) error {
		if attempts.Add(1) < 2 {
			return errors.New("not yet")
		}
		return nil
	}})
	d.Close()

	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestDispatcher_JobTimeout(t *testing.T) {
	d := NewDispatcher(1, WithRetries(0), WithJobTimeout(10*time.Millisecond))
	d.Start(1)

	var deadline atomic.Bool
	d.Submit(Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}})
	d.Close()

	if !deadline.Load() {
		t.Error("expected job context to hit its deadline")
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(1)

	// No workers yet, so the second job has nowhere to go
	if !d.Submit(Job{Name: "first", Run: func(ctx context.Context) error { return nil }}) {
		t.Fatal("expected first job accepted")
	}
	if d.Submit(Job{Name: "second", Run: func(ctx context.Context) error { return nil }}) {
		t.Error("expected second job dropped")
	}

	d.Start(1)
	d.Close()
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	d := NewDispatcher(1)
	d.Start(1)
	d.Close()
	d.Close()

	if d.Submit(Job{Name: "late", Run: func(ctx context.Context) error { return nil }}) {
		t.Error("expected job dropped after close")
	}
}
