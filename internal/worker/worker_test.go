package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestWorker_RunJoin(t *testing.T) {
	t.Parallel()

	var ran atomic.Bool
	var notified atomic.Bool
	w := New(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, WithLogger(zaptest.NewLogger(t)), WithOnDone(func(err error) {
		notified.Store(err == nil)
	}))

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Join(); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !ran.Load() {
		t.Error("job did not run")
	}
	if !notified.Load() {
		t.Error("done callback not invoked with a nil error")
	}
	if w.Running() {
		t.Error("Running() = true after Join")
	}
	if !errors.Is(w.Run(), ErrAlreadyStarted) {
		t.Error("a worker must not run twice")
	}
}

func TestWorker_Interrupt(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	w := New(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, WithName("blocking"))

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-started
	if !w.Running() {
		t.Error("Running() = false while the job blocks")
	}
	w.Interrupt()
	if err := w.Join(); !errors.Is(err, ErrAborted) {
		t.Errorf("Join() = %v, want ErrAborted", err)
	}
	if !errors.Is(w.Err(), ErrAborted) {
		t.Errorf("Err() = %v, want ErrAborted", w.Err())
	}
}

func TestWorker_JobError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	w := New(func(context.Context) error { return boom })
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Join(); !errors.Is(err, boom) {
		t.Errorf("Join() = %v, want boom", err)
	}
}

func TestWorker_JoinUnstarted(t *testing.T) {
	t.Parallel()

	w := New(func(context.Context) error { return nil })
	w.Interrupt()

	done := make(chan error, 1)
	go func() { done <- w.Join() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Join() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Join on an unstarted worker blocked")
	}
}

func TestWorker_ParentContext(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	w := New(func(ctx context.Context) error {
		return ctx.Err()
	}, WithContext(parent))
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := w.Join(); !errors.Is(err, ErrAborted) {
		t.Errorf("Join() = %v, want ErrAborted", err)
	}
}

func TestWorker_PanicEndsJob(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	w := New(func(ctx context.Context) error {
		panic("index out of range")
	}, WithLogger(zaptest.NewLogger(t)), WithOnDone(func(err error) {
		got.Store(err)
	}))
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	joined := make(chan error, 1)
	go func() { joined <- w.Join() }()
	select {
	case err := <-joined:
		if !errors.Is(err, ErrPanicked) {
			t.Errorf("Join = %v, want ErrPanicked", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Join blocked after the job panicked")
	}
	if w.Running() {
		t.Error("Running() = true after a panic")
	}
	if err, _ := got.Load().(error); !errors.Is(err, ErrPanicked) {
		t.Errorf("done callback got %v, want ErrPanicked", err)
	}
}
