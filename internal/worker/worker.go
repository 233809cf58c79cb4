// Package worker runs one cancellable background job.
//
// A Worker is single use: construct it with a job, Run it once, and replace
// it with a new instance for the next job. Cancellation is cooperative; the
// job receives a context and is expected to poll it at safe points.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors returned by Worker.
var (
	// ErrAborted reports that the job stopped because it was interrupted.
	ErrAborted = errors.New("worker: job aborted")
	// ErrAlreadyStarted is returned by Run on a worker that has run before.
	ErrAlreadyStarted = errors.New("worker: already started")
	// ErrPanicked wraps the value recovered from a job that panicked.
	ErrPanicked = errors.New("worker: job panicked")
)

// Job is the work a Worker executes.
type Job func(ctx context.Context) error

// Worker runs a single Job on its own goroutine.
type Worker struct {
	job    Job
	name   string
	parent context.Context
	logger *zap.Logger
	onDone func(error)

	mu      sync.Mutex
	started bool
	running bool
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithName labels the worker in log output.
func WithName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithContext derives the job context from ctx instead of the background
// context.
func WithContext(ctx context.Context) Option {
	return func(w *Worker) { w.parent = ctx }
}

// WithOnDone registers a callback run on the worker goroutine after the job
// returns, with the job's final error.
func WithOnDone(f func(error)) Option {
	return func(w *Worker) { w.onDone = f }
}

// New returns a worker for job. It does not start it.
func New(job Job, opts ...Option) *Worker {
	w := &Worker{
		job:    job,
		name:   "worker",
		parent: context.Background(),
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run starts the job on a new goroutine.
func (w *Worker) Run() error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(w.parent)
	w.started = true
	w.running = true
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Debug("job started", zap.String("worker", w.name))
	go w.loop(ctx)
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	err := w.call(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrPanicked) {
		err = ErrAborted
	}

	w.mu.Lock()
	w.err = err
	w.running = false
	w.cancel()
	w.mu.Unlock()

	switch {
	case errors.Is(err, ErrAborted):
		w.logger.Debug("job aborted", zap.String("worker", w.name))
	case err != nil:
		w.logger.Warn("job failed", zap.String("worker", w.name), zap.Error(err))
	default:
		w.logger.Debug("job finished", zap.String("worker", w.name))
	}
	if w.onDone != nil {
		w.onDone(err)
	}
}

// call runs the job, turning a panic into an ErrPanicked error.
func (w *Worker) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return w.job(ctx)
}

// Interrupt requests cancellation. It does not wait for the job to stop.
func (w *Worker) Interrupt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Join blocks until the job has returned and yields its error. Joining a
// worker that was never started returns immediately.
func (w *Worker) Join() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}
	<-w.done
	return w.Err()
}

// Running reports whether the job is still executing.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Err returns the job's error once it has finished.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
