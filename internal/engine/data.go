// Package engine is the connectivity facade an editor talks to.
//
// Data owns the connectivity algorithm and the net-indexed ratsnest array.
// Edits are forwarded to the algorithm, which only marks nets dirty; a
// recalculation runs on a background worker, rebuilds the ratsnest of dirty
// nets and publishes an immutable result with an atomic swap. Queries read the
// last published result and never block on a running job unless they have to
// be exact.
package engine

import (
	"errors"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papapumpkin/ratsnest/internal/connectivity"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/telemetry"
	"github.com/papapumpkin/ratsnest/internal/worker"
)

// Sentinel errors for queries.
var (
	// ErrNetOutOfRange is returned for a net code outside the ratsnest array.
	ErrNetOutOfRange = errors.New("net code out of range")
	// ErrUnknownFeature is returned when a feature ID is not in the last result.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrWrongKind is returned when a query needs a feature of another kind.
	ErrWrongKind = errors.New("wrong feature kind")
)

// AllNets selects every net in the count queries.
const AllNets = -1

// State tells whether query results are trustworthy.
type State int32

const (
	StateInvalid State = iota // no result yet, a job in flight, or edits since
	StateValid                // the published result covers every edit
)

// String returns the lower-case state name.
func (s State) String() string {
	if s == StateValid {
		return "valid"
	}
	return "invalid"
}

// Data is the connectivity facade. Build, Add, Remove, Update, Apply,
// Recalculate, Sync, CheckConnectivity and the dynamic ratsnest calls belong
// to one owner goroutine; only the owner thaws or flushes the arena. The other
// queries, SetNetName, SetNotifier and KillCalculations may be called from any
// goroutine.
type Data struct {
	algo        *connectivity.Algorithm
	parallelism int
	logger      *zap.Logger
	telemetry   *telemetry.Emitter

	mu     sync.Mutex
	worker *worker.Worker

	namesMu sync.Mutex
	names   map[int]string

	pubMu  sync.Mutex
	notify func()
	state  atomic.Int32
	result atomic.Pointer[result]

	dyn dynamicState
}

// Option configures a Data.
type Option func(*options)

type options struct {
	eps         int64
	parallelism int
	logger      *zap.Logger
	telemetry   *telemetry.Emitter
}

// WithEpsilon sets the touch tolerance in board units.
func WithEpsilon(eps int64) Option {
	return func(o *options) { o.eps = eps }
}

// WithParallelism bounds the goroutines used to update nets in one job.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTelemetry records job events to e. A nil emitter disables recording.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(o *options) { o.telemetry = e }
}

// New returns an empty facade in the invalid state.
func New(opts ...Option) *Data {
	o := options{parallelism: runtime.NumCPU(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	return &Data{
		algo:        connectivity.New(connectivity.WithEpsilon(o.eps)),
		names:       make(map[int]string),
		parallelism: o.parallelism,
		logger:      o.logger,
		telemetry:   o.telemetry,
	}
}

// SetNotifier registers a function called once after every published job.
// It runs on the worker goroutine.
func (d *Data) SetNotifier(fn func()) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()
	d.notify = fn
}

// State returns the current state.
func (d *Data) State() State {
	return State(d.state.Load())
}

// Build resets the engine to the features of b and recalculates
// synchronously.
func (d *Data) Build(b *pcb.Board) error {
	names := maps.Clone(b.Nets)
	if names == nil {
		names = make(map[int]string)
	}
	d.namesMu.Lock()
	d.names = names
	d.namesMu.Unlock()
	return d.BuildFeatures(b.Features)
}

// BuildFeatures resets the engine to features and recalculates
// synchronously. The net name table is kept.
func (d *Data) BuildFeatures(features []pcb.Feature) error {
	d.stopWorker()
	d.algo.Release()
	d.pubMu.Lock()
	d.result.Store(nil)
	d.state.Store(int32(StateInvalid))
	d.pubMu.Unlock()

	d.algo.Build(features)
	return d.Recalculate(false)
}

// SetNetName records the display name of a net for later reports.
func (d *Data) SetNetName(code int, name string) {
	d.namesMu.Lock()
	defer d.namesMu.Unlock()
	d.names[code] = name
}

// netNames returns a copy of the name table.
func (d *Data) netNames() map[int]string {
	d.namesMu.Lock()
	defer d.namesMu.Unlock()
	return maps.Clone(d.names)
}

// Add forwards a new feature to the algorithm. Nothing is recomputed until
// the next Recalculate.
func (d *Data) Add(f pcb.Feature) {
	d.algo.Add(f)
	d.state.Store(int32(StateInvalid))
}

// Remove forwards a removal to the algorithm.
func (d *Data) Remove(f pcb.Feature) {
	d.algo.Remove(f)
	d.state.Store(int32(StateInvalid))
}

// Update forwards a changed feature to the algorithm.
func (d *Data) Update(f pcb.Feature) {
	d.algo.Update(f)
	d.state.Store(int32(StateInvalid))
}

// Apply forwards a board diff: removals, then updates, then additions.
func (d *Data) Apply(c pcb.Changes) {
	for _, f := range c.Removed {
		d.Remove(f)
	}
	for _, f := range c.Updated {
		d.Update(f)
	}
	for _, f := range c.Added {
		d.Add(f)
	}
}

// Sync blocks until the running job, if any, has finished, then applies
// edits queued while it ran. It returns the job's error.
func (d *Data) Sync() error {
	err := d.join()
	if d.algo.Frozen() {
		d.algo.Release()
		if n := d.algo.Flush(); n > 0 {
			d.logger.Debug("applied queued edits", zap.Int("count", n))
		}
	}
	return err
}

// join waits for the running job without touching the arena, so any
// goroutine may call it.
func (d *Data) join() error {
	d.mu.Lock()
	w := d.worker
	d.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Join()
}

// KillCalculations interrupts the running job and marks the state invalid
// without waiting. A killed job never publishes.
func (d *Data) KillCalculations() {
	d.mu.Lock()
	if d.worker != nil {
		d.worker.Interrupt()
	}
	d.mu.Unlock()

	d.pubMu.Lock()
	d.state.Store(int32(StateInvalid))
	d.pubMu.Unlock()
}

// stopWorker interrupts the running job and waits for it to return.
func (d *Data) stopWorker() {
	d.mu.Lock()
	w := d.worker
	d.mu.Unlock()
	if w == nil {
		return
	}
	w.Interrupt()
	_ = w.Join()
}

// netName returns the display name of a net from the names table of r.
func netName(names map[int]string, code int) string {
	b := pcb.Board{Nets: names}
	return b.NetName(code)
}
