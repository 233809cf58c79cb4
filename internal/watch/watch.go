// Package watch reloads a board file whenever it changes on disk and reports
// what changed since the previous revision.
package watch

import (
	"maps"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// minTick bounds the debounce ticker so a zero debounce still polls.
const minTick = 10 * time.Millisecond

// Reload is one re-read of the watched board. Err is set when the file could
// not be loaded; Board and Changes are then empty and the previous revision
// stays current.
type Reload struct {
	Board   *pcb.Board
	Changes pcb.Changes
	Err     error
}

// Watcher monitors one board file using fsnotify.
type Watcher struct {
	Path    string
	Reloads <-chan Reload // Read-only external channel

	reloads  chan Reload
	stop     chan struct{}
	done     chan struct{}
	watcher  *fsnotify.Watcher
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	current  *pcb.Board
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the file must stay quiet before it is reloaded.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithRateLimit caps reloads per second. Reloads over the limit are deferred,
// never dropped.
func WithRateLimit(perSec float64) Option {
	return func(w *Watcher) { w.limiter = rate.NewLimiter(rate.Limit(perSec), 1) }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher for path. current is the revision changes are
// computed against; nil means every feature of the first reload is new.
func NewWatcher(path string, current *pcb.Board, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = &pcb.Board{}
	}

	ch := make(chan Reload, 16)
	w := &Watcher{
		Path:     filepath.Clean(path),
		Reloads:  ch,
		reloads:  ch,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		watcher:  fw,
		debounce: 100 * time.Millisecond,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   zap.NewNop(),
		current:  current,
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Start begins watching. The parent directory is watched so editors that
// save by renaming a temporary file are still seen.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.Path)); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Reloads channel.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
	<-w.done
	close(w.reloads)
}

func (w *Watcher) loop() {
	defer close(w.done)

	var pending time.Time
	ticker := time.NewTicker(max(w.debounce, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case now := <-ticker.C:
			if pending.IsZero() || now.Sub(pending) < w.debounce {
				continue
			}
			if !w.limiter.Allow() {
				w.logger.Debug("reload deferred by rate limit", zap.String("path", w.Path))
				continue
			}
			pending = time.Time{}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// reload reads the file and emits the diff against the current revision.
// A reload that changes nothing is not emitted.
func (w *Watcher) reload() {
	next, err := pcb.Load(w.Path)
	if err != nil {
		w.logger.Debug("reload failed", zap.String("path", w.Path), zap.Error(err))
		w.emit(Reload{Err: err})
		return
	}
	changes := pcb.Diff(w.current, next)
	if changes.Empty() && maps.Equal(next.Nets, w.current.Nets) {
		return
	}
	w.current = next
	w.emit(Reload{Board: next, Changes: changes})
}

func (w *Watcher) emit(r Reload) {
	select {
	case w.reloads <- r:
	case <-w.stop:
	}
}
