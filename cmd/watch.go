package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papapumpkin/ratsnest/internal/engine"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <board.toml>",
	Short: "Recompute connectivity whenever the board file changes",
	Long: `Loads a board and keeps watching its file. Each saved revision is diffed
against the previous one and only the changed features are fed to the engine,
which recalculates in the background. A summary is printed after every
recalculation. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// pendingReload remembers what the running recalculation was started for so
// the completion notifier can report it.
type pendingReload struct {
	mu      sync.Mutex
	changes pcb.Changes
	started time.Time
}

func (p *pendingReload) set(c pcb.Changes) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = c
	p.started = time.Now()
}

func (p *pendingReload) get() (pcb.Changes, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changes, time.Since(p.started)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.load(path)
	if err != nil {
		return err
	}
	n, _ := s.data.UnconnectedCount(engine.AllNets)
	s.printer.Info(fmt.Sprintf("watching %s (%d unconnected)", path, n))

	var pending pendingReload
	s.data.SetNotifier(func() {
		changes, elapsed := pending.get()
		n, _ := s.data.UnconnectedCount(engine.AllNets)
		s.printer.Reloaded(changes, n, elapsed)
	})

	w, err := watch.NewWatcher(path, b,
		watch.WithDebounce(time.Duration(s.cfg.Watch.DebounceMS)*time.Millisecond),
		watch.WithRateLimit(s.cfg.Watch.MaxReloadsPerSec),
		watch.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchLoop(ctx, s, w, &pending)
}

// watchLoop applies every reload to the engine until ctx is done.
func watchLoop(ctx context.Context, s *session, w *watch.Watcher, pending *pendingReload) error {
	for {
		select {
		case <-ctx.Done():
			s.printer.Info("stopped")
			return nil
		case r, ok := <-w.Reloads:
			if !ok {
				return nil
			}
			if r.Err != nil {
				s.printer.Error(r.Err.Error())
				continue
			}
			for code, name := range r.Board.Nets {
				s.data.SetNetName(code, name)
			}
			s.data.Apply(r.Changes)
			pending.set(r.Changes)
			if err := s.data.Recalculate(true); err != nil {
				s.logger.Warn("recalculation not started", zap.Error(err))
			}
		}
	}
}
