package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/papapumpkin/ratsnest/internal/pcb"
)

const twoPads = `
[[net]]
code = 1
name = "GND"

[[pad]]
id = "A"
net = 1
layers = ["F.Cu"]
at = [0, 0]
size = [10]

[[pad]]
id = "B"
net = 1
layers = ["F.Cu"]
at = [100, 0]
size = [10]
`

const threePads = twoPads + `
[[pad]]
id = "C"
net = 1
layers = ["F.Cu"]
at = [200, 0]
size = [10]
`

func startWatcher(t *testing.T, path string, current *pcb.Board) *Watcher {
	t.Helper()
	w, err := NewWatcher(path, current,
		WithDebounce(50*time.Millisecond),
		WithRateLimit(100),
		WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestWatcher_ReportsAddedFeature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.toml")
	writeFile(t, path, twoPads)
	initial, err := pcb.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	w := startWatcher(t, path, initial)
	writeFile(t, path, threePads)

	select {
	case r := <-w.Reloads:
		if r.Err != nil {
			t.Fatalf("reload error: %v", r.Err)
		}
		if len(r.Changes.Added) != 1 || r.Changes.Added[0].ID() != "C" {
			t.Errorf("added = %v, want [C]", r.Changes.Added)
		}
		if len(r.Changes.Removed) != 0 || len(r.Changes.Updated) != 0 {
			t.Errorf("unexpected changes: %+v", r.Changes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_ReportsLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.toml")
	writeFile(t, path, twoPads)

	w := startWatcher(t, path, nil)
	writeFile(t, path, "[[pad]]\nid = \"A\"\nunknown = 1\n")

	select {
	case r := <-w.Reloads:
		if r.Err == nil {
			t.Fatal("expected a load error")
		}
		if r.Board != nil {
			t.Errorf("board set alongside error %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.toml")
	writeFile(t, path, twoPads)

	w := startWatcher(t, path, nil)
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")

	select {
	case r := <-w.Reloads:
		t.Errorf("unexpected reload: %+v", r)
	case <-time.After(300 * time.Millisecond):
	}
}
