package engine

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/papapumpkin/ratsnest/internal/geom"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/ratsnest"
)

const front geom.LayerSet = 1 << geom.FrontCu

func pad(id string, net int, x, y int64) *pcb.Pad {
	return pcb.NewPad(id, net, front, geom.Pt(x, y), pcb.PadCircle, 10, 10)
}

func track(id string, net int, x1, y1, x2, y2 int64) *pcb.Track {
	return pcb.NewTrack(id, net, geom.FrontCu, geom.Pt(x1, y1), geom.Pt(x2, y2), 4)
}

func square(x, y, size int64) []geom.Point {
	return []geom.Point{geom.Pt(x, y), geom.Pt(x+size, y), geom.Pt(x+size, y+size), geom.Pt(x, y+size)}
}

// build returns a facade built synchronously over features.
func build(t *testing.T, features ...pcb.Feature) *Data {
	t.Helper()
	d := New(WithLogger(zaptest.NewLogger(t)), WithParallelism(2))
	if err := d.BuildFeatures(features); err != nil {
		t.Fatalf("BuildFeatures: %v", err)
	}
	return d
}

// unconnected collects the unconnected edges of every net.
func unconnected(t *testing.T, d *Data) map[int][]ratsnest.Edge {
	t.Helper()
	out := make(map[int][]ratsnest.Edge)
	for code := range d.NetCount() {
		n, err := d.Ratsnest(code)
		if err != nil {
			t.Fatalf("Ratsnest(%d): %v", code, err)
		}
		if n != nil && len(n.Unconnected()) > 0 {
			out[code] = n.Unconnected()
		}
	}
	return out
}

func ids(fs []pcb.Feature) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID())
	}
	return out
}

func TestBuild_ThreePads(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 1, 200, 0))
	if d.State() != StateValid {
		t.Fatalf("state = %s, want valid", d.State())
	}
	got, err := d.UnconnectedCount(1)
	if err != nil {
		t.Fatalf("UnconnectedCount: %v", err)
	}
	if got != 2 {
		t.Errorf("unconnected = %d, want 2", got)
	}
	if n, _ := d.PadCount(AllNets); n != 3 {
		t.Errorf("pads = %d, want 3", n)
	}
}

func TestRecalculate_Idempotent(t *testing.T) {
	t.Parallel()

	d := build(t,
		pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 1, 50, 80),
		pad("D", 2, 0, 300), pad("E", 2, 300, 300),
		track("T", 0, 0, 0, 50, 0),
	)
	first := unconnected(t, d)
	if err := d.Recalculate(false); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if diff := cmp.Diff(first, unconnected(t, d)); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRecalculate_IncrementalMatchesFullBuild(t *testing.T) {
	t.Parallel()

	a, b, c := pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 1, 200, 0)
	d2 := pad("D", 2, 0, 500)
	tr := track("T", 0, 0, 0, 100, 0)

	tests := []struct {
		name  string
		edit  func(d *Data)
		final []pcb.Feature
	}{
		{
			name:  "add track",
			edit:  func(d *Data) { d.Add(tr) },
			final: []pcb.Feature{a, b, c, d2, tr},
		},
		{
			name:  "remove pad",
			edit:  func(d *Data) { d.Remove(b) },
			final: []pcb.Feature{a, c, d2},
		},
		{
			name:  "update pad",
			edit:  func(d *Data) { d.Update(pad("C", 1, 100, 0)) },
			final: []pcb.Feature{a, b, d2, pad("C", 1, 100, 0)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			inc := build(t, a, b, c, d2)
			tc.edit(inc)
			if err := inc.Recalculate(false); err != nil {
				t.Fatalf("Recalculate: %v", err)
			}
			full := build(t, tc.final...)
			if diff := cmp.Diff(unconnected(t, full), unconnected(t, inc)); diff != "" {
				t.Errorf("incremental differs from full build (-full +incremental):\n%s", diff)
			}
		})
	}
}

func TestRecalculate_RemovalLeavesNoTrace(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 1, 200, 0))
	d.Remove(pad("B", 1, 100, 0))
	if err := d.Recalculate(false); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	for _, e := range unconnected(t, d)[1] {
		if e.A.Feature == "B" || e.B.Feature == "B" {
			t.Errorf("edge %v still references removed pad", e)
		}
	}
	if got := ids(d.NetItems(1)); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("net items = %v, want [A C]", got)
	}
}

func TestKillCalculations_NeverPublishes(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 1, 100, 0))
	d.Add(pad("C", 1, 200, 0))
	if err := d.Recalculate(true); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	d.KillCalculations()
	_ = d.Sync()
	if d.State() != StateInvalid {
		t.Errorf("state after kill = %s, want invalid", d.State())
	}

	if err := d.Recalculate(false); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if d.State() != StateValid {
		t.Errorf("state = %s, want valid", d.State())
	}
	if n, _ := d.UnconnectedCount(1); n != 2 {
		t.Errorf("unconnected = %d, want 2", n)
	}
}

func TestRecalculate_EditDuringJobStaysInvalid(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 1, 100, 0))
	if err := d.Recalculate(true); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	d.Add(pad("C", 1, 200, 0))
	if err := d.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if d.State() != StateInvalid {
		t.Errorf("state = %s, want invalid", d.State())
	}

	if err := d.Recalculate(false); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if n, _ := d.NodeCount(1); n != 3 {
		t.Errorf("nodes = %d, want 3", n)
	}
}

func TestCheckConnectivity(t *testing.T) {
	t.Parallel()

	d := New()
	err := d.Build(&pcb.Board{
		Nets:     map[int]string{1: "GND"},
		Features: []pcb.Feature{pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 2, 0, 50)},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	report, err := d.CheckConnectivity()
	if err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
	want := []DisjointNet{{
		Net:     1,
		NetName: "GND",
		A:       d.NetItems(1)[0],
		B:       d.NetItems(1)[1],
		PosA:    geom.Pt(0, 0),
		PosB:    geom.Pt(100, 0),
	}}
	if diff := cmp.Diff(want, report, cmp.Comparer(func(x, y pcb.Feature) bool { return x.ID() == y.ID() })); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestFindIsolatedCopperIslands(t *testing.T) {
	t.Parallel()

	d := build(t,
		pcb.NewZone("Z", 1, geom.FrontCu, square(0, 0, 100), square(1000, 0, 100)),
		pad("P", 1, 50, 50),
		track("T", 1, 0, 500, 100, 500),
	)

	got, err := d.FindIsolatedCopperIslands("Z")
	if err != nil {
		t.Fatalf("FindIsolatedCopperIslands: %v", err)
	}
	if !slices.Equal(got, []int{1}) {
		t.Errorf("islands = %v, want [1]", got)
	}

	if _, err := d.FindIsolatedCopperIslands("T"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("track: err = %v, want ErrWrongKind", err)
	}
	if _, err := d.FindIsolatedCopperIslands("nope"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("unknown: err = %v, want ErrUnknownFeature", err)
	}
}

func TestCounts_OutOfRange(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 3, 100, 0))
	for _, net := range []int{-2, 4, 99} {
		if _, err := d.NodeCount(net); !errors.Is(err, ErrNetOutOfRange) {
			t.Errorf("NodeCount(%d): err = %v, want ErrNetOutOfRange", net, err)
		}
		if _, err := d.Ratsnest(net); !errors.Is(err, ErrNetOutOfRange) {
			t.Errorf("Ratsnest(%d): err = %v, want ErrNetOutOfRange", net, err)
		}
	}
	if n, err := d.NodeCount(AllNets); err != nil || n != 2 {
		t.Errorf("NodeCount(AllNets) = %d, %v; want 2, nil", n, err)
	}
	if n, err := d.NodeCount(2); err != nil || n != 0 {
		t.Errorf("NodeCount(2) = %d, %v; want 0, nil", n, err)
	}
}

func TestConnectedItems(t *testing.T) {
	t.Parallel()

	d := build(t,
		pad("A", 1, 0, 0),
		track("T", 0, 0, 0, 100, 0),
		pad("B", 1, 100, 0),
		pad("C", 1, 500, 0),
		track("S", 0, 500, 0, 700, 0),
	)

	if got := ids(d.ConnectedPads("T")); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("ConnectedPads(T) = %v, want [A B]", got)
	}
	if got := ids(d.ConnectedTracks("A")); !slices.Equal(got, []string{"T"}) {
		t.Errorf("ConnectedTracks(A) = %v, want [T]", got)
	}
	if got := ids(d.ConnectedItems("C")); !slices.Equal(got, []string{"S"}) {
		t.Errorf("ConnectedItems(C) = %v, want [S]", got)
	}
	if net, err := d.EffectiveNet("T"); err != nil || net != 1 {
		t.Errorf("EffectiveNet(T) = %d, %v; want 1, nil", net, err)
	}

	start, end, err := d.TrackEndpointDangling("S")
	if err != nil {
		t.Fatalf("TrackEndpointDangling: %v", err)
	}
	if start || !end {
		t.Errorf("dangling = (%v, %v), want (false, true)", start, end)
	}
	if _, _, err := d.TrackEndpointDangling("A"); !errors.Is(err, ErrWrongKind) {
		t.Errorf("pad: err = %v, want ErrWrongKind", err)
	}
}

func TestConflicts(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 5, 0, 0), pad("B", 7, 2, 0))
	got := d.Conflicts()
	want := []Conflict{{Nets: []int{5, 7}, Features: []string{"A", "B"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conflicts mismatch (-want +got):\n%s", diff)
	}
	if n, err := d.NodeCount(5); err != nil || n != 1 {
		t.Errorf("NodeCount(5) = %d, %v; want 1, nil", n, err)
	}
}

func TestSetNotifier(t *testing.T) {
	t.Parallel()

	d := New()
	var calls atomic.Int32
	d.SetNotifier(func() { calls.Add(1) })
	if err := d.BuildFeatures([]pcb.Feature{pad("A", 1, 0, 0)}); err != nil {
		t.Fatalf("BuildFeatures: %v", err)
	}
	if err := d.Recalculate(false); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("notifier called %d times, want 2", got)
	}
}

func TestDynamicRatsnest(t *testing.T) {
	t.Parallel()

	d := build(t, pad("A", 1, 0, 0), pad("B", 1, 100, 0), pad("C", 2, 0, 300), pad("D", 2, 300, 300))

	if err := d.ComputeDynamicRatsnest([]pcb.Feature{pad("B", 1, 10, 0)}); err != nil {
		t.Fatalf("ComputeDynamicRatsnest: %v", err)
	}
	if err := d.SyncDynamic(); err != nil {
		t.Fatalf("SyncDynamic: %v", err)
	}
	dr := d.DynamicRatsnest()
	if dr == nil {
		t.Fatal("no dynamic ratsnest published")
	}
	if !dr.Hidden["B"] || len(dr.Hidden) != 1 {
		t.Errorf("hidden = %v, want {B}", dr.Hidden)
	}
	if len(dr.Lines) != 1 {
		t.Fatalf("got %d preview lines, want 1", len(dr.Lines))
	}
	line := dr.Lines[0]
	if line.Net != 1 || line.Edge.A.Pos != geom.Pt(10, 0) || line.Edge.B.Pos != geom.Pt(0, 0) || line.Edge.DistSq != 100 {
		t.Errorf("line = %+v, want net 1 from (10,0) to (0,0)", line)
	}
	if len(dr.Static) != 0 {
		t.Errorf("static = %v, want none", dr.Static)
	}

	d.ClearDynamicRatsnest()
	if d.DynamicRatsnest() != nil {
		t.Error("dynamic ratsnest survived Clear")
	}
}
