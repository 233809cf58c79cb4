package engine

import (
	"fmt"
	"slices"

	"github.com/papapumpkin/ratsnest/internal/connectivity"
	"github.com/papapumpkin/ratsnest/internal/geom"
	"github.com/papapumpkin/ratsnest/internal/pcb"
	"github.com/papapumpkin/ratsnest/internal/ratsnest"
)

// DisjointNet is one missing connection found by CheckConnectivity.
type DisjointNet struct {
	Net     int
	NetName string
	A, B    pcb.Feature
	PosA    geom.Point
	PosB    geom.Point
}

// Conflict describes a cluster whose pads disagree on their net.
type Conflict struct {
	Nets     []int
	Features []string
}

// ConnectedItems returns the features electrically joined to the feature
// with the given ID, optionally restricted to kinds. The feature itself is
// not included. Results follow insertion order.
func (d *Data) ConnectedItems(id string, kinds ...pcb.Kind) []pcb.Feature {
	r := d.result.Load()
	if r == nil {
		return nil
	}
	seen := map[string]bool{id: true}
	var members []int
	for _, h := range r.handles[id] {
		if c := r.full.ClusterOf(h); c != nil {
			members = append(members, c.Members()...)
		}
	}
	slices.Sort(members)

	var out []pcb.Feature
	for _, h := range slices.Compact(members) {
		f := r.full.Item(h).Feature()
		if seen[f.ID()] {
			continue
		}
		seen[f.ID()] = true
		if len(kinds) == 0 || slices.Contains(kinds, f.Kind()) {
			out = append(out, f)
		}
	}
	return out
}

// ConnectedTracks returns the tracks joined to the feature with the given ID.
func (d *Data) ConnectedTracks(id string) []pcb.Feature {
	return d.ConnectedItems(id, pcb.KindTrack)
}

// ConnectedPads returns the pads joined to the feature with the given ID.
func (d *Data) ConnectedPads(id string) []pcb.Feature {
	return d.ConnectedItems(id, pcb.KindPad)
}

// NetItems returns every feature whose effective net is net, optionally
// restricted to kinds.
func (d *Data) NetItems(net int, kinds ...pcb.Kind) []pcb.Feature {
	r := d.result.Load()
	if r == nil {
		return nil
	}
	v := r.full.View()
	seen := make(map[string]bool)
	var out []pcb.Feature
	for h := range v.Len() {
		it := v.Item(h)
		if it == nil || v.Net(h) != net || seen[it.Feature().ID()] {
			continue
		}
		seen[it.Feature().ID()] = true
		if len(kinds) == 0 || slices.Contains(kinds, it.Kind()) {
			out = append(out, it.Feature())
		}
	}
	return out
}

// EffectiveNet returns the net a feature ends up on after inheritance.
// Before the first result it returns 0.
func (d *Data) EffectiveNet(id string) (int, error) {
	r := d.result.Load()
	if r == nil {
		return 0, nil
	}
	if len(r.handles[id]) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFeature, id)
	}
	return r.full.EffectiveNet(r.handles[id][0]), nil
}

// FindIsolatedCopperIslands waits for the running job and returns the
// indices of the zone's outlines that do not reach a pad of the zone's
// effective net. A zone without a net has no islands. Edits made after the
// last Recalculate are not seen.
func (d *Data) FindIsolatedCopperIslands(zoneID string) ([]int, error) {
	_ = d.join()
	r := d.result.Load()
	if r == nil {
		return nil, nil
	}
	if len(r.handles[zoneID]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, zoneID)
	}
	if r.features[zoneID].Kind() != pcb.KindZone {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, zoneID, r.features[zoneID].Kind())
	}

	var islands []int
	for _, h := range r.handles[zoneID] {
		net := r.full.EffectiveNet(h)
		if net <= 0 {
			return nil, nil
		}
		c := r.full.ClusterOf(h)
		reached := false
		for _, m := range c.Members() {
			it := r.full.Item(m)
			if pcb.Definitive(it.Feature()) && it.Net() == net {
				reached = true
				break
			}
		}
		if !reached {
			islands = append(islands, r.full.Item(h).Part())
		}
	}
	return islands, nil
}

// CheckConnectivity recalculates synchronously and reports every missing
// connection, nets in ascending order.
func (d *Data) CheckConnectivity() ([]DisjointNet, error) {
	if err := d.Recalculate(false); err != nil {
		return nil, err
	}
	r := d.result.Load()
	if r == nil {
		return nil, nil
	}
	var report []DisjointNet
	for code, n := range r.nets {
		if n == nil {
			continue
		}
		for _, e := range n.Unconnected() {
			report = append(report, DisjointNet{
				Net:     code,
				NetName: netName(r.names, code),
				A:       r.features[e.A.Feature],
				B:       r.features[e.B.Feature],
				PosA:    e.A.Pos,
				PosB:    e.B.Pos,
			})
		}
	}
	return report, nil
}

// NodeCount returns the number of ratsnest nodes of net, or of all nets for
// AllNets.
func (d *Data) NodeCount(net int) (int, error) {
	return d.count(net, (*ratsnest.Net).NodeCount)
}

// PadCount returns the number of distinct pads in net, or in all nets for
// AllNets.
func (d *Data) PadCount(net int) (int, error) {
	return d.count(net, func(n *ratsnest.Net) int {
		pads := make(map[string]bool)
		for _, nd := range n.Nodes() {
			if nd.Kind == pcb.KindPad {
				pads[nd.Feature] = true
			}
		}
		return len(pads)
	})
}

// UnconnectedCount returns the number of missing connections of net, or of
// all nets for AllNets.
func (d *Data) UnconnectedCount(net int) (int, error) {
	return d.count(net, func(n *ratsnest.Net) int { return len(n.Unconnected()) })
}

func (d *Data) count(net int, f func(*ratsnest.Net) int) (int, error) {
	r := d.result.Load()
	if r == nil {
		return 0, nil
	}
	if net != AllNets && (net < 0 || net >= len(r.nets)) {
		return 0, fmt.Errorf("%w: %d (have %d)", ErrNetOutOfRange, net, len(r.nets))
	}
	total := 0
	for code, n := range r.nets {
		if n != nil && (net == AllNets || net == code) {
			total += f(n)
		}
	}
	return total, nil
}

// Ratsnest returns the published ratsnest of net, or nil when the net has no
// copper.
func (d *Data) Ratsnest(net int) (*ratsnest.Net, error) {
	r := d.result.Load()
	if r == nil {
		return nil, nil
	}
	if net < 0 || net >= len(r.nets) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrNetOutOfRange, net, len(r.nets))
	}
	return r.nets[net], nil
}

// NetCount returns the size of the net-indexed ratsnest array.
func (d *Data) NetCount() int {
	r := d.result.Load()
	if r == nil {
		return 0
	}
	return len(r.nets)
}

// NetName returns the display name of a net as of the last result.
func (d *Data) NetName(net int) string {
	r := d.result.Load()
	if r == nil {
		return netName(d.netNames(), net)
	}
	return netName(r.names, net)
}

// Conflicts lists every cluster whose pads carry different nets.
func (d *Data) Conflicts() []Conflict {
	r := d.result.Load()
	if r == nil {
		return nil
	}
	var out []Conflict
	for _, c := range connectivity.Conflicts(r.full) {
		cf := Conflict{Nets: c.ConflictNets()}
		for _, h := range c.Members() {
			id := r.full.Item(h).Feature().ID()
			if !slices.Contains(cf.Features, id) {
				cf.Features = append(cf.Features, id)
			}
		}
		out = append(out, cf)
	}
	return out
}

// TrackEndpointDangling reports, for each end of a track, whether it touches
// nothing but the track itself.
func (d *Data) TrackEndpointDangling(id string) (start, end bool, err error) {
	r := d.result.Load()
	if r == nil {
		return false, false, nil
	}
	if len(r.handles[id]) == 0 {
		return false, false, fmt.Errorf("%w: %s", ErrUnknownFeature, id)
	}
	t, ok := r.features[id].(*pcb.Track)
	if !ok {
		return false, false, fmt.Errorf("%w: %s is a %s", ErrWrongKind, id, r.features[id].Kind())
	}
	h := r.handles[id][0]
	self := r.full.Item(h)
	c := r.full.ClusterOf(h)
	a, b := t.Endpoints()
	return !d.endpointTouched(r, c, self, a), !d.endpointTouched(r, c, self, b), nil
}

func (d *Data) endpointTouched(r *result, c *connectivity.Cluster, self *connectivity.Item, p geom.Point) bool {
	eps := d.algo.Epsilon()
	for _, m := range c.Members() {
		it := r.full.Item(m)
		if it.Feature().ID() == self.Feature().ID() || !it.Layers().Overlaps(self.Layers()) {
			continue
		}
		if len(it.Anchors()) > 0 && it.Shape().Contains(p, eps) {
			return true
		}
	}
	return false
}
