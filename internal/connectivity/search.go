package connectivity

import (
	"context"
	"slices"

	"github.com/dhconnelly/rtreego"

	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// View is a frozen picture of the arena handed to one job, together with the
// effective net of every handle.
type View struct {
	items []*Item
	nets  []int
	tree  *rtreego.Rtree
	eps   int64
	stamp uint64
}

// Stamp returns the mutation stamp the view was taken at.
func (v *View) Stamp() uint64 { return v.stamp }

// Len returns the arena size, tombstones included.
func (v *View) Len() int { return len(v.items) }

// Item returns the item stored under handle h, or nil for a tombstone.
func (v *View) Item(h int) *Item { return v.items[h] }

// Net returns the effective net of handle h.
func (v *View) Net(h int) int { return v.nets[h] }

// WithFeatureNets returns a view whose items take their effective net from
// nets, keyed by feature ID. Items of unlisted features keep theirs.
func (v *View) WithFeatureNets(nets map[string]int) *View {
	out := slices.Clone(v.nets)
	for h, it := range v.items {
		if it == nil {
			continue
		}
		if n, ok := nets[it.feature.ID()]; ok {
			out[h] = n
		}
	}
	return v.withNets(out)
}

// withNets returns a view sharing the arena but carrying other nets.
func (v *View) withNets(nets []int) *View {
	cp := *v
	cp.nets = nets
	return &cp
}

// Mode restricts which items a cluster search visits.
type Mode int

const (
	ModePropagate Mode = iota // every live item, across nets
	ModeRatsnest              // items whose effective net is positive, one net per cluster
	ModeSingleNet             // items of one effective net
)

// Cluster is a maximal set of items reachable through the touch relation.
type Cluster struct {
	members      []int
	links        [][2]int
	origin       int
	net          int
	orphaned     bool
	conflicting  bool
	conflictNets []int
}

// Members returns the member handles in insertion order.
func (c *Cluster) Members() []int { return c.members }

// Links returns the touching pairs the search walked, as handle pairs.
func (c *Cluster) Links() [][2]int { return c.links }

// Size returns the number of members.
func (c *Cluster) Size() int { return len(c.members) }

// OriginNet returns the net of the first definitive member, or 0 when the
// cluster is orphaned.
func (c *Cluster) OriginNet() int { return c.origin }

// Net returns the net the cluster belongs to: its origin net, or for an
// orphaned cluster the effective net of its first netted member.
func (c *Cluster) Net() int { return c.net }

// IsOrphaned reports whether no definitive item is in the cluster.
func (c *Cluster) IsOrphaned() bool { return c.orphaned }

// IsConflicting reports whether definitive members disagree on their net.
func (c *Cluster) IsConflicting() bool { return c.conflicting }

// ConflictNets returns every distinct definitive net in the cluster, in order
// of first appearance. It is empty unless the cluster is conflicting.
func (c *Cluster) ConflictNets() []int { return c.conflictNets }

// ClusterSet is the immutable output of one search.
type ClusterSet struct {
	view     *View
	clusters []*Cluster
	byHandle []int
}

// Clusters returns the clusters ordered by their first member.
func (cs *ClusterSet) Clusters() []*Cluster { return cs.clusters }

// View returns the view the clusters were computed from.
func (cs *ClusterSet) View() *View { return cs.view }

// Item returns the item stored under handle h, or nil.
func (cs *ClusterSet) Item(h int) *Item { return cs.view.items[h] }

// EffectiveNet returns the net of handle h after inheritance.
func (cs *ClusterSet) EffectiveNet(h int) int { return cs.view.nets[h] }

// ClusterOf returns the cluster holding handle h, or nil when the search did
// not visit it.
func (cs *ClusterSet) ClusterOf(h int) *Cluster {
	if h < 0 || h >= len(cs.byHandle) || cs.byHandle[h] < 0 {
		return nil
	}
	return cs.clusters[cs.byHandle[h]]
}

// SearchClusters partitions the items selected by mode into clusters. net is
// only consulted for ModeSingleNet. Outside ModePropagate a cluster only grows
// into items of its seed's effective net, so a short between two nets leaves
// each net with its own clusters; the short itself shows up in the propagate
// search. The context is checked once per visited item; on cancellation the
// search returns ErrAborted and no clusters.
func SearchClusters(ctx context.Context, v *View, mode Mode, net int) (*ClusterSet, error) {
	eligible := func(h int) bool {
		if v.items[h] == nil {
			return false
		}
		switch mode {
		case ModeRatsnest:
			return v.nets[h] > 0
		case ModeSingleNet:
			return v.nets[h] == net
		default:
			return true
		}
	}

	cs := &ClusterSet{view: v, byHandle: make([]int, len(v.items))}
	for h := range cs.byHandle {
		cs.byHandle[h] = -1
	}

	var queue []int
	for seed := range v.items {
		if !eligible(seed) || cs.byHandle[seed] >= 0 {
			continue
		}
		id := len(cs.clusters)
		seedNet := v.nets[seed]
		c := &Cluster{members: []int{seed}}
		cs.byHandle[seed] = id
		queue = append(queue[:0], seed)

		for len(queue) > 0 {
			if ctx.Err() != nil {
				return nil, ErrAborted
			}
			cur := v.items[queue[0]]
			queue = queue[1:]

			for _, h := range neighbours(v, cur) {
				if !eligible(h) || cs.byHandle[h] >= 0 {
					continue
				}
				if mode != ModePropagate && v.nets[h] != seedNet {
					continue
				}
				if !Touches(cur, v.items[h], v.eps) {
					continue
				}
				cs.byHandle[h] = id
				c.members = append(c.members, h)
				c.links = append(c.links, [2]int{cur.handle, h})
				queue = append(queue, h)
			}
		}
		slices.Sort(c.members)
		resolveNet(c, v)
		cs.clusters = append(cs.clusters, c)
	}
	return cs, nil
}

// neighbours returns the handles whose boxes come near cur, ascending.
func neighbours(v *View, cur *Item) []int {
	found := v.tree.SearchIntersect(queryRect(cur, v.eps))
	hs := make([]int, 0, len(found))
	for _, s := range found {
		it := s.(*Item)
		if it.handle == cur.handle || it.handle >= len(v.items) || v.items[it.handle] != it {
			continue
		}
		hs = append(hs, it.handle)
	}
	slices.Sort(hs)
	return hs
}

// resolveNet scans definitive members in insertion order and sets the
// cluster's origin, conflict and net fields.
func resolveNet(c *Cluster, v *View) {
	c.orphaned = true
	for _, h := range c.members {
		it := v.items[h]
		if !pcb.Definitive(it.feature) {
			continue
		}
		if c.orphaned {
			c.orphaned = false
			c.origin = it.net
			c.conflictNets = []int{it.net}
			continue
		}
		if !slices.Contains(c.conflictNets, it.net) {
			c.conflictNets = append(c.conflictNets, it.net)
			c.conflicting = true
		}
	}
	if !c.conflicting {
		c.conflictNets = nil
	}
	if !c.orphaned {
		c.net = c.origin
		return
	}
	for _, h := range c.members {
		if v.nets[h] > 0 {
			c.net = v.nets[h]
			return
		}
	}
}

// PropagateNets runs a full search and lets every inheriting item (a track,
// via or zone without a net) adopt the net of its cluster. It returns a view
// carrying the effective nets and the clusters of the full search, from
// which conflicts can be read. Features are never modified.
func PropagateNets(ctx context.Context, v *View) (*View, *ClusterSet, error) {
	cs, err := SearchClusters(ctx, v, ModePropagate, 0)
	if err != nil {
		return nil, nil, err
	}
	nets := slices.Clone(v.nets)
	for _, c := range cs.clusters {
		if c.net <= 0 {
			continue
		}
		for _, h := range c.members {
			if pcb.Inherits(v.items[h].feature) {
				nets[h] = c.net
			}
		}
	}
	out := v.withNets(nets)
	cs.view = out
	return out, cs, nil
}

// Conflicts returns the conflicting clusters of cs.
func Conflicts(cs *ClusterSet) []*Cluster {
	var out []*Cluster
	for _, c := range cs.clusters {
		if c.conflicting {
			out = append(out, c)
		}
	}
	return out
}
