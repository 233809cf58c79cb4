// Package ratsnest computes, per net, the missing connections between the
// physically joined groups of that net's copper.
//
// A Net ingests clusters produced by a connectivity search. Every distinct
// anchor of a cluster becomes a node; nodes joined by existing copper form a
// sub-cluster. Update links the sub-clusters by repeatedly taking the globally
// closest node pair of two different sub-clusters. Pairs are ordered by
// (squared distance, lower node index, higher node index), which is a strict
// total order, so the result is unique and a dense Prim over the contracted
// graph produces exactly that edge set.
package ratsnest

import (
	"slices"

	"github.com/papapumpkin/ratsnest/internal/connectivity"
	"github.com/papapumpkin/ratsnest/internal/geom"
	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// Node is one anchor of the net.
type Node struct {
	Pos     geom.Point
	Feature string   // ID of the feature the anchor belongs to
	Kind    pcb.Kind // kind of that feature
	Cluster int      // order in which the owning cluster was added
	Index   int      // position in the net's node list
}

// Edge joins two nodes. A is always the node with the lower index.
type Edge struct {
	A, B   Node
	DistSq int64
}

// Touches reports whether either end of the edge belongs to one of ids.
func (e Edge) Touches(ids map[string]bool) bool {
	return ids[e.A.Feature] || ids[e.B.Feature]
}

// Net holds the ratsnest of one net code. A Net is built and updated by a
// single goroutine and is read-only once published.
type Net struct {
	code        int
	nodes       []Node
	clusters    int
	edges       []Edge
	unconnected []Edge
	links       [][2]int
}

// NewNet returns an empty ratsnest for net code.
func NewNet(code int) *Net {
	return &Net{code: code}
}

// Code returns the net code.
func (n *Net) Code() int { return n.code }

// Clear discards every node and edge.
func (n *Net) Clear() {
	n.nodes = nil
	n.clusters = 0
	n.edges = nil
	n.unconnected = nil
	n.links = nil
}

// AddCluster ingests one cluster of cs. Coincident anchors within the cluster
// share a node. Track spans and the touching pairs the search walked become
// satisfied edges.
func (n *Net) AddCluster(cs *connectivity.ClusterSet, c *connectivity.Cluster) {
	cluster := n.clusters
	n.clusters++

	at := make(map[geom.Point]int)
	byHandle := make(map[int][]int, c.Size())
	for _, h := range c.Members() {
		it := cs.Item(h)
		var own []int
		for _, p := range it.Anchors() {
			idx, ok := at[p]
			if !ok {
				idx = len(n.nodes)
				at[p] = idx
				n.nodes = append(n.nodes, Node{
					Pos:     p,
					Feature: it.Feature().ID(),
					Kind:    it.Kind(),
					Cluster: cluster,
					Index:   idx,
				})
			}
			own = append(own, idx)
		}
		byHandle[h] = own
		if it.Kind() == pcb.KindTrack && len(own) == 2 {
			n.link(own[0], own[1])
		}
	}
	for _, l := range c.Links() {
		a, b, ok := nearestPair(n.nodes, byHandle[l[0]], byHandle[l[1]])
		if ok {
			n.link(a, b)
		}
	}
}

func (n *Net) link(a, b int) {
	if a == b {
		return
	}
	if a > b {
		a, b = b, a
	}
	n.links = append(n.links, [2]int{a, b})
	n.edges = append(n.edges, n.edge(a, b))
}

func (n *Net) edge(a, b int) Edge {
	return Edge{A: n.nodes[a], B: n.nodes[b], DistSq: n.nodes[a].Pos.DistSq(n.nodes[b].Pos)}
}

// Update recomputes the unconnected edges. Sub-clusters are the groups of
// nodes joined by satisfied edges.
func (n *Net) Update() {
	n.unconnected = nil
	if len(n.nodes) < 2 {
		return
	}

	uf := newUnionFind(len(n.nodes))
	for _, l := range n.links {
		uf.union(l[0], l[1])
	}
	comp, count := uf.components()
	if count < 2 {
		return
	}
	members := make([][]int, count)
	for i, c := range comp {
		members[c] = append(members[c], i)
	}

	inTree := make([]bool, count)
	best := make([]pairKey, count)
	found := make([]bool, count)
	grow := func(c int) {
		inTree[c] = true
		for _, u := range members[c] {
			for v := range n.nodes {
				cv := comp[v]
				if inTree[cv] {
					continue
				}
				k := n.key(u, v)
				if !found[cv] || k.less(best[cv]) {
					best[cv] = k
					found[cv] = true
				}
			}
		}
	}

	grow(0)
	for range count - 1 {
		next := -1
		for c := range count {
			if inTree[c] || !found[c] {
				continue
			}
			if next < 0 || best[c].less(best[next]) {
				next = c
			}
		}
		k := best[next]
		n.unconnected = append(n.unconnected, Edge{A: n.nodes[k.lo], B: n.nodes[k.hi], DistSq: k.dist})
		grow(next)
	}
	slices.SortFunc(n.unconnected, compareEdges)
}

// Nodes returns the anchors of the net.
func (n *Net) Nodes() []Node { return n.nodes }

// NodeCount returns the number of nodes.
func (n *Net) NodeCount() int { return len(n.nodes) }

// ClusterCount returns the number of clusters added.
func (n *Net) ClusterCount() int { return n.clusters }

// Unconnected returns the missing connections computed by the last Update,
// ordered by length.
func (n *Net) Unconnected() []Edge { return n.unconnected }

// Edges returns the satisfied connections: track spans and touching pairs.
func (n *Net) Edges() []Edge { return n.edges }

// VisibleUnconnected returns the unconnected edges with no end on a hidden
// feature.
func (n *Net) VisibleUnconnected(hidden map[string]bool) []Edge {
	if len(hidden) == 0 {
		return n.unconnected
	}
	var out []Edge
	for _, e := range n.unconnected {
		if !e.Touches(hidden) {
			out = append(out, e)
		}
	}
	return out
}

// NearestBicoloredPair returns the closest pair of nodes a from n and b from
// other. It reports false when either net has no nodes.
func (n *Net) NearestBicoloredPair(other *Net) (a, b Node, ok bool) {
	if n == nil || other == nil || len(n.nodes) == 0 || len(other.nodes) == 0 {
		return Node{}, Node{}, false
	}
	bestD := int64(-1)
	for _, x := range n.nodes {
		for _, y := range other.nodes {
			d := x.Pos.DistSq(y.Pos)
			if bestD < 0 || d < bestD {
				bestD, a, b = d, x, y
			}
		}
	}
	return a, b, true
}

// Without returns a copy of the net's nodes minus those of the given
// features. Edges are not carried over.
func (n *Net) Without(ids map[string]bool) *Net {
	out := &Net{code: n.code, clusters: n.clusters}
	for _, nd := range n.nodes {
		if ids[nd.Feature] {
			continue
		}
		nd.Index = len(out.nodes)
		out.nodes = append(out.nodes, nd)
	}
	return out
}

// pairKey orders candidate node pairs.
type pairKey struct {
	dist   int64
	lo, hi int
}

func (n *Net) key(u, v int) pairKey {
	lo, hi := min(u, v), max(u, v)
	return pairKey{dist: n.nodes[lo].Pos.DistSq(n.nodes[hi].Pos), lo: lo, hi: hi}
}

func (k pairKey) less(o pairKey) bool {
	if k.dist != o.dist {
		return k.dist < o.dist
	}
	if k.lo != o.lo {
		return k.lo < o.lo
	}
	return k.hi < o.hi
}

func compareEdges(x, y Edge) int {
	kx := pairKey{dist: x.DistSq, lo: x.A.Index, hi: x.B.Index}
	ky := pairKey{dist: y.DistSq, lo: y.A.Index, hi: y.B.Index}
	switch {
	case kx.less(ky):
		return -1
	case ky.less(kx):
		return 1
	}
	return 0
}

// nearestPair returns the closest pair drawn from the node lists as and bs.
func nearestPair(nodes []Node, as, bs []int) (int, int, bool) {
	var best pairKey
	ok := false
	for _, a := range as {
		for _, b := range bs {
			k := pairKey{dist: nodes[a].Pos.DistSq(nodes[b].Pos), lo: min(a, b), hi: max(a, b)}
			if !ok || k.less(best) {
				best, ok = k, true
			}
		}
	}
	return best.lo, best.hi, ok
}
