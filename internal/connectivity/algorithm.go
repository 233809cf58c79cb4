package connectivity

import (
	"errors"
	"slices"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// ErrAborted is returned by a search whose context was cancelled. No partial
// result accompanies it.
var ErrAborted = errors.New("connectivity: search aborted")

// R-tree branching factors.
const (
	treeMinChildren = 8
	treeMaxChildren = 32
)

// compactMin is the arena size below which tombstones are never reclaimed.
const compactMin = 64

type opKind int

const (
	opAdd opKind = iota
	opRemove
)

// op is a mutation queued while the arena is frozen.
type op struct {
	kind    opKind
	feature pcb.Feature
}

// Algorithm owns the item arena, the spatial index and the net dirty set.
// Add, Remove, Update, Build, Flush, Snapshot and Release must be called from
// one goroutine. The dirty set may be read and cleared from any goroutine.
type Algorithm struct {
	eps    int64
	items  []*Item
	dead   int
	tree   *rtreego.Rtree
	byID   map[string][]int
	frozen bool
	queue  []op

	mu    sync.Mutex
	stamp uint64
	dirty map[int]uint64
}

// Option configures an Algorithm.
type Option func(*Algorithm)

// WithEpsilon sets the touch tolerance in board units.
func WithEpsilon(eps int64) Option {
	return func(a *Algorithm) {
		a.eps = eps
	}
}

// New returns an empty Algorithm.
func New(opts ...Option) *Algorithm {
	a := &Algorithm{
		tree:  rtreego.NewTree(2, treeMinChildren, treeMaxChildren),
		byID:  make(map[string][]int),
		dirty: make(map[int]uint64),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Epsilon returns the touch tolerance.
func (a *Algorithm) Epsilon() int64 { return a.eps }

// Build discards every item and wraps features from scratch. Every net the
// features carry is marked dirty.
func (a *Algorithm) Build(features []pcb.Feature) {
	a.items = nil
	a.dead = 0
	a.byID = make(map[string][]int, len(features))
	a.queue = nil
	a.frozen = false

	stamp := a.bump()
	var objs []rtreego.Spatial
	for _, f := range features {
		for _, it := range a.wrap(f, stamp) {
			objs = append(objs, it)
		}
		a.markDirty(f.NetCode(), stamp)
	}
	a.tree = rtreego.NewTree(2, treeMinChildren, treeMaxChildren, objs...)
}

// Add wraps f and indexes it. A feature whose ID is already present replaces
// the previous revision.
func (a *Algorithm) Add(f pcb.Feature) {
	stamp := a.bump()
	a.markDirty(f.NetCode(), stamp)
	if a.frozen {
		a.queue = append(a.queue, op{kind: opAdd, feature: f})
		return
	}
	a.add(f, stamp)
}

// Remove drops every item made from the feature with f's ID.
func (a *Algorithm) Remove(f pcb.Feature) {
	stamp := a.bump()
	a.markDirty(f.NetCode(), stamp)
	if a.frozen {
		a.queue = append(a.queue, op{kind: opRemove, feature: f})
		return
	}
	a.remove(f.ID(), stamp)
}

// Update replaces the stored revision of f: a Remove followed by an Add.
func (a *Algorithm) Update(f pcb.Feature) {
	a.Remove(f)
	a.Add(f)
}

// Flush applies mutations queued while frozen and reclaims arena slots once
// more than half of them are dead. It returns the number of applied
// mutations. Flush does nothing while a snapshot is held.
func (a *Algorithm) Flush() int {
	if a.frozen {
		return 0
	}
	n := len(a.queue)
	for _, o := range a.queue {
		stamp := a.Stamp()
		switch o.kind {
		case opAdd:
			a.add(o.feature, stamp)
		case opRemove:
			a.remove(o.feature.ID(), stamp)
		}
	}
	a.queue = nil
	if len(a.items) >= compactMin && a.dead*2 > len(a.items) {
		a.compact()
	}
	return n
}

// Pending returns the number of queued mutations.
func (a *Algorithm) Pending() int { return len(a.queue) }

// Snapshot freezes the arena and returns a read-only view of it for one job.
// Mutations made before Release are queued.
func (a *Algorithm) Snapshot() *View {
	a.frozen = true
	items := slices.Clone(a.items)
	nets := make([]int, len(items))
	for h, it := range items {
		if it != nil {
			nets[h] = it.net
		}
	}
	return &View{
		items: items,
		nets:  nets,
		tree:  a.tree,
		eps:   a.eps,
		stamp: a.Stamp(),
	}
}

// Release thaws the arena. The caller must be sure no job still reads the
// view returned by Snapshot.
func (a *Algorithm) Release() {
	a.frozen = false
}

// Frozen reports whether a snapshot is held.
func (a *Algorithm) Frozen() bool { return a.frozen }

// Len returns the number of live items.
func (a *Algorithm) Len() int { return len(a.items) - a.dead }

// Stamp returns the stamp of the most recent mutation.
func (a *Algorithm) Stamp() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stamp
}

// IsNetDirty reports whether net was mutated since its flags were last
// cleared.
func (a *Algorithm) IsNetDirty(net int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.dirty[net]
	return ok
}

// DirtyNets returns the dirty nets in ascending order.
func (a *Algorithm) DirtyNets() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	nets := make([]int, 0, len(a.dirty))
	for n := range a.dirty {
		nets = append(nets, n)
	}
	slices.Sort(nets)
	return nets
}

// ClearDirtyFlags clears every net whose last mutation is not newer than
// upTo. Nets mutated after the stamp a search consumed stay dirty.
func (a *Algorithm) ClearDirtyFlags(upTo uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for n, s := range a.dirty {
		if s <= upTo {
			delete(a.dirty, n)
		}
	}
}

// DirtyClusters returns the clusters of cs whose net is dirty.
func (a *Algorithm) DirtyClusters(cs *ClusterSet) []*Cluster {
	var out []*Cluster
	for _, c := range cs.clusters {
		if c.net > 0 && a.IsNetDirty(c.net) {
			out = append(out, c)
		}
	}
	return out
}

func (a *Algorithm) bump() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stamp++
	return a.stamp
}

func (a *Algorithm) markDirty(net int, stamp uint64) {
	if net <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty[net] = stamp
}

// wrap appends one item per part of f to the arena.
func (a *Algorithm) wrap(f pcb.Feature, stamp uint64) []*Item {
	parts := f.Parts()
	out := make([]*Item, 0, len(parts))
	for _, p := range parts {
		it := newItem(len(a.items), f, p, stamp)
		a.items = append(a.items, it)
		a.byID[f.ID()] = append(a.byID[f.ID()], it.handle)
		out = append(out, it)
	}
	return out
}

func (a *Algorithm) add(f pcb.Feature, stamp uint64) {
	if _, ok := a.byID[f.ID()]; ok {
		a.remove(f.ID(), stamp)
	}
	for _, it := range a.wrap(f, stamp) {
		a.tree.Insert(it)
	}
}

func (a *Algorithm) remove(id string, stamp uint64) {
	for _, h := range a.byID[id] {
		it := a.items[h]
		a.tree.Delete(it)
		it.valid.Store(false)
		a.items[h] = nil
		a.dead++
		a.markDirty(it.net, stamp)
	}
	delete(a.byID, id)
}

// compact moves live items into a fresh arena, preserving their order, and
// rebuilds the index. Items already handed out in views are left untouched.
func (a *Algorithm) compact() {
	items := make([]*Item, 0, len(a.items)-a.dead)
	byID := make(map[string][]int, len(a.byID))
	objs := make([]rtreego.Spatial, 0, cap(items))
	for _, it := range a.items {
		if it == nil {
			continue
		}
		cp := it.rehome(len(items))
		items = append(items, cp)
		id := cp.feature.ID()
		byID[id] = append(byID[id], cp.handle)
		objs = append(objs, cp)
	}
	a.items = items
	a.byID = byID
	a.dead = 0
	a.tree = rtreego.NewTree(2, treeMinChildren, treeMaxChildren, objs...)
}
