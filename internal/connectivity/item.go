// Package connectivity discovers which copper items are electrically joined.
//
// Board features are wrapped into Items held in a dense arena and indexed by
// bounding box in an R-tree. A cluster search walks the touch relation from
// every unassigned item breadth first and returns an immutable ClusterSet;
// clusters reference items by arena handle only. Mutations made while a job
// holds a snapshot are queued and applied by the next Flush, so a running
// search never sees the arena or the index change under it.
package connectivity

import (
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/papapumpkin/ratsnest/internal/geom"
	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// Item wraps one connectable part of a board feature. Items are immutable
// after creation apart from the validity flag, which drops to false when the
// feature is removed.
type Item struct {
	handle  int
	feature pcb.Feature
	part    int
	kind    pcb.Kind
	net     int
	shape   geom.Shape
	anchors []geom.Point
	bbox    geom.Box
	layers  geom.LayerSet
	stamp   uint64
	rect    rtreego.Rect
	valid   atomic.Bool
}

func newItem(handle int, f pcb.Feature, p pcb.Part, stamp uint64) *Item {
	it := &Item{
		handle:  handle,
		feature: f,
		part:    p.Index,
		kind:    f.Kind(),
		net:     f.NetCode(),
		shape:   p.Shape,
		anchors: p.Anchors,
		bbox:    p.Shape.BBox(),
		layers:  f.Layers(),
		stamp:   stamp,
	}
	it.rect = boxRect(it.bbox)
	it.valid.Store(true)
	return it
}

// rehome returns a copy of it stored under a new handle.
func (it *Item) rehome(handle int) *Item {
	cp := &Item{
		handle:  handle,
		feature: it.feature,
		part:    it.part,
		kind:    it.kind,
		net:     it.net,
		shape:   it.shape,
		anchors: it.anchors,
		bbox:    it.bbox,
		layers:  it.layers,
		stamp:   it.stamp,
		rect:    it.rect,
	}
	cp.valid.Store(it.valid.Load())
	return cp
}

// Handle returns the arena index of the item.
func (it *Item) Handle() int { return it.handle }

// Feature returns the board feature the item was made from.
func (it *Item) Feature() pcb.Feature { return it.feature }

// Part returns the index of the wrapped part within its feature.
func (it *Item) Part() int { return it.part }

// Kind returns the kind of the originating feature.
func (it *Item) Kind() pcb.Kind { return it.kind }

// Net returns the net code the feature carries, before inheritance.
func (it *Item) Net() int { return it.net }

// Shape returns the copper outline of the part.
func (it *Item) Shape() geom.Shape { return it.shape }

// Anchors returns the points where contact with the item can be made.
func (it *Item) Anchors() []geom.Point { return it.anchors }

// BBox returns the bounding box of the part.
func (it *Item) BBox() geom.Box { return it.bbox }

// Layers returns the copper layers the item occupies.
func (it *Item) Layers() geom.LayerSet { return it.layers }

// Stamp returns the mutation stamp at which the item was added.
func (it *Item) Stamp() uint64 { return it.stamp }

// Valid reports whether the item is still part of the board.
func (it *Item) Valid() bool { return it.valid.Load() }

// Bounds implements rtreego.Spatial.
func (it *Item) Bounds() rtreego.Rect { return it.rect }

// Touches reports whether two items are electrically joined: they must share
// a layer and both carry anchors. Two area items connect when their shapes
// overlap; otherwise an anchor of one has to lie on the other.
func Touches(a, b *Item, eps int64) bool {
	if !a.layers.Overlaps(b.layers) {
		return false
	}
	if len(a.anchors) == 0 || len(b.anchors) == 0 {
		return false
	}
	if pcb.IsArea(a.kind) && pcb.IsArea(b.kind) {
		return geom.Overlaps(a.shape, b.shape, eps)
	}
	for _, p := range a.anchors {
		if b.shape.Contains(p, eps) {
			return true
		}
	}
	for _, p := range b.anchors {
		if a.shape.Contains(p, eps) {
			return true
		}
	}
	return false
}

// boxRect converts an inclusive integer box into the half-open float
// rectangle the R-tree stores. Every side is at least one unit long.
func boxRect(b geom.Box) rtreego.Rect {
	r, _ := rtreego.NewRect(
		rtreego.Point{float64(b.Min.X), float64(b.Min.Y)},
		[]float64{float64(b.Max.X-b.Min.X) + 1, float64(b.Max.Y-b.Min.Y) + 1},
	)
	return r
}

// queryRect is the search window for neighbours of it. The R-tree treats
// rectangles that only share an edge as disjoint, hence the extra unit.
func queryRect(it *Item, eps int64) rtreego.Rect {
	return boxRect(it.bbox.Inflate(eps + 1))
}
