// Package pcb models the board features the connectivity engine consumes.
// Features are read-only to the engine: it derives everything it needs
// (anchors, shapes, layers, net identity) through the Feature interface.
package pcb

import "github.com/papapumpkin/ratsnest/internal/geom"

// Kind identifies the variant of a Feature.
type Kind int

const (
	KindPad   Kind = iota // component pad
	KindTrack             // straight track segment
	KindVia               // plated through via
	KindZone              // filled copper zone
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindPad:
		return "pad"
	case KindTrack:
		return "track"
	case KindVia:
		return "via"
	case KindZone:
		return "zone"
	default:
		return "unknown"
	}
}

// Part is one connectable piece of a feature: a pad, a track or a via has
// exactly one, a zone has one per filled outline.
type Part struct {
	Index   int
	Shape   geom.Shape
	Anchors []geom.Point
}

// Feature is a board item that can carry copper. The set of implementations
// is closed: Pad, Track, Via and Zone. Each one supplies its own anchor
// extraction through Parts.
type Feature interface {
	ID() string
	Kind() Kind
	NetCode() int
	Layers() geom.LayerSet
	Parts() []Part
	feature()
}

// Definitive reports whether f carries an authoritative net: pads with a
// positive net code decide the net of whatever they touch.
func Definitive(f Feature) bool {
	return f.Kind() == KindPad && f.NetCode() > 0
}

// Inherits reports whether f has no net of its own and should adopt the net
// of the copper it touches.
func Inherits(f Feature) bool {
	return f.Kind() != KindPad && f.NetCode() <= 0
}

// IsArea reports whether features of kind k connect by shape overlap rather
// than by anchor contact.
func IsArea(k Kind) bool {
	return k != KindTrack
}

// PadShape selects the copper outline of a pad.
type PadShape int

const (
	PadCircle PadShape = iota // round pad, diameter = size X
	PadRect                   // axis-aligned rectangle
)

// Pad is a component pad. Its single anchor is the pad centre.
type Pad struct {
	id     string
	net    int
	layers geom.LayerSet
	at     geom.Point
	shape  PadShape
	w, h   int64
}

// NewPad returns a pad at the given position.
func NewPad(id string, net int, layers geom.LayerSet, at geom.Point, shape PadShape, w, h int64) *Pad {
	return &Pad{id: id, net: net, layers: layers, at: at, shape: shape, w: w, h: h}
}

// ID returns the pad reference, e.g. "U1.3".
func (p *Pad) ID() string { return p.id }

// Kind returns KindPad.
func (p *Pad) Kind() Kind { return KindPad }

// NetCode returns the pad net.
func (p *Pad) NetCode() int { return p.net }

// Layers returns the copper layers the pad occupies.
func (p *Pad) Layers() geom.LayerSet { return p.layers }

// Position returns the pad centre.
func (p *Pad) Position() geom.Point { return p.at }

// Parts returns the pad outline anchored at its centre.
func (p *Pad) Parts() []Part {
	shape := geom.Circle(p.at, p.w/2)
	if p.shape == PadRect {
		shape = geom.Rect(p.at, p.w, p.h)
	}
	return []Part{{Shape: shape, Anchors: []geom.Point{p.at}}}
}

func (p *Pad) feature() {}

// Track is a straight copper segment on one layer.
type Track struct {
	id         string
	net        int
	layer      int
	start, end geom.Point
	width      int64
}

// NewTrack returns a track segment.
func NewTrack(id string, net, layer int, start, end geom.Point, width int64) *Track {
	return &Track{id: id, net: net, layer: layer, start: start, end: end, width: width}
}

// ID returns the track identifier.
func (t *Track) ID() string { return t.id }

// Kind returns KindTrack.
func (t *Track) Kind() Kind { return KindTrack }

// NetCode returns the track net.
func (t *Track) NetCode() int { return t.net }

// Layers returns the single layer of the track.
func (t *Track) Layers() geom.LayerSet { return geom.Layers(t.layer) }

// Endpoints returns the start and end of the track.
func (t *Track) Endpoints() (geom.Point, geom.Point) { return t.start, t.end }

// Parts returns the track body anchored at both ends.
func (t *Track) Parts() []Part {
	return []Part{{
		Shape:   geom.Segment(t.start, t.end, t.width),
		Anchors: []geom.Point{t.start, t.end},
	}}
}

func (t *Track) feature() {}

// Via is a round plated hole joining layers.
type Via struct {
	id       string
	net      int
	layers   geom.LayerSet
	at       geom.Point
	diameter int64
}

// NewVia returns a via spanning the given layers.
func NewVia(id string, net int, layers geom.LayerSet, at geom.Point, diameter int64) *Via {
	return &Via{id: id, net: net, layers: layers, at: at, diameter: diameter}
}

// ID returns the via identifier.
func (v *Via) ID() string { return v.id }

// Kind returns KindVia.
func (v *Via) Kind() Kind { return KindVia }

// NetCode returns the via net.
func (v *Via) NetCode() int { return v.net }

// Layers returns the layers the via spans.
func (v *Via) Layers() geom.LayerSet { return v.layers }

// Parts returns the via barrel anchored at its centre.
func (v *Via) Parts() []Part {
	return []Part{{Shape: geom.Circle(v.at, v.diameter/2), Anchors: []geom.Point{v.at}}}
}

func (v *Via) feature() {}

// Zone is a copper fill on one layer, made of one or more filled outlines.
// A zone without a net adopts the net of the copper it touches.
type Zone struct {
	id       string
	net      int
	layer    int
	outlines [][]geom.Point
}

// NewZone returns a zone with the given filled outlines.
func NewZone(id string, net, layer int, outlines ...[]geom.Point) *Zone {
	return &Zone{id: id, net: net, layer: layer, outlines: outlines}
}

// ID returns the zone identifier.
func (z *Zone) ID() string { return z.id }

// Kind returns KindZone.
func (z *Zone) Kind() Kind { return KindZone }

// NetCode returns the zone net, or 0 for an unassigned fill.
func (z *Zone) NetCode() int { return z.net }

// Layers returns the zone layer.
func (z *Zone) Layers() geom.LayerSet { return geom.Layers(z.layer) }

// OutlineCount returns the number of filled outlines.
func (z *Zone) OutlineCount() int { return len(z.outlines) }

// Parts returns one part per filled outline, anchored at its first vertex.
// An empty outline has no anchor and therefore connects to nothing.
func (z *Zone) Parts() []Part {
	parts := make([]Part, 0, len(z.outlines))
	for i, o := range z.outlines {
		var anchors []geom.Point
		if len(o) > 0 {
			anchors = []geom.Point{o[0]}
		}
		parts = append(parts, Part{Index: i, Shape: geom.Polygon(o), Anchors: anchors})
	}
	return parts
}

func (z *Zone) feature() {}
