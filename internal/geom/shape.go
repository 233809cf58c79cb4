package geom

import "math/bits"

// ShapeKind tags the variant held by a Shape.
type ShapeKind int

const (
	// ShapeCapsule is a segment swept by a radius. A circle is a capsule
	// whose two ends coincide.
	ShapeCapsule ShapeKind = iota
	// ShapePolygon is a simple filled polygon.
	ShapePolygon
)

// Shape is the copper outline of one connectable piece. The connectivity
// engine only asks two questions of it: does it contain a point, and does it
// overlap another shape.
type Shape struct {
	Kind   ShapeKind
	A, B   Point   // capsule spine
	Radius int64   // capsule half width
	Poly   []Point // polygon vertices, implicitly closed
}

// Circle returns a round shape of radius r centred on c.
func Circle(c Point, r int64) Shape {
	return Shape{Kind: ShapeCapsule, A: c, B: c, Radius: r}
}

// Segment returns a track-like shape from a to b with the given full width.
func Segment(a, b Point, width int64) Shape {
	return Shape{Kind: ShapeCapsule, A: a, B: b, Radius: width / 2}
}

// Rect returns an axis-aligned rectangle of size w x h centred on c.
func Rect(c Point, w, h int64) Shape {
	hw, hh := w/2, h/2
	return Polygon([]Point{
		{X: c.X - hw, Y: c.Y - hh},
		{X: c.X + hw, Y: c.Y - hh},
		{X: c.X + hw, Y: c.Y + hh},
		{X: c.X - hw, Y: c.Y + hh},
	})
}

// Polygon returns a filled polygon shape. The slice is not copied.
func Polygon(pts []Point) Shape {
	return Shape{Kind: ShapePolygon, Poly: pts}
}

// BBox returns the bounding box of the shape.
func (s Shape) BBox() Box {
	if s.Kind == ShapePolygon {
		return BoxOf(s.Poly...)
	}
	return BoxOf(s.A, s.B).Inflate(s.Radius)
}

// Contains reports whether p lies inside the shape grown by margin.
func (s Shape) Contains(p Point, margin int64) bool {
	if s.Kind == ShapePolygon {
		return insidePolygon(s.Poly, p) || nearPolyline(p, s.Poly, margin)
	}
	return nearSegment(p, s.A, s.B, s.Radius+margin)
}

// Overlaps reports whether two shapes come within margin of each other.
func Overlaps(a, b Shape, margin int64) bool {
	switch {
	case a.Kind == ShapeCapsule && b.Kind == ShapeCapsule:
		return segmentsNear(a.A, a.B, b.A, b.B, a.Radius+b.Radius+margin)
	case a.Kind == ShapeCapsule:
		return capsuleOverlapsPolygon(a, b.Poly, margin)
	case b.Kind == ShapeCapsule:
		return capsuleOverlapsPolygon(b, a.Poly, margin)
	}
	if len(a.Poly) == 0 || len(b.Poly) == 0 {
		return false
	}
	if insidePolygon(b.Poly, a.Poly[0]) || insidePolygon(a.Poly, b.Poly[0]) {
		return true
	}
	n := len(a.Poly)
	for i := range a.Poly {
		if segmentNearPolyline(a.Poly[i], a.Poly[(i+1)%n], b.Poly, margin) {
			return true
		}
	}
	return false
}

func capsuleOverlapsPolygon(c Shape, poly []Point, margin int64) bool {
	if len(poly) == 0 {
		return false
	}
	return insidePolygon(poly, c.A) || segmentNearPolyline(c.A, c.B, poly, c.Radius+margin)
}

// insidePolygon is an even-odd ray cast in integer arithmetic. Points on the
// boundary may land on either side; callers pair it with an edge test.
func insidePolygon(poly []Point, p Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			// p is left of the edge crossing when the orientation of
			// (a, b, p) agrees with the edge's vertical direction.
			if c := cross(a, b, p); c != 0 && (c > 0) == (b.Y > a.Y) {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// nearSegment reports whether p is within r of the segment ab. The
// comparison is exact: the perpendicular case compares cross^2 against
// r^2*|ab|^2 in 128 bits.
func nearSegment(p, a, b Point, r int64) bool {
	if r < 0 {
		return false
	}
	rr := r * r
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	t := (p.X-a.X)*dx + (p.Y-a.Y)*dy
	switch {
	case l2 == 0 || t <= 0:
		return p.DistSq(a) <= rr
	case t >= l2:
		return p.DistSq(b) <= rr
	}
	return squareAtMost(cross(a, b, p), rr, l2)
}

// squareAtMost reports whether c*c <= x*y for non-negative x and y.
func squareAtMost(c, x, y int64) bool {
	uc := uint64(c)
	if c < 0 {
		uc = uint64(-c)
	}
	ch, cl := bits.Mul64(uc, uc)
	h, l := bits.Mul64(uint64(x), uint64(y))
	return ch < h || (ch == h && cl <= l)
}

// segmentsNear reports whether segments ab and cd come within r.
func segmentsNear(a, b, c, d Point, r int64) bool {
	if segmentsIntersect(a, b, c, d) {
		return r >= 0
	}
	return nearSegment(a, c, d, r) || nearSegment(b, c, d, r) ||
		nearSegment(c, a, b, r) || nearSegment(d, a, b, r)
}

func nearPolyline(p Point, poly []Point, r int64) bool {
	n := len(poly)
	for i := range poly {
		if nearSegment(p, poly[i], poly[(i+1)%n], r) {
			return true
		}
	}
	return false
}

func segmentNearPolyline(a, b Point, poly []Point, r int64) bool {
	n := len(poly)
	for i := range poly {
		if segmentsNear(a, b, poly[i], poly[(i+1)%n], r) {
			return true
		}
	}
	return false
}

func cross(o, a, b Point) int64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(p, a, b Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

func segmentsIntersect(a, b, c, d Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(a, c, d):
		return true
	case d2 == 0 && onSegment(b, c, d):
		return true
	case d3 == 0 && onSegment(c, a, b):
		return true
	case d4 == 0 && onSegment(d, a, b):
		return true
	}
	return false
}
