// Package geom provides the integer geometry the connectivity engine works in:
// board-unit points, bounding boxes, copper layer sets and the touch/overlap
// capability of item shapes.
package geom

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ErrUnknownLayer is returned when a layer name cannot be parsed.
var ErrUnknownLayer = errors.New("unknown layer")

// Point is a 2-D coordinate in integer board units. Coordinates stay within
// ±2^30 so that products of coordinate differences fit in an int64.
type Point struct {
	X int64 `toml:"x"`
	Y int64 `toml:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y int64) Point {
	return Point{X: x, Y: y}
}

// DistSq returns the squared euclidean distance to q.
func (p Point) DistSq(q Point) int64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// String formats the point as "(x,y)".
func (p Point) String() string {
	return "(" + strconv.FormatInt(p.X, 10) + "," + strconv.FormatInt(p.Y, 10) + ")"
}

// Box is an axis-aligned bounding box. Both corners are inclusive.
type Box struct {
	Min Point
	Max Point
}

// BoxOf returns the smallest box containing all points. An empty input
// yields the zero box.
func BoxOf(pts ...Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Min.X = min(b.Min.X, p.X)
		b.Min.Y = min(b.Min.Y, p.Y)
		b.Max.X = max(b.Max.X, p.X)
		b.Max.Y = max(b.Max.Y, p.Y)
	}
	return b
}

// Inflate grows the box by d on every side.
func (b Box) Inflate(d int64) Box {
	return Box{
		Min: Point{X: b.Min.X - d, Y: b.Min.Y - d},
		Max: Point{X: b.Max.X + d, Y: b.Max.Y + d},
	}
}

// Intersects reports whether two boxes share at least one point.
func (b Box) Intersects(o Box) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		Min: Point{X: min(b.Min.X, o.Min.X), Y: min(b.Min.Y, o.Min.Y)},
		Max: Point{X: max(b.Max.X, o.Max.X), Y: max(b.Max.Y, o.Max.Y)},
	}
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// LayerSet is a bitmask of copper layers. Layer 0 is the front copper and
// layer 31 the back copper; inner layers sit between.
type LayerSet uint64

// Well-known copper layers.
const (
	FrontCu = 0
	BackCu  = 31
)

// AllCopper covers every copper layer a board can carry.
const AllCopper LayerSet = 1<<32 - 1

// Layers builds a set from layer numbers.
func Layers(ids ...int) LayerSet {
	var s LayerSet
	for _, id := range ids {
		s |= 1 << uint(id)
	}
	return s
}

// Has reports whether layer id is in the set.
func (s LayerSet) Has(id int) bool {
	return s&(1<<uint(id)) != 0
}

// Overlaps reports whether the two sets share a layer.
func (s LayerSet) Overlaps(o LayerSet) bool {
	return s&o != 0
}

// Count returns the number of layers in the set.
func (s LayerSet) Count() int {
	return bits.OnesCount64(uint64(s))
}

// ParseLayer maps a layer name ("F.Cu", "B.Cu", "In3.Cu") to its number.
func ParseLayer(name string) (int, error) {
	switch name {
	case "F.Cu":
		return FrontCu, nil
	case "B.Cu":
		return BackCu, nil
	}
	if strings.HasPrefix(name, "In") && strings.HasSuffix(name, ".Cu") {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "In"), ".Cu"))
		if err == nil && n >= 1 && n < BackCu {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
}

// ParseLayers parses a list of layer names into a set. "*.Cu" selects every
// copper layer.
func ParseLayers(names []string) (LayerSet, error) {
	var s LayerSet
	for _, n := range names {
		if n == "*.Cu" {
			s |= AllCopper
			continue
		}
		id, err := ParseLayer(n)
		if err != nil {
			return 0, err
		}
		s |= Layers(id)
	}
	return s, nil
}
