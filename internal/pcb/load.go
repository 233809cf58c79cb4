package pcb

import (
	"errors"
	"fmt"
	"io"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/ratsnest/internal/geom"
)

type fileNet struct {
	Code int    `toml:"code"`
	Name string `toml:"name"`
}

type filePad struct {
	ID     string   `toml:"id"`
	Net    int      `toml:"net"`
	Layers []string `toml:"layers"`
	At     []int64  `toml:"at"`
	Shape  string   `toml:"shape"`
	Size   []int64  `toml:"size"`
}

type fileTrack struct {
	ID    string  `toml:"id"`
	Net   int     `toml:"net"`
	Layer string  `toml:"layer"`
	Start []int64 `toml:"start"`
	End   []int64 `toml:"end"`
	Width int64   `toml:"width"`
}

type fileVia struct {
	ID       string   `toml:"id"`
	Net      int      `toml:"net"`
	Layers   []string `toml:"layers"`
	At       []int64  `toml:"at"`
	Diameter int64    `toml:"diameter"`
}

type fileZone struct {
	ID       string      `toml:"id"`
	Net      int         `toml:"net"`
	Layer    string      `toml:"layer"`
	Outlines [][][]int64 `toml:"outlines"`
}

// boardFile is the on-disk TOML layout of a board description.
type boardFile struct {
	Nets   []fileNet   `toml:"net"`
	Pads   []filePad   `toml:"pad"`
	Tracks []fileTrack `toml:"track"`
	Vias   []fileVia   `toml:"via"`
	Zones  []fileZone  `toml:"zone"`
}

// Load reads a TOML board description from path.
func Load(path string) (*Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pcb: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, path)
}

// Decode parses a TOML board description. Features are returned pads first,
// then tracks, vias and zones, each in file order. All validation problems
// are reported together as joined *ValidationError values.
func Decode(r io.Reader, source string) (*Board, error) {
	var bf boardFile
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bf); err != nil {
		return nil, fmt.Errorf("pcb: decode %s: %w", source, err)
	}

	c := converter{source: source, ids: make(map[string]bool)}
	b := &Board{Nets: make(map[int]string, len(bf.Nets))}
	for _, n := range bf.Nets {
		if n.Code <= 0 {
			c.fail("", "code", fmt.Errorf("%w: net code %d must be positive", ErrInvalidFeature, n.Code))
			continue
		}
		b.Nets[n.Code] = n.Name
	}
	for _, p := range bf.Pads {
		if f := c.pad(p); f != nil {
			b.Features = append(b.Features, f)
		}
	}
	for _, t := range bf.Tracks {
		if f := c.track(t); f != nil {
			b.Features = append(b.Features, f)
		}
	}
	for _, v := range bf.Vias {
		if f := c.via(v); f != nil {
			b.Features = append(b.Features, f)
		}
	}
	for _, z := range bf.Zones {
		if f := c.zone(z); f != nil {
			b.Features = append(b.Features, f)
		}
	}
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}
	return b, nil
}

// converter turns file records into features, collecting validation errors.
type converter struct {
	source string
	ids    map[string]bool
	errs   []error
}

func (c *converter) fail(id, field string, err error) {
	c.errs = append(c.errs, &ValidationError{Source: c.source, FeatureID: id, Field: field, Err: err})
}

// claim registers id and reports whether the record may be converted.
func (c *converter) claim(id string) bool {
	if id == "" {
		c.fail("", "id", ErrMissingField)
		return false
	}
	if c.ids[id] {
		c.fail(id, "id", ErrDuplicateID)
		return false
	}
	c.ids[id] = true
	return true
}

func (c *converter) point(id, field string, v []int64) (geom.Point, bool) {
	if len(v) != 2 {
		c.fail(id, field, fmt.Errorf("%w: want [x, y], got %d values", ErrInvalidFeature, len(v)))
		return geom.Point{}, false
	}
	return geom.Pt(v[0], v[1]), true
}

func (c *converter) layers(id string, names []string) (geom.LayerSet, bool) {
	if len(names) == 0 {
		c.fail(id, "layers", ErrMissingField)
		return 0, false
	}
	s, err := geom.ParseLayers(names)
	if err != nil {
		c.fail(id, "layers", err)
		return 0, false
	}
	return s, true
}

func (c *converter) layer(id, name string) (int, bool) {
	l, err := geom.ParseLayer(name)
	if err != nil {
		c.fail(id, "layer", err)
		return 0, false
	}
	return l, true
}

func (c *converter) pad(p filePad) Feature {
	if !c.claim(p.ID) {
		return nil
	}
	layers, okL := c.layers(p.ID, p.Layers)
	at, okA := c.point(p.ID, "at", p.At)
	if !okL || !okA {
		return nil
	}
	shape := PadCircle
	switch p.Shape {
	case "", "circle":
	case "rect":
		shape = PadRect
	default:
		c.fail(p.ID, "shape", fmt.Errorf("%w: unknown pad shape %q", ErrInvalidFeature, p.Shape))
		return nil
	}
	if len(p.Size) == 0 || len(p.Size) > 2 || p.Size[0] <= 0 {
		c.fail(p.ID, "size", fmt.Errorf("%w: size must be [w] or [w, h] with positive w", ErrInvalidFeature))
		return nil
	}
	w, h := p.Size[0], p.Size[0]
	if len(p.Size) == 2 {
		h = p.Size[1]
	}
	return NewPad(p.ID, p.Net, layers, at, shape, w, h)
}

func (c *converter) track(t fileTrack) Feature {
	if !c.claim(t.ID) {
		return nil
	}
	layer, okL := c.layer(t.ID, t.Layer)
	start, okS := c.point(t.ID, "start", t.Start)
	end, okE := c.point(t.ID, "end", t.End)
	if !okL || !okS || !okE {
		return nil
	}
	if t.Width <= 0 {
		c.fail(t.ID, "width", fmt.Errorf("%w: width must be positive", ErrInvalidFeature))
		return nil
	}
	return NewTrack(t.ID, t.Net, layer, start, end, t.Width)
}

func (c *converter) via(v fileVia) Feature {
	if !c.claim(v.ID) {
		return nil
	}
	names := v.Layers
	if len(names) == 0 {
		names = []string{"*.Cu"}
	}
	layers, okL := c.layers(v.ID, names)
	at, okA := c.point(v.ID, "at", v.At)
	if !okL || !okA {
		return nil
	}
	if v.Diameter <= 0 {
		c.fail(v.ID, "diameter", fmt.Errorf("%w: diameter must be positive", ErrInvalidFeature))
		return nil
	}
	return NewVia(v.ID, v.Net, layers, at, v.Diameter)
}

func (c *converter) zone(z fileZone) Feature {
	if !c.claim(z.ID) {
		return nil
	}
	layer, ok := c.layer(z.ID, z.Layer)
	if !ok {
		return nil
	}
	outlines := make([][]geom.Point, 0, len(z.Outlines))
	for i, o := range z.Outlines {
		pts := make([]geom.Point, 0, len(o))
		for _, v := range o {
			p, ok := c.point(z.ID, fmt.Sprintf("outlines[%d]", i), v)
			if !ok {
				return nil
			}
			pts = append(pts, p)
		}
		outlines = append(outlines, pts)
	}
	return NewZone(z.ID, z.Net, layer, outlines...)
}
