// Package landmarks holds fixed-topology facial landmark sets in frame pixel
// coordinates, addressable by index or by semantic name.
package landmarks

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownLandmark is wrapped by every failed name lookup.
var ErrUnknownLandmark = errors.New("landmarks: unknown landmark")

// LookupError reports a name that the active topology does not define.
type LookupError struct {
	Name     string
	Topology string
	Want3D   bool
}

func (e *LookupError) Error() string {
	if e.Want3D {
		return fmt.Sprintf("landmarks: %q has no canonical 3D coordinate in %s", e.Name, e.Topology)
	}
	return fmt.Sprintf("landmarks: %q is not defined in %s", e.Name, e.Topology)
}

func (e *LookupError) Unwrap() error {
	return ErrUnknownLandmark
}

// Point is a 2D position in frame pixels.
type Point struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Map is one frame's landmark set. It never changes after construction;
// derived maps (smoothed, transformed) are new instances.
type Map struct {
	topo   *Topology
	points []Point
}

// NewMap copies points into a new map. The count must match the topology.
func NewMap(topo *Topology, points []Point) (*Map, error) {
	if topo == nil {
		return nil, errors.New("landmarks: nil topology")
	}
	if len(points) != topo.size {
		return nil, fmt.Errorf("landmarks: %s expects %d points, got %d", topo.name, topo.size, len(points))
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	return &Map{topo: topo, points: pts}, nil
}

// Topology returns the map's topology.
func (m *Map) Topology() *Topology {
	return m.topo
}

// Len returns the number of points.
func (m *Map) Len() int {
	return len(m.points)
}

// At returns the point at index i.
func (m *Map) At(i int) Point {
	return m.points[i]
}

// Points returns a copy of all points in index order.
func (m *Map) Points() []Point {
	out := make([]Point, len(m.points))
	copy(out, m.points)
	return out
}

// Lookup returns the point for a semantic name.
func (m *Map) Lookup(name string) (Point, error) {
	i, err := m.topo.Index(name)
	if err != nil {
		return Point{}, err
	}
	return m.points[i], nil
}

// Get returns the point for a semantic name and panics if the topology does
// not define it. Callers validate names against the topology up front.
func (m *Map) Get(name string) Point {
	p, err := m.Lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Correspondences returns the observed 2D points and their canonical 3D
// counterparts, in the topology's canonical order.
func (m *Map) Correspondences() ([]Point, []r3.Vec) {
	names := m.topo.order3D
	image := make([]Point, len(names))
	object := make([]r3.Vec, len(names))
	for i, n := range names {
		image[i] = m.points[m.topo.index[n]]
		object[i] = m.topo.canonical[n]
	}
	return image, object
}

// Transform returns a new map with fn applied to every point.
func (m *Map) Transform(fn func(Point) Point) *Map {
	pts := make([]Point, len(m.points))
	for i, p := range m.points {
		pts[i] = fn(p)
	}
	return &Map{topo: m.topo, points: pts}
}

// Bounds returns the tight box around all points.
func (m *Map) Bounds() (lo, hi Point) {
	lo, hi = m.points[0], m.points[0]
	for _, p := range m.points[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}
