package landmarks

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Topology describes a fixed landmark layout: how many points a predictor
// emits, which semantic names point at which index, and which names have a
// known position on the canonical 3D head model.
//
// A Topology is immutable once built and is shared by every Map that uses it.
type Topology struct {
	name      string
	size      int
	index     map[string]int
	canonical map[string]r3.Vec
	order3D   []string
}

// NewTopology builds a topology. Every index must be within [0, size) and
// every canonical name must also be a named landmark.
func NewTopology(name string, size int, index map[string]int, canonical map[string]r3.Vec) (*Topology, error) {
	if size <= 0 {
		return nil, fmt.Errorf("topology %s: size must be positive, got %d", name, size)
	}

	t := &Topology{
		name:      name,
		size:      size,
		index:     make(map[string]int, len(index)),
		canonical: make(map[string]r3.Vec, len(canonical)),
	}

	for n, i := range index {
		if i < 0 || i >= size {
			return nil, fmt.Errorf("topology %s: landmark %q index %d out of range", name, n, i)
		}
		t.index[n] = i
	}

	for n, p := range canonical {
		if _, ok := t.index[n]; !ok {
			return nil, fmt.Errorf("topology %s: canonical point %q is not a named landmark", name, n)
		}
		t.canonical[n] = p
		t.order3D = append(t.order3D, n)
	}

	// Solvers see correspondences in a stable order regardless of map iteration.
	sort.Slice(t.order3D, func(i, j int) bool {
		return t.index[t.order3D[i]] < t.index[t.order3D[j]]
	})

	return t, nil
}

// MustTopology is NewTopology for package-level tables.
func MustTopology(name string, size int, index map[string]int, canonical map[string]r3.Vec) *Topology {
	t, err := NewTopology(name, size, index, canonical)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the topology name.
func (t *Topology) Name() string {
	return t.name
}

// Size returns the number of points in every map of this topology.
func (t *Topology) Size() int {
	return t.size
}

// Index returns the point index for a semantic name.
func (t *Topology) Index(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return 0, &LookupError{Name: name, Topology: t.name}
	}
	return i, nil
}

// Has reports whether name is a named landmark.
func (t *Topology) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Names returns all landmark names ordered by index.
func (t *Topology) Names() []string {
	names := make([]string, 0, len(t.index))
	for n := range t.index {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if t.index[names[i]] == t.index[names[j]] {
			return names[i] < names[j]
		}
		return t.index[names[i]] < t.index[names[j]]
	})
	return names
}

// Canonical returns the canonical 3D coordinate for a name.
func (t *Topology) Canonical(name string) (r3.Vec, error) {
	p, ok := t.canonical[name]
	if !ok {
		return r3.Vec{}, &LookupError{Name: name, Topology: t.name, Want3D: true}
	}
	return p, nil
}

// CanonicalNames returns the names with canonical 3D coordinates, ordered by index.
func (t *Topology) CanonicalNames() []string {
	out := make([]string, len(t.order3D))
	copy(out, t.order3D)
	return out
}

// IBUG68 is the 68-point iBUG / dlib layout.
//
// Canonical coordinates use the nose bottom as origin, +x toward the ear
// on the right of the image, +y up, +z out of the face.
// One unit is roughly half the face width.
var IBUG68 = MustTopology("ibug68", 68,
	map[string]int{
		"left_ear":          0,
		"right_ear":         16,
		"left_ear_bottom":   2,
		"right_ear_bottom":  14,
		"jaw_left":          4,
		"jaw_right":         12,
		"left_eye_left":     36,
		"left_eye_right":    39,
		"right_eye_left":    42,
		"right_eye_right":   45,
		"left_brow_center":  19,
		"right_brow_center": 24,
		"nose_top":          27,
		"nose_left":         31,
		"nose_right":        35,
		"nose_tip":          30,
		"nose_bottom":       33,
		"mouth_left":        48,
		"mouth_right":       64,
		"chin_left":         7,
		"chin_right":        9,
	},
	map[string]r3.Vec{
		"nose_bottom":      {X: 0, Y: 0, Z: 0},
		"left_ear":         {X: -1, Y: 0.6, Z: -1},
		"right_ear":        {X: 1, Y: 0.6, Z: -1},
		"left_ear_bottom":  {X: -1, Y: 0, Z: -1},
		"right_ear_bottom": {X: 1, Y: 0, Z: -1},
		"jaw_left":         {X: -0.6, Y: -0.45, Z: -0.5},
		"jaw_right":        {X: 0.6, Y: -0.45, Z: -0.5},
		"chin_left":        {X: -0.2, Y: -0.9, Z: 0},
		"chin_right":       {X: 0.2, Y: -0.9, Z: 0},
		"left_eye_left":    {X: -0.6, Y: 0.6, Z: 0},
		"right_eye_right":  {X: 0.6, Y: 0.6, Z: 0},
	},
)
