package render

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmptyMesh is returned for meshes without triangles.
var ErrEmptyMesh = errors.New("render: mesh has no triangles")

// Mesh is an indexed triangle mesh with one flat colour.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int
	Color    color.RGBA
}

// Validate checks that the mesh has triangles and every index is in range.
func (m *Mesh) Validate() error {
	if m == nil || len(m.Faces) == 0 {
		return ErrEmptyMesh
	}
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(m.Vertices) {
				return fmt.Errorf("render: face %d references vertex %d of %d", i, idx, len(m.Vertices))
			}
		}
	}
	return nil
}

// Bounds returns the axis-aligned box around all vertices.
func (m *Mesh) Bounds() (lo, hi r3.Vec) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi
}

// Center returns the middle of the bounding box.
func (m *Mesh) Center() r3.Vec {
	lo, hi := m.Bounds()
	return r3.Scale(0.5, r3.Add(lo, hi))
}

// Placement positions a mesh in model space: scale first, then rotate by
// Euler angles in degrees (X, then Y, then Z), then translate.
type Placement struct {
	Scale    float64
	Rotation r3.Vec
	Offset   r3.Vec
}

// Place returns a transformed copy of m.
func (m *Mesh) Place(p Placement) *Mesh {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	rot := eulerXYZ(p.Rotation)

	out := &Mesh{
		Vertices: make([]r3.Vec, len(m.Vertices)),
		Faces:    append([][3]int(nil), m.Faces...),
		Color:    m.Color,
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = r3.Add(rot(r3.Scale(scale, v)), p.Offset)
	}
	return out
}

func eulerXYZ(deg r3.Vec) func(r3.Vec) r3.Vec {
	sx, cx := math.Sincos(deg.X * math.Pi / 180)
	sy, cy := math.Sincos(deg.Y * math.Pi / 180)
	sz, cz := math.Sincos(deg.Z * math.Pi / 180)
	return func(v r3.Vec) r3.Vec {
		v = r3.Vec{X: v.X, Y: cx*v.Y - sx*v.Z, Z: sx*v.Y + cx*v.Z}
		v = r3.Vec{X: cy*v.X + sy*v.Z, Y: v.Y, Z: -sy*v.X + cy*v.Z}
		return r3.Vec{X: cz*v.X - sz*v.Y, Y: sz*v.X + cz*v.Y, Z: v.Z}
	}
}

// Torus builds a ring around the Z axis in the XY plane.
func Torus(major, minor float64, rings, sides int, c color.RGBA) *Mesh {
	rings = max(rings, 3)
	sides = max(sides, 3)

	m := &Mesh{Color: c}
	for i := 0; i < rings; i++ {
		u := 2 * math.Pi * float64(i) / float64(rings)
		su, cu := math.Sincos(u)
		for j := 0; j < sides; j++ {
			v := 2 * math.Pi * float64(j) / float64(sides)
			sv, cv := math.Sincos(v)
			r := major + minor*cv
			m.Vertices = append(m.Vertices, r3.Vec{X: r * cu, Y: r * su, Z: minor * sv})
		}
	}
	for i := 0; i < rings; i++ {
		for j := 0; j < sides; j++ {
			a := i*sides + j
			b := ((i+1)%rings)*sides + j
			e := ((i+1)%rings)*sides + (j+1)%sides
			d := i*sides + (j+1)%sides
			m.Faces = append(m.Faces, [3]int{a, b, e}, [3]int{a, e, d})
		}
	}
	return m
}

// Cap builds a baseball cap: a dome of radius r opening downwards (-Y) and
// a half-disc brim reaching brim past the dome towards +Z.
func Cap(r, brim float64, segments int, c color.RGBA) *Mesh {
	segments = max(segments, 6)
	stacks := segments / 2

	m := &Mesh{Color: c}
	m.Vertices = append(m.Vertices, r3.Vec{Y: r}) // apex
	for i := 1; i <= stacks; i++ {
		phi := math.Pi / 2 * float64(i) / float64(stacks)
		sp, cp := math.Sincos(phi)
		for j := 0; j < segments; j++ {
			th := 2 * math.Pi * float64(j) / float64(segments)
			st, ct := math.Sincos(th)
			m.Vertices = append(m.Vertices, r3.Vec{X: r * sp * ct, Y: r * cp, Z: r * sp * st})
		}
	}
	ring := func(i, j int) int { return 1 + (i-1)*segments + j%segments }

	for j := 0; j < segments; j++ {
		m.Faces = append(m.Faces, [3]int{0, ring(1, j+1), ring(1, j)})
	}
	for i := 1; i < stacks; i++ {
		for j := 0; j < segments; j++ {
			m.Faces = append(m.Faces,
				[3]int{ring(i, j), ring(i, j+1), ring(i+1, j+1)},
				[3]int{ring(i, j), ring(i+1, j+1), ring(i+1, j)},
			)
		}
	}

	// brim: front half of an annulus at the dome's rim
	base := len(m.Vertices)
	half := segments / 2
	for j := 0; j <= half; j++ {
		th := math.Pi * float64(j) / float64(half)
		st, ct := math.Sincos(th)
		m.Vertices = append(m.Vertices,
			r3.Vec{X: r * ct, Z: r * st},
			r3.Vec{X: (r + brim*st) * ct, Z: (r + brim*st) * st},
		)
	}
	for j := 0; j < half; j++ {
		a, b := base+2*j, base+2*j+1
		e, d := base+2*j+3, base+2*j+2
		m.Faces = append(m.Faces, [3]int{a, b, e}, [3]int{a, e, d})
	}
	return m
}

// LoadOBJ reads vertices and faces from a Wavefront OBJ file. Polygons are
// fan-triangulated; texture and normal indices are ignored.
func LoadOBJ(path string, c color.RGBA) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh: %w", err)
	}
	defer f.Close()

	m, err := ParseOBJ(f, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseOBJ is LoadOBJ over a reader.
func ParseOBJ(r io.Reader, c color.RGBA) (*Mesh, error) {
	m := &Mesh{Color: c}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
			}
			var xyz [3]float64
			for i := range xyz {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				xyz[i] = v
			}
			m.Vertices = append(m.Vertices, r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := objIndex(ref, len(m.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[k], idx[k+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// objIndex resolves a 1-based (or negative, relative) "v/vt/vn" reference.
func objIndex(ref string, seen int) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("bad vertex reference %q", ref)
	}
	switch {
	case n > 0 && n <= seen:
		return n - 1, nil
	case n < 0 && -n <= seen:
		return seen + n, nil
	}
	return 0, fmt.Errorf("vertex reference %d out of range (%d defined)", n, seen)
}
