package render

import (
	"errors"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var green = color.RGBA{G: 255, A: 255}

func rows(r [3][3]float64) (r3.Vec, r3.Vec, r3.Vec) {
	return r3.Vec{X: r[0][0], Y: r[0][1], Z: r[0][2]},
		r3.Vec{X: r[1][0], Y: r[1][1], Z: r[1][2]},
		r3.Vec{X: r[2][0], Y: r[2][1], Z: r[2][2]}
}

func mul(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func assertVec(t *testing.T, want, got r3.Vec, delta float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta)
	assert.InDelta(t, want.Y, got.Y, delta)
	assert.InDelta(t, want.Z, got.Z, delta)
}

func TestCamera_BasisRecoversRotation(t *testing.T) {
	// a head turned 20 degrees, tilted 10, rolled 15, facing the camera
	sy, cy := math.Sincos(20 * math.Pi / 180)
	sx, cx := math.Sincos(10 * math.Pi / 180)
	sz, cz := math.Sincos(15 * math.Pi / 180)
	rz := [3][3]float64{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	ry := [3][3]float64{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	rx := [3][3]float64{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	flip := [3][3]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	r := mul(mul(mul(rz, ry), rx), flip)
	rx0, ry0, rz0 := rows(r)

	tr := r3.Vec{X: 0.4, Y: -0.2, Z: 7}
	// position = -R^T t, look = R^T (0,0,1) = third row of R
	pos := r3.Scale(-1, r3.Add(r3.Add(r3.Scale(tr.X, rx0), r3.Scale(tr.Y, ry0)), r3.Scale(tr.Z, rz0)))
	cam := Camera{
		Position: pos,
		LookAt:   r3.Add(pos, rz0),
		Roll:     math.Atan2(r[0][1], r[0][0]) * 180 / math.Pi,
	}

	x, y, z, err := cam.basis()
	require.NoError(t, err)
	assertVec(t, rx0, x, 1e-9)
	assertVec(t, ry0, y, 1e-9)
	assertVec(t, rz0, z, 1e-9)

	// a model point lands where R p + t puts it
	v, err := newView(cam)
	require.NoError(t, err)
	p := r3.Vec{X: 0.3, Y: 0.5, Z: -0.2}
	want := r3.Add(r3.Vec{X: r3.Dot(rx0, p), Y: r3.Dot(ry0, p), Z: r3.Dot(rz0, p)}, tr)
	assertVec(t, want, v.toCamera(p), 1e-9)
}

func TestCamera_Degenerate(t *testing.T) {
	_, _, _, err := Camera{Position: r3.Vec{Z: 1}, LookAt: r3.Vec{Z: 1}}.basis()
	assert.Error(t, err)
}

func frontal(w, h int) Camera {
	return Camera{
		Position: r3.Vec{Z: 5},
		LookAt:   r3.Vec{},
		Width:    w, Height: h,
		Fx: float64(w), Fy: float64(w),
		Cx: float64(w) / 2, Cy: float64(h) / 2,
	}
}

func TestSoftware_RendersOnChromaKey(t *testing.T) {
	// mesh coloured exactly like the key must still be separable
	s, err := NewSoftware(DefaultConfig(), Torus(1, 0.3, 24, 12, green))
	require.NoError(t, err)
	defer s.Close()

	s.SetCamera(frontal(320, 240))
	img, err := s.Render()
	require.NoError(t, err)
	defer img.Close()

	require.Equal(t, 240, img.Rows())
	require.Equal(t, 320, img.Cols())

	isKey := func(row, col int) bool {
		return img.GetUCharAt(row, col*3) == 0 &&
			img.GetUCharAt(row, col*3+1) == 255 &&
			img.GetUCharAt(row, col*3+2) == 0
	}

	// ring radius 1 at distance 5 with f = 320 projects to 64px
	assert.False(t, isKey(120, 160+64), "ring pixel must be drawn off-key")
	assert.False(t, isKey(120, 160-64))
	assert.True(t, isKey(120, 160), "torus hole stays background")
	assert.True(t, isKey(5, 5))
}

func TestSoftware_Errors(t *testing.T) {
	_, err := NewSoftware(DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyMesh)

	_, err = NewSoftware(DefaultConfig(), &Mesh{Vertices: []r3.Vec{{}}})
	assert.ErrorIs(t, err, ErrEmptyMesh)

	s, err := NewSoftware(DefaultConfig(), Cap(1, 0.5, 16, color.RGBA{R: 200, A: 255}))
	require.NoError(t, err)
	img, err := s.Render()
	img.Close()
	assert.Error(t, err, "render before SetCamera")
}

func TestShade_AvoidsKey(t *testing.T) {
	s := &Software{cfg: DefaultConfig()}
	got := s.shade(green, 1)
	assert.NotEqual(t, green, got)

	got = s.shade(color.RGBA{R: 100, G: 40, B: 20, A: 255}, 0)
	assert.Equal(t, color.RGBA{R: 35, G: 14, B: 7, A: 255}, got)
}

func TestTorus_Topology(t *testing.T) {
	m := Torus(1, 0.25, 10, 8, green)
	assert.Len(t, m.Vertices, 80)
	assert.Len(t, m.Faces, 160)
	require.NoError(t, m.Validate())

	lo, hi := m.Bounds()
	assert.InDelta(t, -1.25, lo.X, 1e-9)
	assert.InDelta(t, 1.25, hi.X, 1e-9)
	assert.InDelta(t, 0.25, hi.Z, 1e-9)
}

func TestCap_StaysAboveRim(t *testing.T) {
	m := Cap(1, 0.6, 16, green)
	require.NoError(t, m.Validate())

	lo, hi := m.Bounds()
	assert.InDelta(t, 0, lo.Y, 1e-9)
	assert.InDelta(t, 1, hi.Y, 1e-9)
	assert.InDelta(t, 1.6, hi.Z, 1e-9, "brim reaches forward")
}

func TestMesh_Place(t *testing.T) {
	m := &Mesh{Vertices: []r3.Vec{{X: 1}}, Faces: [][3]int{{0, 0, 0}}}
	got := m.Place(Placement{Scale: 2, Rotation: r3.Vec{Z: 90}, Offset: r3.Vec{Y: 1}})
	assertVec(t, r3.Vec{X: 0, Y: 3, Z: 0}, got.Vertices[0], 1e-12)
	assertVec(t, r3.Vec{X: 1}, m.Vertices[0], 0)
}

func TestParseOBJ(t *testing.T) {
	src := `# quad and a triangle
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
f 1/1 2/1 3/1 4/1
f -1 -2 -3
`
	m, err := ParseOBJ(strings.NewReader(src), green)
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, [][3]int{{0, 1, 2}, {0, 2, 3}, {3, 2, 1}}, m.Faces)
	assert.Equal(t, green, m.Color)
}

func TestParseOBJ_Errors(t *testing.T) {
	tests := map[string]string{
		"out of range": "v 0 0 0\nf 1 2 3\n",
		"bad number":   "v 0 zero 0\n",
		"no faces":     "v 0 0 0\n",
		"short face":   "v 0 0 0\nf 1 1\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOBJ(strings.NewReader(src), green)
			assert.Error(t, err)
		})
	}

	_, err := ParseOBJ(strings.NewReader("v 0 0 0\n"), green)
	assert.True(t, errors.Is(err, ErrEmptyMesh))

	_, err = LoadOBJ("testdata/missing.obj", green)
	assert.Error(t, err)
}
