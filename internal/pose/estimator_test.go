package pose

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/facelens/internal/landmarks"
)

const (
	frameW = 640
	frameH = 480
)

func rotX(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, c, -s, 0, s, c})
}

func rotY(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{c, 0, s, 0, 1, 0, -s, 0, c})
}

func rotZ(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{c, -s, 0, s, c, 0, 0, 0, 1})
}

func deg(d float64) float64 { return d * math.Pi / 180 }

// facing returns a rotation for a head turned by yaw/pitch/roll degrees
// away from looking straight at the camera.
func facing(yaw, pitch, roll float64) *mat.Dense {
	var r mat.Dense
	r.Product(rotZ(deg(roll)), rotY(deg(yaw)), rotX(deg(pitch)), rotX(math.Pi))
	return &r
}

// synthesize projects the canonical model through a known pose into a full
// landmark map. noise shifts each projected point by a fixed pattern.
func synthesize(t *testing.T, in Intrinsics, rot *mat.Dense, trans r3.Vec, noise float64) *landmarks.Map {
	t.Helper()
	topo := landmarks.IBUG68
	pts := make([]landmarks.Point, topo.Size())
	for i, name := range topo.CanonicalNames() {
		p, err := topo.Canonical(name)
		require.NoError(t, err)
		c := r3.Add(rotate(rot, p), trans)
		idx, err := topo.Index(name)
		require.NoError(t, err)
		sign := float64(1 - 2*(i%2))
		pts[idx] = landmarks.Point{
			X: in.Fx*c.X/c.Z + in.Cx + sign*noise,
			Y: in.Fy*c.Y/c.Z + in.Cy - sign*noise*0.5,
		}
	}
	m, err := landmarks.NewMap(topo, pts)
	require.NoError(t, err)
	return m
}

func TestNewIntrinsics(t *testing.T) {
	got := NewIntrinsics(frameW, frameH, SwappedCenter)
	assert.Equal(t, Intrinsics{Fx: 640, Fy: 640, Cx: 240, Cy: 320}, got)

	got = NewIntrinsics(frameW, frameH, ImageCenter)
	assert.Equal(t, Intrinsics{Fx: 640, Fy: 640, Cx: 320, Cy: 240}, got)
}

func TestParseCenter(t *testing.T) {
	c, err := ParseCenter("image")
	require.NoError(t, err)
	assert.Equal(t, ImageCenter, c)

	c, err = ParseCenter("")
	require.NoError(t, err)
	assert.Equal(t, SwappedCenter, c)

	_, err = ParseCenter("middle")
	assert.Error(t, err)
}

func TestNew_RoundTrip(t *testing.T) {
	tests := []struct {
		name             string
		yaw, pitch, roll float64
		trans            r3.Vec
		center           Center
	}{
		{name: "frontal", trans: r3.Vec{X: 0, Y: 0, Z: 8}},
		{name: "turned", yaw: 25, pitch: -10, roll: 5, trans: r3.Vec{X: 0.5, Y: -0.3, Z: 7}},
		{name: "tilted off-centre", yaw: -15, pitch: 12, roll: -20, trans: r3.Vec{X: -1.2, Y: 0.8, Z: 10}},
		{name: "image centre", yaw: 10, roll: 8, trans: r3.Vec{X: 0.2, Y: 0.1, Z: 6}, center: ImageCenter},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := NewIntrinsics(frameW, frameH, tc.center)
			want := facing(tc.yaw, tc.pitch, tc.roll)
			m := synthesize(t, in, want, tc.trans, 0)

			est, err := New(m, frameW, frameH, WithCenter(tc.center))
			require.NoError(t, err)

			assert.Less(t, est.ReprojectionRMS(), 1e-3)
			assert.True(t, mat.EqualApprox(want, est.Rotation(), 1e-4), "rotation:\n%v", mat.Formatted(est.Rotation()))
			assert.InDelta(t, tc.trans.Z, est.Translation().Z, 1e-3)

			img, obj := m.Correspondences()
			for i := range obj {
				p := est.Project(obj[i])
				assert.InDelta(t, img[i].X, p.X, 2)
				assert.InDelta(t, img[i].Y, p.Y, 2)
			}
		})
	}
}

func TestNew_NoisyRoundTrip(t *testing.T) {
	in := NewIntrinsics(frameW, frameH, SwappedCenter)
	m := synthesize(t, in, facing(20, 5, -8), r3.Vec{X: 0.3, Y: 0.2, Z: 8}, 0.5)

	est, err := New(m, frameW, frameH)
	require.NoError(t, err)

	img, obj := m.Correspondences()
	for i := range obj {
		p := est.Project(obj[i])
		assert.InDelta(t, img[i].X, p.X, 2, "point %d", i)
		assert.InDelta(t, img[i].Y, p.Y, 2, "point %d", i)
	}
}

func TestEstimator_CameraPlacement(t *testing.T) {
	in := NewIntrinsics(frameW, frameH, SwappedCenter)
	m := synthesize(t, in, facing(0, 0, 15), r3.Vec{Z: 8}, 0)

	est, err := New(m, frameW, frameH)
	require.NoError(t, err)

	pos := est.CameraPosition()
	assert.InDelta(t, 0, pos.X, 1e-3)
	assert.InDelta(t, 0, pos.Y, 1e-3)
	assert.InDelta(t, 8, pos.Z, 1e-3)

	look := est.LookDirection()
	assert.InDelta(t, 0, look.X, 1e-4)
	assert.InDelta(t, 0, look.Y, 1e-4)
	assert.InDelta(t, -1, look.Z, 1e-4)

	assert.InDelta(t, 15, est.Roll(), 1e-2)
}

func TestNew_Failures(t *testing.T) {
	flat := landmarks.MustTopology("flat", 4,
		map[string]int{"a": 0, "b": 1, "c": 2, "d": 3},
		map[string]r3.Vec{"a": {X: 0, Y: 0}, "b": {X: 1, Y: 0}, "c": {X: 0, Y: 1}, "d": {X: 1, Y: 1}},
	)
	few := landmarks.MustTopology("few", 3,
		map[string]int{"a": 0, "b": 1, "c": 2},
		map[string]r3.Vec{"a": {X: 0, Y: 0}, "b": {X: 1, Y: 0}, "c": {X: 0, Y: 1, Z: 1}},
	)

	flatMap, err := landmarks.NewMap(flat, []landmarks.Point{{X: 300, Y: 200}, {X: 340, Y: 200}, {X: 300, Y: 160}, {X: 340, Y: 160}})
	require.NoError(t, err)
	fewMap, err := landmarks.NewMap(few, []landmarks.Point{{X: 300, Y: 200}, {X: 340, Y: 200}, {X: 300, Y: 160}})
	require.NoError(t, err)

	collapsed := make([]landmarks.Point, landmarks.IBUG68.Size())
	for i := range collapsed {
		collapsed[i] = landmarks.Point{X: 320, Y: 240}
	}
	collapsedMap, err := landmarks.NewMap(landmarks.IBUG68, collapsed)
	require.NoError(t, err)

	tests := []struct {
		name string
		m    *landmarks.Map
		w, h int
	}{
		{name: "nil map", m: nil, w: frameW, h: frameH},
		{name: "coplanar model", m: flatMap, w: frameW, h: frameH},
		{name: "too few points", m: fewMap, w: frameW, h: frameH},
		{name: "all points collapsed", m: collapsedMap, w: frameW, h: frameH},
		{name: "empty frame", m: collapsedMap, w: 0, h: frameH},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.m, tc.w, tc.h)
			require.Error(t, err)
			var perr *Error
			assert.True(t, errors.As(err, &perr), "got %T", err)
		})
	}
}

func TestNew_MaxRMS(t *testing.T) {
	in := NewIntrinsics(frameW, frameH, SwappedCenter)
	m := synthesize(t, in, facing(10, 0, 0), r3.Vec{Z: 8}, 3)

	_, err := New(m, frameW, frameH, WithMaxRMS(0.01))
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Error(), "reprojection error")

	_, err = New(m, frameW, frameH, WithMaxRMS(50))
	assert.NoError(t, err)
}

func TestRodrigues_IsRotation(t *testing.T) {
	r := rodrigues(r3.Vec{X: 0.3, Y: -0.2, Z: 0.9})
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	assert.True(t, mat.EqualApprox(&rtr, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-12))
	assert.InDelta(t, 1, mat.Det(r), 1e-12)
}
