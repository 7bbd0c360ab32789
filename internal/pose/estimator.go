// Package pose recovers a rigid head pose from 2D landmarks and a canonical
// 3D face model, and answers projection and camera-placement queries for it.
package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/facelens/internal/landmarks"
)

// Option customizes an Estimator.
type Option func(*options)

type options struct {
	center Center
	maxRMS float64
}

// WithCenter selects the principal point convention.
func WithCenter(c Center) Option {
	return func(o *options) { o.center = c }
}

// WithMaxRMS rejects solutions whose reprojection RMS in pixels exceeds px.
// Zero disables the check.
func WithMaxRMS(px float64) Option {
	return func(o *options) { o.maxRMS = px }
}

// Estimator is one frame's solved pose. It maps model coordinates to camera
// coordinates as Xc = R*X + t.
type Estimator struct {
	intr  Intrinsics
	rot   *mat.Dense
	trans r3.Vec
	rms   float64
}

// New solves the pose for m on a width x height frame. Only the landmarks
// with canonical 3D coordinates take part. It returns *Error when no
// trustworthy pose exists.
func New(m *landmarks.Map, width, height int, opts ...Option) (*Estimator, error) {
	if m == nil {
		return nil, failf("no landmarks")
	}
	if width <= 0 || height <= 0 {
		return nil, failf("invalid frame size %dx%d", width, height)
	}

	o := options{center: SwappedCenter}
	for _, opt := range opts {
		opt(&o)
	}
	intr := NewIntrinsics(width, height, o.center)

	img, obj := m.Correspondences()
	if len(obj) < 4 {
		return nil, failf("need at least 4 correspondences, have %d", len(obj))
	}

	norm := make([]landmarks.Point, len(img))
	for i, p := range img {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, failf("non-finite landmark %d", i)
		}
		norm[i] = landmarks.Point{X: (p.X - intr.Cx) / intr.Fx, Y: (p.Y - intr.Cy) / intr.Fy}
	}

	rot, t, err := posit(norm, obj)
	if err != nil {
		return nil, err
	}
	rot, t, rms := refine(intr, img, obj, rot, t)

	if !finite(rot, t) || math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, failf("solution is not finite")
	}
	for _, p := range obj {
		if r3.Add(rotate(rot, p), t).Z <= 0 {
			return nil, failf("model lies behind the camera")
		}
	}
	if o.maxRMS > 0 && rms > o.maxRMS {
		return nil, failf("reprojection error %.2fpx above %.2fpx", rms, o.maxRMS)
	}

	return &Estimator{intr: intr, rot: rot, trans: t, rms: rms}, nil
}

// Intrinsics returns the camera the pose was solved against.
func (e *Estimator) Intrinsics() Intrinsics {
	return e.intr
}

// Rotation returns a copy of R.
func (e *Estimator) Rotation() *mat.Dense {
	return mat.DenseCopyOf(e.rot)
}

// Translation returns t.
func (e *Estimator) Translation() r3.Vec {
	return e.trans
}

// ReprojectionRMS is the root mean square pixel error over the solved points.
func (e *Estimator) ReprojectionRMS() float64 {
	return e.rms
}

// Project maps a model point to frame pixels.
func (e *Estimator) Project(p r3.Vec) landmarks.Point {
	c := r3.Add(rotate(e.rot, p), e.trans)
	return landmarks.Point{
		X: e.intr.Fx*c.X/c.Z + e.intr.Cx,
		Y: e.intr.Fy*c.Y/c.Z + e.intr.Cy,
	}
}

// CameraPosition is the camera centre in model coordinates, -R^T t.
func (e *Estimator) CameraPosition() r3.Vec {
	return r3.Scale(-1, rotate(e.rot.T(), e.trans))
}

// LookDirection is the camera's optical axis in model coordinates, R^T (0,0,1).
func (e *Estimator) LookDirection() r3.Vec {
	return rotate(e.rot.T(), r3.Vec{Z: 1})
}

// Roll is the rotation of R^T about its Z axis in degrees, taken as the
// first angle of a Z-Y-X decomposition.
func (e *Estimator) Roll() float64 {
	// R^T[1][0] == R[0][1]
	return math.Atan2(e.rot.At(0, 1), e.rot.At(0, 0)) * 180 / math.Pi
}

func finite(rot *mat.Dense, t r3.Vec) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := rot.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	for _, v := range []float64{t.X, t.Y, t.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
