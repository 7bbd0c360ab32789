package render

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera places a pinhole camera in model space. Orientation is given the
// way an external scene renderer takes it: where the camera sits, a point it
// looks at, and a roll about the viewing axis in degrees.
//
// Roll is the heading of the camera's image x axis projected onto the model
// XY plane, atan2(x.Y, x.X). The camera frame is x right, y down, z forward.
type Camera struct {
	Position r3.Vec
	LookAt   r3.Vec
	Roll     float64

	Width, Height int
	Fx, Fy        float64
	Cx, Cy        float64
}

var errDegenerateCamera = errors.New("render: camera position equals look-at point")

// basis returns the camera axes in model coordinates.
func (c Camera) basis() (x, y, z r3.Vec, err error) {
	f := r3.Sub(c.LookAt, c.Position)
	if r3.Norm(f) < 1e-12 {
		return x, y, z, errDegenerateCamera
	}
	z = r3.Unit(f)

	s, co := math.Sincos(c.Roll * math.Pi / 180)
	if math.Abs(z.Z) > 1e-9 {
		// x = (cos, sin, w) with x.z == 0
		x = r3.Unit(r3.Vec{X: co, Y: s, Z: -(z.X*co + z.Y*s) / z.Z})
	} else {
		// looking along the XY plane: x lies in it or along Z
		x = r3.Cross(z, r3.Vec{Z: 1})
		if r3.Norm(x) < 1e-12 {
			x = r3.Vec{X: 1}
		}
		x = r3.Unit(x)
		if x.X*co+x.Y*s < 0 {
			x = r3.Scale(-1, x)
		}
	}
	y = r3.Cross(z, x)
	return x, y, z, nil
}

// view holds a camera's precomputed model-to-camera transform.
type view struct {
	cam     Camera
	x, y, z r3.Vec
}

func newView(c Camera) (view, error) {
	x, y, z, err := c.basis()
	if err != nil {
		return view{}, err
	}
	return view{cam: c, x: x, y: y, z: z}, nil
}

// toCamera maps a model point into camera coordinates.
func (v view) toCamera(p r3.Vec) r3.Vec {
	d := r3.Sub(p, v.cam.Position)
	return r3.Vec{X: r3.Dot(v.x, d), Y: r3.Dot(v.y, d), Z: r3.Dot(v.z, d)}
}

// project maps a camera-space point to pixels.
func (v view) project(p r3.Vec) (float64, float64) {
	return v.cam.Fx*p.X/p.Z + v.cam.Cx, v.cam.Fy*p.Y/p.Z + v.cam.Cy
}
