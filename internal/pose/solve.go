package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/facelens/internal/landmarks"
)

const (
	positIterations = 100
	positTolerance  = 1e-10

	// smallest singular value of the object point spread, relative to the
	// largest, below which the model counts as planar
	coplanarTolerance = 1e-6

	lmIterations = 100
	lmStep       = 1e-6
)

// posit recovers an initial pose from normalized image coordinates
// (pixels with the principal point removed and divided by focal length).
// obj[0] is the reference point.
func posit(img []landmarks.Point, obj []r3.Vec) (*mat.Dense, r3.Vec, error) {
	n := len(obj)

	a := mat.NewDense(n-1, 3, nil)
	for i := 1; i < n; i++ {
		d := r3.Sub(obj[i], obj[0])
		a.SetRow(i-1, []float64{d.X, d.Y, d.Z})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, r3.Vec{}, failf("object points do not factorize")
	}
	vals := svd.Values(nil)
	if vals[0] == 0 || vals[2] < coplanarTolerance*vals[0] {
		return nil, r3.Vec{}, failf("object points are coplanar")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	inv := mat.NewDiagDense(3, []float64{1 / vals[0], 1 / vals[1], 1 / vals[2]})

	// pseudo-inverse of a, 3 x (n-1)
	var b mat.Dense
	b.Product(&v, inv, u.T())

	eps := make([]float64, n)
	xs := mat.NewVecDense(n-1, nil)
	ys := mat.NewVecDense(n-1, nil)
	var iv, jv mat.VecDense

	var ri, rj, rk r3.Vec
	var z0 float64
	for iter := 0; iter < positIterations; iter++ {
		for k := 1; k < n; k++ {
			xs.SetVec(k-1, img[k].X*(1+eps[k])-img[0].X)
			ys.SetVec(k-1, img[k].Y*(1+eps[k])-img[0].Y)
		}
		iv.MulVec(&b, xs)
		jv.MulVec(&b, ys)

		bigI := r3.Vec{X: iv.AtVec(0), Y: iv.AtVec(1), Z: iv.AtVec(2)}
		bigJ := r3.Vec{X: jv.AtVec(0), Y: jv.AtVec(1), Z: jv.AtVec(2)}
		s1, s2 := r3.Norm(bigI), r3.Norm(bigJ)
		if s1 < 1e-12 || s2 < 1e-12 {
			return nil, r3.Vec{}, failf("degenerate image points")
		}

		ri = r3.Scale(1/s1, bigI)
		rj = r3.Scale(1/s2, bigJ)
		rk = r3.Cross(ri, rj)
		if r3.Norm(rk) < 1e-12 {
			return nil, r3.Vec{}, failf("degenerate image points")
		}
		rk = r3.Unit(rk)
		z0 = 2 / (s1 + s2)

		delta := 0.0
		for k := 1; k < n; k++ {
			e := r3.Dot(r3.Sub(obj[k], obj[0]), rk) / z0
			delta = math.Max(delta, math.Abs(e-eps[k]))
			eps[k] = e
		}
		if delta < positTolerance {
			break
		}
	}

	rot := orthonormalize(mat.NewDense(3, 3, []float64{
		ri.X, ri.Y, ri.Z,
		rj.X, rj.Y, rj.Z,
		rk.X, rk.Y, rk.Z,
	}))

	ref := r3.Vec{X: img[0].X * z0, Y: img[0].Y * z0, Z: z0}
	return rot, r3.Sub(ref, rotate(rot, obj[0])), nil
}

// refine minimizes pixel reprojection error with Levenberg-Marquardt over a
// rotation-vector perturbation and the translation.
func refine(in Intrinsics, img []landmarks.Point, obj []r3.Vec, rot *mat.Dense, t r3.Vec) (*mat.Dense, r3.Vec, float64) {
	m := 2 * len(obj)
	res := make([]float64, m)
	cost := residuals(in, img, obj, rot, t, res)

	jac := mat.NewDense(m, 6, nil)
	probe := make([]float64, m)
	lambda := 1e-3

	for iter := 0; iter < lmIterations && cost > 1e-18; iter++ {
		for p := 0; p < 6; p++ {
			r2, t2 := perturb(rot, t, p, lmStep)
			residuals(in, img, obj, r2, t2, probe)
			for i := range probe {
				jac.Set(i, p, (probe[i]-res[i])/lmStep)
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var g mat.VecDense
		g.MulVec(jac.T(), mat.NewVecDense(m, res))
		g.ScaleVec(-1, &g)

		improved := false
		var step mat.VecDense
		for lambda < 1e10 {
			damped := mat.DenseCopyOf(&jtj)
			for d := 0; d < 6; d++ {
				damped.Set(d, d, jtj.At(d, d)*(1+lambda)+1e-12)
			}
			if err := step.SolveVec(damped, &g); err != nil {
				lambda *= 10
				continue
			}

			r2, t2 := apply(rot, t, step.RawVector().Data)
			c2 := residuals(in, img, obj, r2, t2, probe)
			if c2 < cost {
				rot, t, cost = r2, t2, c2
				copy(res, probe)
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				break
			}
			lambda *= 10
		}
		if !improved || mat.Norm(&step, 2) < 1e-12 {
			break
		}
	}

	return rot, t, math.Sqrt(cost / float64(len(obj)))
}

// residuals fills res with projected-minus-observed pixel offsets and
// returns their squared sum. Points behind the camera cost +Inf.
func residuals(in Intrinsics, img []landmarks.Point, obj []r3.Vec, rot *mat.Dense, t r3.Vec, res []float64) float64 {
	cost := 0.0
	for i, p := range obj {
		c := r3.Add(rotate(rot, p), t)
		if c.Z <= 0 {
			return math.Inf(1)
		}
		dx := in.Fx*c.X/c.Z + in.Cx - img[i].X
		dy := in.Fy*c.Y/c.Z + in.Cy - img[i].Y
		res[2*i], res[2*i+1] = dx, dy
		cost += dx*dx + dy*dy
	}
	return cost
}

func perturb(rot *mat.Dense, t r3.Vec, p int, h float64) (*mat.Dense, r3.Vec) {
	var d [6]float64
	d[p] = h
	return apply(rot, t, d[:])
}

// apply composes a step (rotation vector, translation delta) onto a pose.
func apply(rot *mat.Dense, t r3.Vec, d []float64) (*mat.Dense, r3.Vec) {
	var r2 mat.Dense
	r2.Mul(rodrigues(r3.Vec{X: d[0], Y: d[1], Z: d[2]}), rot)
	return &r2, r3.Add(t, r3.Vec{X: d[3], Y: d[4], Z: d[5]})
}

func rodrigues(w r3.Vec) *mat.Dense {
	theta := r3.Norm(w)
	if theta < 1e-15 {
		return mat.NewDense(3, 3, []float64{1, -w.Z, w.Y, w.Z, 1, -w.X, -w.Y, w.X, 1})
	}
	k := r3.Scale(1/theta, w)
	s, c := math.Sin(theta), 1-math.Cos(theta)
	return mat.NewDense(3, 3, []float64{
		1 + c*(k.X*k.X-1), -s*k.Z + c*k.X*k.Y, s*k.Y + c*k.X*k.Z,
		s*k.Z + c*k.X*k.Y, 1 + c*(k.Y*k.Y-1), -s*k.X + c*k.Y*k.Z,
		-s*k.Y + c*k.X*k.Z, s*k.X + c*k.Y*k.Z, 1 + c*(k.Z*k.Z-1),
	})
}

// orthonormalize returns the rotation closest to m.
func orthonormalize(m *mat.Dense) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return m
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

func rotate(r mat.Matrix, p r3.Vec) r3.Vec {
	return r3.Vec{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z,
	}
}
