package lens

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/pose"
)

var (
	debugPoint = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	debugName  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	axisX      = color.RGBA{R: 255, A: 255}
	axisY      = color.RGBA{G: 255, A: 255}
	axisZ      = color.RGBA{B: 255, A: 255}
)

// Debug marks every landmark with its index, labels the named ones and,
// when the pose solves, draws the model axes from the nose bottom.
type Debug struct {
	opts   []pose.Option
	length float64
}

// NewDebug returns the overlay; opts configure the pose solve for the axes.
func NewDebug(opts ...pose.Option) *Debug {
	return &Debug{opts: opts, length: 0.5}
}

// Name returns "debug".
func (d *Debug) Name() string {
	return "debug"
}

// Apply draws the overlay. A failed pose solve only skips the axes.
func (d *Debug) Apply(frame *gocv.Mat, m *landmarks.Map) error {
	if m == nil || frame.Empty() {
		return nil
	}

	for i, p := range m.Points() {
		pt := pixel(p)
		gocv.Circle(frame, pt, 1, debugPoint, -1)
		gocv.PutText(frame, strconv.Itoa(i), pt.Add(image.Pt(2, -2)),
			gocv.FontHersheySimplex, 0.25, debugPoint, 1)
	}
	for _, name := range m.Topology().Names() {
		p, err := m.Lookup(name)
		if err != nil {
			continue
		}
		gocv.PutText(frame, name, pixel(p).Add(image.Pt(4, 8)),
			gocv.FontHersheySimplex, 0.3, debugName, 1)
	}

	est, err := pose.New(m, frame.Cols(), frame.Rows(), d.opts...)
	if err != nil {
		return nil
	}
	origin := pixel(est.Project(r3.Vec{}))
	for _, ax := range []struct {
		dir r3.Vec
		c   color.RGBA
	}{
		{r3.Vec{X: d.length}, axisX},
		{r3.Vec{Y: d.length}, axisY},
		{r3.Vec{Z: d.length}, axisZ},
	} {
		gocv.Line(frame, origin, pixel(est.Project(ax.dir)), ax.c, 2)
	}
	return nil
}

// Close is a no-op.
func (d *Debug) Close() error {
	return nil
}

func pixel(p landmarks.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
