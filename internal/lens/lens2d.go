package lens

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
)

// Lens2D pins a transparent image to two landmarks.
type Lens2D struct {
	desc  Descriptor
	asset gocv.Mat
}

// NewLens2D wraps a BGRA asset. The lens takes ownership of asset.
func NewLens2D(desc Descriptor, asset gocv.Mat) (*Lens2D, error) {
	if asset.Empty() {
		return nil, fmt.Errorf("lens %s: empty asset", desc.Name)
	}
	if asset.Channels() != 4 {
		return nil, fmt.Errorf("lens %s: asset must have alpha, got %d channels", desc.Name, asset.Channels())
	}
	return &Lens2D{desc: desc, asset: asset}, nil
}

// OpenLens2D loads desc.Asset from dir.
func OpenLens2D(desc Descriptor, dir string, maxSide int) (*Lens2D, error) {
	asset, err := LoadAsset(filepath.Join(dir, desc.Asset), maxSide)
	if err != nil {
		return nil, fmt.Errorf("lens %s: %w", desc.Name, err)
	}
	l, err := NewLens2D(desc, asset)
	if err != nil {
		asset.Close()
		return nil, err
	}
	return l, nil
}

// Name returns the descriptor name.
func (l *Lens2D) Name() string {
	return l.desc.Name
}

// Apply draws the lens onto frame.
func (l *Lens2D) Apply(frame *gocv.Mat, m *landmarks.Map) error {
	if m == nil {
		return nil
	}
	left, err := m.Lookup(l.desc.Left)
	if err != nil {
		return fmt.Errorf("lens %s: %w", l.desc.Name, err)
	}
	right, err := m.Lookup(l.desc.Right)
	if err != nil {
		return fmt.Errorf("lens %s: %w", l.desc.Name, err)
	}

	p := l.desc.place(left, right)
	w := int(p.width)
	h := int(float64(l.asset.Rows()) * p.width / float64(l.asset.Cols()))
	if w < 1 || h < 1 {
		return nil
	}

	sized := gocv.NewMat()
	defer sized.Close()
	gocv.Resize(l.asset, &sized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)

	rotated := rotateSquare(sized, p.angle*180/math.Pi)
	defer rotated.Close()

	return Blend(frame, rotated, p.center)
}

// Close releases the asset.
func (l *Lens2D) Close() error {
	return l.asset.Close()
}

// placement is where a lens lands for one pair of anchors.
type placement struct {
	width  float64 // asset width in pixels
	angle  float64 // anchor line angle, radians, image coordinates
	center landmarks.Point
}

func (d Descriptor) place(l, r landmarks.Point) placement {
	v := r.Sub(l)
	dist := v.Norm()
	theta := math.Atan2(v.Y, v.X)

	s, c := math.Sincos(theta)
	along := landmarks.Point{X: c, Y: s}
	across := landmarks.Point{X: -s, Y: c}

	center := l.Add(r).Scale(0.5).
		Add(along.Scale(d.OffsetX * dist)).
		Add(across.Scale(d.OffsetY * dist))

	return placement{width: dist * d.Scale, angle: theta, center: center}
}

// rotateSquare pads img to a square with transparent black and turns it by
// deg degrees clockwise on screen about its centre.
func rotateSquare(img gocv.Mat, deg float64) gocv.Mat {
	side := max(img.Rows(), img.Cols())
	padX := (side - img.Cols()) / 2
	padY := (side - img.Rows()) / 2

	sq := gocv.NewMat()
	defer sq.Close()
	gocv.CopyMakeBorder(img, &sq, padY, padY, padX, padX, gocv.BorderConstant, color.RGBA{})

	// OpenCV angles are counter-clockwise with y down
	rot := gocv.GetRotationMatrix2D(image.Pt(sq.Cols()/2, sq.Rows()/2), -deg, 1)
	defer rot.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(sq, &out, rot, image.Pt(sq.Cols(), sq.Rows()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return out
}
