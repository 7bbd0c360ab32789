package detector

import (
	"image"
	"math"
)

// searchWindow maps between frame pixels and the shrunken crop the fast
// path runs the finder on.
type searchWindow struct {
	crop  image.Rectangle // frame pixels
	scale float64         // crop pixels per frame pixel
	size  image.Point     // resized crop dimensions
}

// newSearchWindow pads prev by pad times its size on every side, clamps the
// result to bounds and picks a scale that makes the crop width equal width.
// ok is false when nothing of the padded box is left inside bounds.
func newSearchWindow(prev, bounds image.Rectangle, pad float64, width int) (w searchWindow, ok bool) {
	padX := int(float64(prev.Dx()) * pad)
	padY := int(float64(prev.Dy()) * pad)

	crop := image.Rect(prev.Min.X-padX, prev.Min.Y-padY, prev.Max.X+padX, prev.Max.Y+padY).Intersect(bounds)
	if crop.Empty() || width <= 0 {
		return searchWindow{}, false
	}

	scale := float64(width) / float64(crop.Dx())
	h := int(math.Round(float64(crop.Dy()) * scale))
	if h < 1 {
		h = 1
	}
	return searchWindow{crop: crop, scale: scale, size: image.Pt(width, h)}, true
}

// toFrame maps a box found on the resized crop back to frame pixels.
func (w searchWindow) toFrame(b BoundingBox) image.Rectangle {
	fx := func(v float32) int { return w.crop.Min.X + int(math.Round(float64(v)/w.scale)) }
	fy := func(v float32) int { return w.crop.Min.Y + int(math.Round(float64(v)/w.scale)) }
	return image.Rect(fx(b.X1), fy(b.Y1), fx(b.X2), fy(b.Y2))
}

// toCrop maps a frame rectangle into resized crop pixels.
func (w searchWindow) toCrop(r image.Rectangle) BoundingBox {
	cx := func(v int) float32 { return float32(float64(v-w.crop.Min.X) * w.scale) }
	cy := func(v int) float32 { return float32(float64(v-w.crop.Min.Y) * w.scale) }
	return BoundingBox{X1: cx(r.Min.X), Y1: cy(r.Min.Y), X2: cx(r.Max.X), Y2: cy(r.Max.Y)}
}
