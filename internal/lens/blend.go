package lens

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
)

// Blend draws a straight-alpha BGRA lens over a BGR frame, centred at c:
//
//	out = α·lens + (1-α)·frame
//
// Parts of the lens outside the frame are clipped.
func Blend(frame *gocv.Mat, lens gocv.Mat, c landmarks.Point) error {
	if frame.Empty() || lens.Empty() {
		return nil
	}
	if lens.Channels() != 4 {
		return fmt.Errorf("lens: blend needs a BGRA lens, got %d channels", lens.Channels())
	}
	if frame.Channels() != 3 {
		return fmt.Errorf("lens: blend needs a BGR frame, got %d channels", frame.Channels())
	}

	x1 := int(c.X - float64(lens.Cols())/2)
	y1 := int(c.Y - float64(lens.Rows())/2)
	dst := image.Rect(x1, y1, x1+lens.Cols(), y1+lens.Rows())
	vis := dst.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if vis.Empty() {
		return nil
	}

	roi := frame.Region(vis)
	defer roi.Close()
	part := lens.Region(vis.Sub(dst.Min))
	defer part.Close()

	chans := gocv.Split(part)
	defer closeAll(chans)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.Merge(chans[:3], &bgr)

	f := gocv.NewMat()
	defer f.Close()
	roi.ConvertTo(&f, gocv.MatTypeCV32FC3)

	l := gocv.NewMat()
	defer l.Close()
	bgr.ConvertTo(&l, gocv.MatTypeCV32FC3)

	a1 := gocv.NewMat()
	defer a1.Close()
	chans[3].ConvertToWithParams(&a1, gocv.MatTypeCV32F, 1.0/255, 0)

	alpha := gocv.NewMat()
	defer alpha.Close()
	gocv.Merge([]gocv.Mat{a1, a1, a1}, &alpha)

	// f + α(l - f)
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(l, f, &diff)

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Multiply(diff, alpha, &scaled)

	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(f, scaled, &sum)

	out := gocv.NewMat()
	defer out.Close()
	sum.ConvertTo(&out, gocv.MatTypeCV8UC3)

	out.CopyTo(&roi)
	return nil
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
