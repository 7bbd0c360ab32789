package lens

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// LoadAsset reads a lens image into a straight-alpha BGRA Mat. Images
// larger than maxSide on either axis are shrunk to fit; maxSide <= 0 keeps
// the original size. Images without alpha come back fully opaque.
func LoadAsset(path string, maxSide int) (gocv.Mat, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to load lens asset: %w", err)
	}

	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	return assetFromImage(img)
}

// assetFromImage converts any image to a BGRA Mat.
func assetFromImage(img image.Image) (gocv.Mat, error) {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("lens asset is empty")
	}

	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		out := buf[y*w*4 : (y+1)*w*4]
		for x := 0; x < w; x++ {
			out[x*4+0] = row[x*4+2]
			out[x*4+1] = row[x*4+1]
			out[x*4+2] = row[x*4+0]
			out[x*4+3] = row[x*4+3]
		}
	}

	wrapped, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap lens asset: %w", err)
	}
	defer wrapped.Close()

	// own the pixels instead of pointing into buf
	return wrapped.Clone(), nil
}
