package lens

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ChromaKey builds a BGRA image from a BGR render: pixels exactly equal to
// key become transparent, everything else opaque. The result is cropped to
// the opaque pixels and bounds gives that crop in img coordinates. An empty
// bounds means the render contained only key colour.
func ChromaKey(img gocv.Mat, key color.RGBA) (crop gocv.Mat, bounds image.Rectangle, err error) {
	if img.Empty() {
		return gocv.NewMat(), image.Rectangle{}, nil
	}
	if img.Channels() != 3 {
		return gocv.NewMat(), image.Rectangle{}, fmt.Errorf("lens: chroma key needs a BGR image, got %d channels", img.Channels())
	}

	k := gocv.NewScalar(float64(key.B), float64(key.G), float64(key.R), 0)
	isKey := gocv.NewMat()
	defer isKey.Close()
	gocv.InRangeWithScalar(img, k, k, &isKey)

	alpha := gocv.NewMat()
	defer alpha.Close()
	gocv.BitwiseNot(isKey, &alpha)

	bounds, err = opaqueBounds(alpha)
	if err != nil || bounds.Empty() {
		return gocv.NewMat(), image.Rectangle{}, err
	}

	chans := gocv.Split(img)
	defer closeAll(chans)

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.Merge(append(chans, alpha), &bgra)

	region := bgra.Region(bounds)
	defer region.Close()
	return region.Clone(), bounds, nil
}

// opaqueBounds returns the box around the non-zero bytes of a CV_8U mask.
func opaqueBounds(mask gocv.Mat) (image.Rectangle, error) {
	data, err := mask.DataPtrUint8()
	if err != nil {
		return image.Rectangle{}, err
	}
	rows, cols := mask.Rows(), mask.Cols()

	minX, minY, maxX, maxY := cols, rows, -1, -1
	for y := 0; y < rows; y++ {
		row := data[y*cols : (y+1)*cols]
		for x, v := range row {
			if v == 0 {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, nil
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}
