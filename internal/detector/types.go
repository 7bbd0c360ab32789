package detector

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
)

// BoundingBox is a raw finder box in the pixel space of the image it ran on
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Rect rounds the box to whole pixels
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(round32(b.X1), round32(b.Y1), round32(b.X2), round32(b.Y2))
}

// Candidate is one face hit reported by a FaceFinder
type Candidate struct {
	Box   BoundingBox
	Score float32
}

// Detection is the face located in a frame. A nil *Detection means no face.
type Detection struct {
	Box   image.Rectangle // frame pixels
	Score float32
	Fast  bool // found on the cropped search region around the previous face
}

// AmbiguousDetectionError is returned when a search finds more than one face.
type AmbiguousDetectionError struct {
	Count int
	Fast  bool
}

func (e *AmbiguousDetectionError) Error() string {
	path := "full-frame"
	if e.Fast {
		path = "fast-path"
	}
	return fmt.Sprintf("detector: %s search found %d faces instead of 1", path, e.Count)
}

// FaceFrame is one analyzed frame. It owns Frame until Close.
type FaceFrame struct {
	Frame     gocv.Mat
	Detection *Detection
	Landmarks *landmarks.Map
}

// HasFace reports whether a face and its landmarks were found
func (f *FaceFrame) HasFace() bool {
	return f != nil && f.Detection != nil && f.Landmarks != nil
}

// Close releases the frame buffer
func (f *FaceFrame) Close() error {
	if f == nil {
		return nil
	}
	return f.Frame.Close()
}

func round32(v float32) int {
	return int(math.Round(float64(v)))
}
