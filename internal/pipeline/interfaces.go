package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/detector"
	"github.com/dudu/facelens/internal/lens"
)

// FaceAnalyzer finds the face and its landmarks in a frame, optionally
// seeded with the last full-frame detection
type FaceAnalyzer interface {
	Analyze(frame gocv.Mat, prev *detector.Detection) (*detector.FaceFrame, error)
}

// Compositor draws one lens onto a frame
type Compositor = lens.Compositor

var _ FaceAnalyzer = (*detector.FaceDetector)(nil)
