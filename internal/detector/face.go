// Package detector locates a single face per frame and its landmarks.
//
// Model backends sit behind FaceFinder and LandmarkPredictor; FaceDetector
// adds the fast path that re-searches a shrunken crop around the previous
// face before falling back to the whole frame.
package detector

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/log"
)

// FaceFinder reports face boxes in an image, in that image's pixels
type FaceFinder interface {
	Find(img gocv.Mat) ([]Candidate, error)
	Close() error
}

// LandmarkPredictor places a fixed landmark set inside a face box
type LandmarkPredictor interface {
	Predict(img gocv.Mat, box image.Rectangle) (*landmarks.Map, error)
	Close() error
}

// Config holds fast path tuning
type Config struct {
	FastWidth int     // crop width the fast path resizes to
	Padding   float64 // previous box growth per side, relative to its size
}

// DefaultConfig returns a 120px fast path with 20% padding
func DefaultConfig() Config {
	return Config{
		FastWidth: 120,
		Padding:   0.2,
	}
}

// FaceDetector finds the single face in a frame
type FaceDetector struct {
	finder    FaceFinder
	predictor LandmarkPredictor
	cfg       Config
	log       *slog.Logger
}

// NewFaceDetector wires a finder and predictor. It does not take ownership;
// whoever created them closes them.
func NewFaceDetector(finder FaceFinder, predictor LandmarkPredictor, cfg Config) *FaceDetector {
	def := DefaultConfig()
	if cfg.FastWidth <= 0 {
		cfg.FastWidth = def.FastWidth
	}
	if cfg.Padding < 0 {
		cfg.Padding = def.Padding
	}
	return &FaceDetector{
		finder:    finder,
		predictor: predictor,
		cfg:       cfg,
		log:       log.With("component", "detector"),
	}
}

// Detect finds the face in frame. With prev it first searches the padded
// region around prev; a miss there falls back to the full frame. It returns
// nil when no face is present and *AmbiguousDetectionError when a search
// sees more than one.
func (d *FaceDetector) Detect(frame gocv.Mat, prev *Detection) (*Detection, error) {
	if prev != nil {
		det, err := d.detectFast(frame, prev.Box)
		if err != nil {
			return nil, err
		}
		if det != nil {
			return det, nil
		}
		d.log.Debug("fast path missed, searching full frame", "prev", prev.Box)
	}
	return d.detectFull(frame)
}

// Analyze runs Detect and, when a face is found, predicts its landmarks on
// the full-resolution frame. The returned FaceFrame holds its own copy of
// frame.
func (d *FaceDetector) Analyze(frame gocv.Mat, prev *Detection) (*FaceFrame, error) {
	det, err := d.Detect(frame, prev)
	if err != nil {
		return nil, err
	}

	ff := &FaceFrame{Detection: det}
	if det != nil {
		lm, err := d.predictor.Predict(frame, det.Box)
		if err != nil {
			return nil, fmt.Errorf("landmark prediction failed: %w", err)
		}
		ff.Landmarks = lm
	}
	ff.Frame = frame.Clone()
	return ff, nil
}

func (d *FaceDetector) detectFull(frame gocv.Mat) (*Detection, error) {
	cands, err := d.finder.Find(frame)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	c, err := single(cands, false)
	if err != nil || c == nil {
		return nil, err
	}

	box := c.Box.Rect().Intersect(bounds(frame))
	if box.Empty() {
		return nil, nil
	}
	d.log.Debug("full frame detection", "box", box, "score", c.Score)
	return &Detection{Box: box, Score: c.Score}, nil
}

func (d *FaceDetector) detectFast(frame gocv.Mat, prev image.Rectangle) (*Detection, error) {
	win, ok := newSearchWindow(prev, bounds(frame), d.cfg.Padding, d.cfg.FastWidth)
	if !ok {
		return nil, nil
	}

	region := frame.Region(win.crop)
	defer region.Close()
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(region, &small, win.size, 0, 0, gocv.InterpolationArea)

	cands, err := d.finder.Find(small)
	if err != nil {
		return nil, fmt.Errorf("fast detection failed: %w", err)
	}
	c, err := single(cands, true)
	if err != nil || c == nil {
		return nil, err
	}

	box := win.toFrame(c.Box).Intersect(bounds(frame))
	if box.Empty() {
		return nil, nil
	}
	d.log.Debug("fast path detection", "box", box, "crop", win.crop, "scale", win.scale)
	return &Detection{Box: box, Score: c.Score, Fast: true}, nil
}

func single(cands []Candidate, fast bool) (*Candidate, error) {
	switch len(cands) {
	case 0:
		return nil, nil
	case 1:
		return &cands[0], nil
	default:
		return nil, &AmbiguousDetectionError{Count: len(cands), Fast: fast}
	}
}

func bounds(m gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, m.Cols(), m.Rows())
}
