// Package pipeline runs detection, smoothing and lens compositing for one
// frame at a time, keeping the state that links consecutive frames.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/detector"
	"github.com/dudu/facelens/internal/inference"
	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/lens"
	"github.com/dudu/facelens/internal/log"
	"github.com/dudu/facelens/internal/smoothing"
)

// Config holds pipeline configuration
type Config struct {
	Detection detector.ServiceConfig
	Smoothing smoothing.Config
	Lenses    []string // applied in order
	Lens      lens.Options
}

// DefaultConfig draws glasses with the default models
func DefaultConfig() Config {
	return Config{
		Detection: detector.DefaultServiceConfig(),
		Smoothing: smoothing.DefaultConfig(),
		Lenses:    []string{lens.Glasses.Name},
		Lens:      lens.DefaultOptions(),
	}
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Smoothing time.Duration
	Lenses    time.Duration
	Total     time.Duration
	Fast      bool // face came from the fast path
}

// Analysis is the per-frame result of detection and smoothing.
type Analysis struct {
	Face     *detector.FaceFrame
	Smoothed *landmarks.Map // nil when no face was found this frame
	Rapid    bool
}

// Close releases the analyzed frame copy.
func (a *Analysis) Close() error {
	if a == nil {
		return nil
	}
	return a.Face.Close()
}

// Pipeline turns raw frames into frames with lenses drawn on them.
//
// Analyze keeps cross-frame state and must be called from one goroutine.
// Render may run on another goroutine than Analyze.
type Pipeline struct {
	analyzer FaceAnalyzer
	service  *detector.Service
	smoother *smoothing.Smoother
	lenses   []Compositor

	// owned by the Analyze goroutine
	window       *smoothing.Window
	lastReliable *detector.Detection

	mu         sync.Mutex
	lastTiming Timing

	log *slog.Logger
}

// New loads the detection models and lenses named in cfg
func New(cfg Config) (*Pipeline, error) {
	svc, err := detector.NewService(cfg.Detection)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	lensOpts := cfg.Lens
	if lensOpts.Topology == nil {
		lensOpts.Topology = cfg.Detection.Landmarks.Topology
	}
	lenses, err := lens.Build(cfg.Lenses, lensOpts)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to load lenses: %w", err)
	}

	p := NewWithComponents(svc.Detector(), lenses, cfg.Smoothing)
	p.service = svc
	return p, nil
}

// NewWithComponents builds a pipeline around an existing analyzer. The
// pipeline takes ownership of lenses.
func NewWithComponents(analyzer FaceAnalyzer, lenses []Compositor, cfg smoothing.Config) *Pipeline {
	smoother := smoothing.New(cfg)
	return &Pipeline{
		analyzer: analyzer,
		smoother: smoother,
		lenses:   lenses,
		window:   smoothing.NewWindow(smoother.Config().WindowSize),
		log:      log.With("component", "pipeline"),
	}
}

// Analyze detects the face in frame and smooths its landmarks against the
// recent window. A frame with more than one face returns the detector's
// *detector.AmbiguousDetectionError and drops the fast path seed.
func (p *Pipeline) Analyze(frame gocv.Mat) (*Analysis, error) {
	var timing Timing

	detectStart := time.Now()
	face, err := p.analyzer.Analyze(frame, p.lastReliable)
	timing.Detection = time.Since(detectStart)
	if err != nil {
		var amb *detector.AmbiguousDetectionError
		if errors.As(err, &amb) {
			p.lastReliable = nil
		}
		p.setTiming(timing)
		return nil, err
	}

	// only full-frame results seed the fast path
	if face.Detection == nil || !face.Detection.Fast {
		p.lastReliable = face.Detection
	}
	timing.Fast = face.Detection != nil && face.Detection.Fast

	a := &Analysis{Face: face}
	if !face.HasFace() {
		p.setTiming(timing)
		return a, nil
	}

	smoothStart := time.Now()
	p.window.Push(face.Landmarks)
	smoothed, rapid, err := p.smoother.Smooth(p.window.Maps())
	timing.Smoothing = time.Since(smoothStart)
	p.setTiming(timing)
	if err != nil {
		face.Close()
		return nil, fmt.Errorf("smoothing failed: %w", err)
	}
	if rapid {
		p.log.Debug("rapid movement, restarting window", "frames", p.window.Len())
		p.window.Reset(face.Landmarks)
	}

	a.Smoothed = smoothed
	a.Rapid = rapid
	return a, nil
}

// Render draws every lens onto a copy of frame, in order, using the
// smoothed landmarks from a. A nil analysis or one without a face yields an
// unchanged copy. Lens failures are logged and returned joined; the
// returned Mat is valid and owned by the caller either way.
func (p *Pipeline) Render(frame gocv.Mat, a *Analysis) (gocv.Mat, error) {
	start := time.Now()
	out := frame.Clone()

	var m *landmarks.Map
	if a != nil {
		m = a.Smoothed
	}

	var errs []error
	for _, l := range p.lenses {
		if err := l.Apply(&out, m); err != nil {
			p.log.Warn("lens skipped for frame", "lens", l.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
		}
	}

	p.mu.Lock()
	p.lastTiming.Lenses = time.Since(start)
	p.lastTiming.Total = p.lastTiming.Detection + p.lastTiming.Smoothing + p.lastTiming.Lenses
	p.mu.Unlock()

	return out, errors.Join(errs...)
}

// Process analyzes and renders one frame. When analysis fails the frame is
// passed through unchanged along with the error.
func (p *Pipeline) Process(frame gocv.Mat) (gocv.Mat, error) {
	a, err := p.Analyze(frame)
	if err != nil {
		return frame.Clone(), err
	}
	defer a.Close()
	return p.Render(frame, a)
}

// LastTiming returns timing from the last Analyze and Render calls
func (p *Pipeline) LastTiming() Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTiming
}

func (p *Pipeline) setTiming(t Timing) {
	p.mu.Lock()
	p.lastTiming = t
	p.mu.Unlock()
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	for _, l := range p.lenses {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("lens %s: %w", l.Name(), err))
		}
	}
	p.lenses = nil

	if p.service != nil {
		if err := p.service.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := inference.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		p.service = nil
	}

	return errors.Join(errs...)
}
