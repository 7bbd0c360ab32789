// Package smoothing stabilizes landmark positions over a short window of
// frames, averaging out detector jitter while following real head motion.
package smoothing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dudu/facelens/internal/landmarks"
)

// ErrEmptyWindow is returned when Smooth is called with no maps.
var ErrEmptyWindow = errors.New("smoothing: empty window")

// Dispersion selects how the two per-axis standard deviations of a
// landmark are folded into one number.
type Dispersion int

const (
	// MaxAxis uses the larger of the x and y standard deviations.
	MaxAxis Dispersion = iota
	// MeanAxis uses the mean of the x and y standard deviations.
	MeanAxis
)

// Config holds smoothing parameters
type Config struct {
	WindowSize int        // Frames kept for averaging
	Threshold  float64    // Dispersion (px) at or above which a landmark counts as moving
	Dispersion Dispersion // How per-axis spread is combined
	Recent     int        // Positions averaged for a moving landmark (1 = last only)
}

// DefaultConfig returns the tuning used by the live pipeline
func DefaultConfig() Config {
	return Config{
		WindowSize: 20,
		Threshold:  7,
		Dispersion: MaxAxis,
		Recent:     1,
	}
}

// Smoother turns a window of landmark maps into one stabilized map.
type Smoother struct {
	cfg Config
}

// New creates a smoother. Zero fields fall back to DefaultConfig values.
func New(cfg Config) *Smoother {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Recent <= 0 {
		cfg.Recent = def.Recent
	}
	return &Smoother{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Smoother) Config() Config {
	return s.cfg
}

// Smooth combines maps (oldest first) into a fresh map. Each landmark is
// handled on its own: a landmark whose dispersion stays under the threshold
// gets the window mean, otherwise it follows the most recent positions and
// the whole result is flagged as rapid movement.
//
// Callers must restart their window from the newest raw map when rapid is
// true, so stale frames do not drag the next result behind the head.
func (s *Smoother) Smooth(maps []*landmarks.Map) (*landmarks.Map, bool, error) {
	if len(maps) == 0 {
		return nil, false, ErrEmptyWindow
	}

	topo := maps[0].Topology()
	for i, m := range maps {
		if m == nil {
			return nil, false, fmt.Errorf("smoothing: nil map at position %d", i)
		}
		if m.Topology() != topo {
			return nil, false, fmt.Errorf("smoothing: map %d uses %s, want %s", i, m.Topology().Name(), topo.Name())
		}
	}

	n := len(maps)
	latest := maps[n-1]
	xs := make([]float64, n)
	ys := make([]float64, n)
	out := make([]landmarks.Point, topo.Size())
	rapid := false

	for idx := range out {
		for i, m := range maps {
			p := m.At(idx)
			xs[i], ys[i] = p.X, p.Y
		}

		meanX, stdX := stat.PopMeanStdDev(xs, nil)
		meanY, stdY := stat.PopMeanStdDev(ys, nil)

		switch {
		case stdX == 0 && stdY == 0:
			// static point: keep it exact rather than a recomputed mean
			out[idx] = latest.At(idx)
		case s.dispersion(stdX, stdY) < s.cfg.Threshold:
			out[idx] = landmarks.Point{X: meanX, Y: meanY}
		default:
			rapid = true
			out[idx] = s.recent(xs, ys)
		}
	}

	smoothed, err := landmarks.NewMap(topo, out)
	if err != nil {
		return nil, false, err
	}
	return smoothed, rapid, nil
}

func (s *Smoother) dispersion(stdX, stdY float64) float64 {
	if s.cfg.Dispersion == MeanAxis {
		return (stdX + stdY) / 2
	}
	return math.Max(stdX, stdY)
}

// recent averages the last cfg.Recent positions.
func (s *Smoother) recent(xs, ys []float64) landmarks.Point {
	k := s.cfg.Recent
	if k > len(xs) {
		k = len(xs)
	}
	from := len(xs) - k
	return landmarks.Point{
		X: stat.Mean(xs[from:], nil),
		Y: stat.Mean(ys[from:], nil),
	}
}
