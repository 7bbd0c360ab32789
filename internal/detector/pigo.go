package detector

import (
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/log"
)

// PigoConfig configures the cascade finder
type PigoConfig struct {
	CascadePath  string
	MinSize      int     // smallest face side in pixels
	MaxSize      int     // largest face side in pixels
	ShiftFactor  float64 // window step relative to its size
	ScaleFactor  float64 // pyramid step
	IoUThreshold float64 // cluster merge threshold
	MinQuality   float32 // detections scoring below are dropped
}

// DefaultPigoConfig suits the 120px fast-path crop as well as full frames
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		CascadePath:  "models/facefinder",
		MinSize:      40,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5,
	}
}

// Pigo finds faces with the pigo pixel-intensity cascade. It needs no
// native runtime beyond gocv for the grayscale conversion.
type Pigo struct {
	classifier *pigo.Pigo
	cfg        PigoConfig
}

// NewPigo unpacks the cascade file
func NewPigo(cfg PigoConfig) (*Pigo, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	log.Debug("pigo cascade loaded", "path", cfg.CascadePath, "min_size", cfg.MinSize, "min_quality", cfg.MinQuality)
	return &Pigo{classifier: classifier, cfg: cfg}, nil
}

// Find returns faces above the quality threshold
func (p *Pigo) Find(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	rows, cols := gray.Rows(), gray.Cols()
	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     min(p.cfg.MaxSize, max(rows, cols)),
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.cfg.IoUThreshold)
	return pigoCandidates(dets, p.cfg.MinQuality), nil
}

// Close is a no-op; the cascade is plain Go memory
func (p *Pigo) Close() error {
	return nil
}

// pigoCandidates converts centre/side detections to boxes
func pigoCandidates(dets []pigo.Detection, minQuality float32) []Candidate {
	var cands []Candidate
	for _, d := range dets {
		if d.Q < minQuality {
			continue
		}
		half := float32(d.Scale) / 2
		cands = append(cands, Candidate{
			Box: BoundingBox{
				X1: float32(d.Col) - half,
				Y1: float32(d.Row) - half,
				X2: float32(d.Col) + half,
				Y2: float32(d.Row) + half,
			},
			Score: d.Q,
		})
	}
	return cands
}
