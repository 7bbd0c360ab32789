package detector

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/inference"
	"github.com/dudu/facelens/internal/landmarks"
)

// OutputRange is the coordinate range a landmark regression head emits,
// relative to its square input crop.
type OutputRange int

const (
	// RangeSigned means [-1, 1] (insightface 2d106det style)
	RangeSigned OutputRange = iota
	// RangeUnit means [0, 1] (PFLD style)
	RangeUnit
)

// LandmarkNetConfig configures a landmark regression model
type LandmarkNetConfig struct {
	ModelPath  string
	InputName  string
	OutputName string
	InputSize  int
	Topology   *landmarks.Topology
	Range      OutputRange
	Expand     float32 // crop side relative to the longer box side
	Mean, Std  float32
	SwapRB     bool // feed RGB instead of BGR
}

// DefaultLandmarkNetConfig returns settings for a 68-point PFLD export
func DefaultLandmarkNetConfig() LandmarkNetConfig {
	return LandmarkNetConfig{
		ModelPath:  "models/pfld_68.onnx",
		InputName:  "input",
		OutputName: "output",
		InputSize:  112,
		Topology:   landmarks.IBUG68,
		Range:      RangeUnit,
		Expand:     1.2,
		Mean:       0,
		Std:        255,
		SwapRB:     true,
	}
}

// LandmarkNet predicts a fixed landmark set inside a face box
type LandmarkNet struct {
	session *inference.Session
	cfg     LandmarkNetConfig
}

// NewLandmarkNet loads a landmark model
func NewLandmarkNet(cfg LandmarkNetConfig) (*LandmarkNet, error) {
	if cfg.Topology == nil {
		return nil, fmt.Errorf("landmark net: topology is required")
	}
	if cfg.InputSize <= 0 || cfg.Expand <= 0 || cfg.Std == 0 {
		return nil, fmt.Errorf("landmark net: invalid preprocessing (size %d, expand %.2f, std %.2f)",
			cfg.InputSize, cfg.Expand, cfg.Std)
	}

	session, err := inference.NewSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName})
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}
	return &LandmarkNet{session: session, cfg: cfg}, nil
}

// Topology returns the layout of predicted maps
func (l *LandmarkNet) Topology() *landmarks.Topology {
	return l.cfg.Topology
}

// Predict runs the model on the square crop around box in img
func (l *LandmarkNet) Predict(img gocv.Mat, box image.Rectangle) (*landmarks.Map, error) {
	if box.Empty() {
		return nil, fmt.Errorf("landmark net: empty face box")
	}
	size := l.cfg.InputSize
	c := newCropTransform(box, size, l.cfg.Expand)

	// scale-and-translate only, no rotation
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	m.SetDoubleAt(0, 0, float64(c.scale))
	m.SetDoubleAt(0, 2, float64(size)/2-float64(c.centerX*c.scale))
	m.SetDoubleAt(1, 1, float64(c.scale))
	m.SetDoubleAt(1, 2, float64(size)/2-float64(c.centerY*c.scale))

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, m, image.Pt(size, size))

	mean := float64(l.cfg.Mean)
	blob := gocv.BlobFromImage(aligned, 1/float64(l.cfg.Std), image.Pt(size, size),
		gocv.NewScalar(mean, mean, mean, 0), l.cfg.SwapRB, false)
	defer blob.Close()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size), int64(size)),
		bytesToFloat32(blob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	n := l.cfg.Topology.Size()
	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, int64(n * 2)})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := l.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("landmark inference failed: %w", err)
	}

	return landmarks.NewMap(l.cfg.Topology, c.decode(outputTensor.GetData(), n, l.cfg.Range))
}

// Close releases model resources
func (l *LandmarkNet) Close() error {
	return l.session.Destroy()
}

// cropTransform relates frame pixels to a square model input centred on a
// face box
type cropTransform struct {
	centerX, centerY float32
	scale            float32 // input pixels per frame pixel
	half             float32
}

func newCropTransform(box image.Rectangle, inputSize int, expand float32) cropTransform {
	w, h := float32(box.Dx()), float32(box.Dy())
	return cropTransform{
		centerX: float32(box.Min.X+box.Max.X) / 2,
		centerY: float32(box.Min.Y+box.Max.Y) / 2,
		scale:   float32(inputSize) / (max(w, h) * expand),
		half:    float32(inputSize) / 2,
	}
}

// decode maps n interleaved (x, y) model outputs back to frame pixels
func (c cropTransform) decode(out []float32, n int, r OutputRange) []landmarks.Point {
	pts := make([]landmarks.Point, n)
	for i := range pts {
		x, y := out[i*2], out[i*2+1]
		if r == RangeUnit {
			x, y = x*2-1, y*2-1
		}
		// [-1, 1] -> input pixels -> frame pixels
		pts[i] = landmarks.Point{
			X: float64(x*c.half/c.scale + c.centerX),
			Y: float64(y*c.half/c.scale + c.centerY),
		}
	}
	return pts
}
