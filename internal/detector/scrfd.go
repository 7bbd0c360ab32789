package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/inference"
)

// SCRFDConfig configures the SCRFD finder
type SCRFDConfig struct {
	ModelPath     string
	InputSize     int     // square network input, multiple of 32
	ConfThreshold float32 // minimum anchor score
	NMSThreshold  float32 // IoU above which weaker boxes are dropped
}

// DefaultSCRFDConfig returns settings for det_10g / det_500m exports
func DefaultSCRFDConfig() SCRFDConfig {
	return SCRFDConfig{
		ModelPath:     "models/det_10g.onnx",
		InputSize:     640,
		ConfThreshold: 0.5,
		NMSThreshold:  0.4,
	}
}

// SCRFD finds faces with the SCRFD anchor-free detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD loads an SCRFD model
func NewSCRFD(cfg SCRFDConfig) (*SCRFD, error) {
	if cfg.InputSize <= 0 || cfg.InputSize%32 != 0 {
		return nil, fmt.Errorf("scrfd: input size %d is not a positive multiple of 32", cfg.InputSize)
	}

	// 1 input, 9 outputs (3 levels x score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(cfg.ModelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      cfg.InputSize,
		confThreshold:  cfg.ConfThreshold,
		nmsThreshold:   cfg.NMSThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2,
	}, nil
}

// Find returns the faces in img after NMS
func (s *SCRFD) Find(img gocv.Mat) ([]Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(s.inputSize), int64(s.inputSize)),
		bytesToFloat32(inputBlob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 9)
	defer func() {
		for _, t := range outputTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()

	widths := []int64{1, 4, 10}
	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		n := int64(fm * fm * s.numAnchors)
		for kind, w := range widths {
			t, err := inference.CreateEmptyTensor[float32]([]int64{n, w})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs[level+kind*3] = t
			outputTensors[level+kind*3] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("scrfd inference failed: %w", err)
	}

	cands := s.postprocess(outputTensors, scale, img.Cols(), img.Rows())
	return nms(cands, s.nmsThreshold), nil
}

// preprocess letterboxes img into the network input and returns the
// NCHW blob with the resize scale
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))
	newWidth := max(1, int(float32(width)*scale))
	newHeight := max(1, int(float32(height)*scale))

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	// (x - 127.5) / 128, RGB
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// postprocess decodes distance-to-edge boxes per anchor
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, origWidth, origHeight int) []Candidate {
	var cands []Candidate

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		scores := outputs[level].GetData()
		boxes := outputs[level+3].GetData()
		st := float32(stride)

		idx := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := scores[idx]
					if score > s.confThreshold {
						cx := float32(x) * st
						cy := float32(y) * st
						b := boxes[idx*4 : idx*4+4]
						cands = append(cands, Candidate{
							Box: BoundingBox{
								X1: clamp((cx-b[0]*st)/scale, 0, float32(origWidth)),
								Y1: clamp((cy-b[1]*st)/scale, 0, float32(origHeight)),
								X2: clamp((cx+b[2]*st)/scale, 0, float32(origWidth)),
								Y2: clamp((cy+b[3]*st)/scale, 0, float32(origHeight)),
							},
							Score: score,
						})
					}
					idx++
				}
			}
		}
	}

	return cands
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
