// Package camera opens the webcam that feeds the pipeline.
package camera

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/log"
)

// Config selects the capture device
type Config struct {
	Device   int // tried first
	Fallback int // tried when Device yields no frame; negative disables
	FPS      int
	Width    int
	Height   int
}

// DefaultConfig opens device 0 at 640x480, 30 fps, falling back to device 2
// where virtual camera plugins often push the real webcam
func DefaultConfig() Config {
	return Config{
		Device:   0,
		Fallback: 2,
		FPS:      30,
		Width:    640,
		Height:   480,
	}
}

// ErrNoFrames is returned when no configured device produces a frame.
var ErrNoFrames = errors.New("camera: no device produced a frame")

// Capture reads frames from one webcam
type Capture struct {
	webcam   *gocv.VideoCapture
	deviceID int
	width    int
	height   int
	mu       sync.Mutex
}

// Open starts capturing from cfg.Device, or from cfg.Fallback when the
// first device opens but returns an empty frame.
func Open(cfg Config) (*Capture, error) {
	c, err := open(cfg.Device, cfg)
	if err == nil {
		return c, nil
	}
	if cfg.Fallback < 0 || cfg.Fallback == cfg.Device {
		return nil, err
	}

	log.Warn("camera unusable, trying fallback", "device", cfg.Device, "fallback", cfg.Fallback, "error", err)
	fc, ferr := open(cfg.Fallback, cfg)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fc, nil
}

func open(device int, cfg Config) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", device, err)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if !webcam.Read(&probe) || probe.Empty() {
		webcam.Close()
		return nil, fmt.Errorf("camera %d: %w", device, ErrNoFrames)
	}

	c := &Capture{
		webcam:   webcam,
		deviceID: device,
		width:    probe.Cols(),
		height:   probe.Rows(),
	}
	log.Info("camera opened", "device", device, "width", c.width, "height", c.height,
		"fps", webcam.Get(gocv.VideoCaptureFPS))
	return c, nil
}

// Read captures a frame into the provided Mat
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}
	return c.webcam.Read(frame) && !frame.Empty()
}

// Device returns the device index in use
func (c *Capture) Device() int {
	return c.deviceID
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
