package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/camera"
	"github.com/dudu/facelens/internal/detector"
	"github.com/dudu/facelens/internal/inference"
	"github.com/dudu/facelens/internal/lens"
	"github.com/dudu/facelens/internal/log"
	"github.com/dudu/facelens/internal/pipeline"
	"github.com/dudu/facelens/internal/pose"
	"github.com/dudu/facelens/internal/processor"
	"github.com/dudu/facelens/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type Config struct {
	Camera        camera.Config
	Lenses        string
	Finder        string
	DetectorModel string
	LandmarkModel string
	PigoCascade   string
	AssetDir      string
	Center        string
	MaxRMS        float64
	SmoothWindow  int
	SmoothThresh  float64
	Async         bool
	Preview       bool
	CoreML        bool
	LogLevel      string
	ShowTiming    bool
	StopTimeout   time.Duration
}

func main() {
	config := parseFlags()
	log.Init(config.LogLevel)

	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{Camera: camera.DefaultConfig()}
	det := detector.DefaultServiceConfig()

	flag.IntVar(&config.Camera.Device, "camera", config.Camera.Device, "Camera device index")
	flag.IntVar(&config.Camera.Device, "c", config.Camera.Device, "Camera device index (shorthand)")
	flag.IntVar(&config.Camera.Fallback, "fallback-camera", config.Camera.Fallback, "Device tried when the first camera gives no frames (-1 to disable)")
	flag.IntVar(&config.Camera.FPS, "fps", config.Camera.FPS, "Target frames per second")
	flag.IntVar(&config.Camera.Width, "width", config.Camera.Width, "Requested frame width")
	flag.IntVar(&config.Camera.Height, "height", config.Camera.Height, "Requested frame height")
	flag.StringVar(&config.Lenses, "lenses", lens.Glasses.Name, "Comma separated lenses, drawn in order: "+strings.Join(lens.Names(), ", "))
	flag.StringVar(&config.Lenses, "l", lens.Glasses.Name, "Lenses (shorthand)")
	flag.StringVar(&config.Finder, "detector", string(det.Finder), "Face finder: scrfd or pigo")
	flag.StringVar(&config.DetectorModel, "detector-model", det.SCRFD.ModelPath, "SCRFD model path")
	flag.StringVar(&config.LandmarkModel, "landmark-model", det.Landmarks.ModelPath, "68-point landmark model path")
	flag.StringVar(&config.PigoCascade, "pigo-cascade", det.Pigo.CascadePath, "Pigo cascade path")
	flag.StringVar(&config.AssetDir, "assets", lens.DefaultOptions().AssetDir, "Lens asset directory")
	flag.StringVar(&config.Center, "center", pose.SwappedCenter.String(), "Principal point convention: swapped or image")
	flag.Float64Var(&config.MaxRMS, "max-rms", 0, "Reject head poses with a larger reprojection error in pixels (0 disables)")
	flag.IntVar(&config.SmoothWindow, "smooth-window", 0, "Landmark smoothing window in frames (0 = default)")
	flag.Float64Var(&config.SmoothThresh, "smooth-threshold", 0, "Landmark movement threshold in pixels (0 = default)")
	flag.BoolVar(&config.Async, "async", false, "Analyze frames on a worker goroutine")
	flag.BoolVar(&config.Async, "a", false, "Analyze frames on a worker goroutine (shorthand)")
	flag.BoolVar(&config.Preview, "preview", true, "Show preview window")
	flag.BoolVar(&config.Preview, "p", true, "Show preview window (shorthand)")
	flag.BoolVar(&config.CoreML, "coreml", false, "Use the CoreML execution provider when available")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.ShowTiming, "timing", true, "Draw stage timings on the preview")
	flag.DurationVar(&config.StopTimeout, "stop-timeout", time.Second, "How long to wait for the async worker on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "facelens - Real-time face lenses for your webcam\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facelens [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facelens --lenses glasses\n")
		fmt.Fprintf(os.Stderr, "  facelens --lenses cap,clown_nose --async\n")
		fmt.Fprintf(os.Stderr, "  facelens --detector pigo --lenses debug --log-level debug\n")
	}

	flag.Parse()
	return config
}

func pipelineConfig(config Config) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	backend := detector.Backend(config.Finder)
	if backend != detector.BackendSCRFD && backend != detector.BackendPigo {
		return cfg, fmt.Errorf("invalid detector: %s (use 'scrfd' or 'pigo')", config.Finder)
	}
	cfg.Detection.Finder = backend
	cfg.Detection.SCRFD.ModelPath = config.DetectorModel
	cfg.Detection.Pigo.CascadePath = config.PigoCascade
	cfg.Detection.Landmarks.ModelPath = config.LandmarkModel

	center, err := pose.ParseCenter(config.Center)
	if err != nil {
		return cfg, err
	}
	cfg.Lens.AssetDir = config.AssetDir
	cfg.Lens.Pose = []pose.Option{pose.WithCenter(center), pose.WithMaxRMS(config.MaxRMS)}

	if config.SmoothWindow > 0 {
		cfg.Smoothing.WindowSize = config.SmoothWindow
	}
	if config.SmoothThresh > 0 {
		cfg.Smoothing.Threshold = config.SmoothThresh
	}

	cfg.Lenses = nil
	for _, name := range strings.Split(config.Lenses, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.Lenses = append(cfg.Lenses, name)
		}
	}
	return cfg, nil
}

func run(config Config) error {
	fmt.Println("facelens starting...")

	cfg, err := pipelineConfig(config)
	if err != nil {
		return err
	}
	inference.EnableCoreML(config.CoreML)

	fmt.Printf("Loading models (detector: %s, lenses: %s)...\n", cfg.Detection.Finder, strings.Join(cfg.Lenses, ", "))
	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()
	fmt.Println("Models loaded successfully")

	fmt.Printf("Opening camera %d...\n", config.Camera.Device)
	cam, err := camera.Open(config.Camera)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer cam.Close()
	fmt.Printf("Camera %d opened: %dx%d\n", cam.Device(), cam.Width(), cam.Height())

	var window *ui.Window
	if config.Preview {
		window = ui.NewWindow("facelens", cam.Width(), cam.Height())
		defer window.Close()
	}

	var frames frameSource = syncSource{p}
	if config.Async {
		proc := processor.New(p.Analyze, func(a *pipeline.Analysis) { a.Close() })
		defer func() {
			if err := proc.Stop(config.StopTimeout); err != nil {
				log.Warn("worker shutdown", "error", err)
			}
		}()
		frames = asyncSource{p: p, proc: proc}
	}

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	frame := gocv.NewMat()
	defer frame.Close()

	fmt.Println("\nRunning... Press 'q' to quit")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		default:
		}

		if !cam.Read(&frame) {
			continue
		}

		out, err := frames.next(frame)
		if err != nil {
			var amb *detector.AmbiguousDetectionError
			if errors.As(err, &amb) {
				log.Debug("frame skipped", "faces", amb.Count)
			} else {
				log.Warn("frame degraded", "error", err)
			}
		}

		if config.ShowTiming {
			drawTiming(&out, p.LastTiming())
		}

		if window != nil {
			window.Show(&out)
			out.Close()
			// WaitKey must be called to process window events on macOS
			key := window.WaitKey(1)
			if key == 'q' || key == 27 { // 'q' or ESC
				fmt.Println("\nQuitting...")
				return nil
			}
			continue
		}
		out.Close()
	}
}

// frameSource turns a captured frame into the frame to show
type frameSource interface {
	next(frame gocv.Mat) (gocv.Mat, error)
}

type syncSource struct {
	p *pipeline.Pipeline
}

func (s syncSource) next(frame gocv.Mat) (gocv.Mat, error) {
	return s.p.Process(frame)
}

type asyncSource struct {
	p    *pipeline.Pipeline
	proc *processor.Processor[*pipeline.Analysis]
}

func (s asyncSource) next(frame gocv.Mat) (gocv.Mat, error) {
	s.proc.Feed(frame)
	snap := s.proc.Poll()

	var a *pipeline.Analysis
	if snap.Ok {
		a = snap.Value
	}
	out, err := s.p.Render(snap.Frame, a)
	return out, errors.Join(snap.Err, err)
}

func drawTiming(frame *gocv.Mat, t pipeline.Timing) {
	if t.Total <= 0 {
		return
	}
	path := "slow"
	if t.Fast {
		path = "fast"
	}
	text := fmt.Sprintf("D:%dms S:%dms L:%dms T:%dms %s",
		t.Detection.Milliseconds(),
		t.Smoothing.Milliseconds(),
		t.Lenses.Milliseconds(),
		t.Total.Milliseconds(),
		path)
	gocv.PutText(frame, text, image.Pt(20, 45),
		gocv.FontHersheyPlain, 1.2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 1)
}
