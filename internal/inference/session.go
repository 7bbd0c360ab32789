// Package inference wraps ONNX Runtime sessions shared by the model backends.
package inference

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facelens/internal/log"
)

// LibraryEnv overrides the ONNX Runtime shared library location
const LibraryEnv = "FACELENS_ORT_LIB"

var (
	initialized bool
	useCoreML   bool
	initMu      sync.Mutex
)

// DefaultLibraryPath returns the runtime library for this platform, or the
// LibraryEnv override when set
func DefaultLibraryPath() string {
	if p := os.Getenv(LibraryEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "lib/libonnxruntime.so"
	}
}

// EnableCoreML requests the CoreML execution provider for sessions created
// afterwards. Sessions fall back to CPU when it is unavailable.
func EnableCoreML(enable bool) {
	initMu.Lock()
	defer initMu.Unlock()
	useCoreML = enable
}

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	path := DefaultLibraryPath()
	ort.SetSharedLibraryPath(path)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", path, err)
	}

	log.Debug("onnx runtime initialized", "library", path, "version", ort.GetVersion())
	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates a new inference session from an ONNX model
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	initMu.Lock()
	ready, coreml := initialized, useCoreML
	initMu.Unlock()

	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "cpu"
	if coreml {
		// 0 = default flags, Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			log.Warn("coreml unavailable, using cpu", "model", modelPath, "error", err)
		} else {
			provider = "coreml"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	log.Debug("model loaded", "model", modelPath, "provider", provider)
	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// ModelPath returns the file the session was loaded from
func (s *Session) ModelPath() string {
	return s.modelPath
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return ort.NewTensor(ort.NewShape(shape...), make([]T, size))
}

// IOInfo describes a model's inputs and outputs
type IOInfo struct {
	Inputs  []ort.InputOutputInfo
	Outputs []ort.InputOutputInfo
}

// Inspect reads a model's declared tensors without creating a session
func Inspect(modelPath string) (IOInfo, error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return IOInfo{}, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	return IOInfo{Inputs: in, Outputs: out}, nil
}
