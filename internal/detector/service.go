package detector

import (
	"errors"
	"fmt"

	"github.com/dudu/facelens/internal/inference"
	"github.com/dudu/facelens/internal/log"
)

// Backend names a FaceFinder implementation
type Backend string

const (
	BackendSCRFD Backend = "scrfd"
	BackendPigo  Backend = "pigo"
)

// ServiceConfig selects and configures the models
type ServiceConfig struct {
	Finder    Backend
	SCRFD     SCRFDConfig
	Pigo      PigoConfig
	Landmarks LandmarkNetConfig
	Detector  Config
}

// DefaultServiceConfig uses SCRFD with the 68-point landmark net
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Finder:    BackendSCRFD,
		SCRFD:     DefaultSCRFDConfig(),
		Pigo:      DefaultPigoConfig(),
		Landmarks: DefaultLandmarkNetConfig(),
		Detector:  DefaultConfig(),
	}
}

// Service owns the loaded finder and predictor. Create one at startup and
// hand its detector to whoever needs it.
type Service struct {
	finder    FaceFinder
	predictor LandmarkPredictor
	detector  *FaceDetector
}

// NewService loads every model. Any missing or broken model file fails here,
// before a frame is processed.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := inference.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize inference: %w", err)
	}

	var (
		finder FaceFinder
		err    error
	)
	switch cfg.Finder {
	case BackendSCRFD, "":
		finder, err = NewSCRFD(cfg.SCRFD)
	case BackendPigo:
		finder, err = NewPigo(cfg.Pigo)
	default:
		return nil, fmt.Errorf("unknown face finder %q", cfg.Finder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create face finder: %w", err)
	}

	predictor, err := NewLandmarkNet(cfg.Landmarks)
	if err != nil {
		finder.Close()
		return nil, fmt.Errorf("failed to create landmark predictor: %w", err)
	}

	log.Info("detection models loaded",
		"finder", cfg.Finder,
		"landmarks", cfg.Landmarks.ModelPath,
		"points", cfg.Landmarks.Topology.Size())

	return NewServiceWith(finder, predictor, cfg.Detector), nil
}

// NewServiceWith wraps already constructed backends. The service takes
// ownership and closes them.
func NewServiceWith(finder FaceFinder, predictor LandmarkPredictor, cfg Config) *Service {
	return &Service{
		finder:    finder,
		predictor: predictor,
		detector:  NewFaceDetector(finder, predictor, cfg),
	}
}

// Detector returns the shared face detector
func (s *Service) Detector() *FaceDetector {
	return s.detector
}

// Close releases both models
func (s *Service) Close() error {
	var errs []error
	if s.finder != nil {
		if err := s.finder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finder: %w", err))
		}
	}
	if s.predictor != nil {
		if err := s.predictor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("predictor: %w", err))
		}
	}
	return errors.Join(errs...)
}
