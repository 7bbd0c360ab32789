// Package render draws 3D lens meshes from a given camera onto a chroma-key
// background, for compositing over live frames.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"
)

// Renderer draws a fixed scene from a movable camera. Implementations are
// driven from a single goroutine: set the camera, then render, per frame.
type Renderer interface {
	SetCamera(Camera)
	Render() (gocv.Mat, error)
	Background() color.RGBA
	Close() error
}

// Config holds software renderer settings
type Config struct {
	Background color.RGBA // chroma key, never produced by shading
	Ambient    float64    // light floor in [0, 1]
	Near       float64    // triangles closer than this are dropped
}

// DefaultConfig renders on pure green
func DefaultConfig() Config {
	return Config{
		Background: color.RGBA{R: 0, G: 255, B: 0, A: 255},
		Ambient:    0.35,
		Near:       1e-3,
	}
}

// Software is a flat-shaded painter's algorithm rasterizer on gocv.
type Software struct {
	cfg    Config
	meshes []*Mesh
	cam    Camera
	hasCam bool
}

var errNoCamera = errors.New("render: camera not set")

// NewSoftware builds a renderer for a static scene.
func NewSoftware(cfg Config, meshes ...*Mesh) (*Software, error) {
	if len(meshes) == 0 {
		return nil, ErrEmptyMesh
	}
	for _, m := range meshes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Ambient < 0 || cfg.Ambient > 1 {
		cfg.Ambient = DefaultConfig().Ambient
	}
	if cfg.Near <= 0 {
		cfg.Near = DefaultConfig().Near
	}
	return &Software{cfg: cfg, meshes: meshes}, nil
}

// SetCamera sets the viewpoint for the next Render.
func (s *Software) SetCamera(c Camera) {
	s.cam = c
	s.hasCam = true
}

// Background returns the chroma key colour.
func (s *Software) Background() color.RGBA {
	return s.cfg.Background
}

type triangle struct {
	pts   []image.Point
	depth float64
	color color.RGBA
}

// Render draws the scene into a new BGR Mat of the camera's size.
func (s *Software) Render() (gocv.Mat, error) {
	if !s.hasCam {
		return gocv.NewMat(), errNoCamera
	}
	if s.cam.Width <= 0 || s.cam.Height <= 0 {
		return gocv.NewMat(), fmt.Errorf("render: invalid viewport %dx%d", s.cam.Width, s.cam.Height)
	}
	v, err := newView(s.cam)
	if err != nil {
		return gocv.NewMat(), err
	}

	bg := s.cfg.Background
	img := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0),
		s.cam.Height, s.cam.Width, gocv.MatTypeCV8UC3)

	tris := s.collect(v)

	// far to near
	sort.Slice(tris, func(i, j int) bool { return tris[i].depth > tris[j].depth })

	for _, t := range tris {
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{t.pts})
		gocv.FillPoly(&img, pv, t.color)
		pv.Close()
	}
	return img, nil
}

func (s *Software) collect(v view) []triangle {
	var tris []triangle
	for _, m := range s.meshes {
		for _, f := range m.Faces {
			var cam [3]r3.Vec
			visible := true
			for k, idx := range f {
				cam[k] = v.toCamera(m.Vertices[idx])
				if cam[k].Z < s.cfg.Near {
					visible = false
					break
				}
			}
			if !visible {
				continue
			}

			n := r3.Cross(r3.Sub(cam[1], cam[0]), r3.Sub(cam[2], cam[0]))
			if r3.Norm(n) == 0 {
				continue
			}
			// headlight along the optical axis, lit from both sides
			lambert := math.Abs(r3.Unit(n).Z)

			pts := make([]image.Point, 3)
			for k := range cam {
				x, y := v.project(cam[k])
				pts[k] = image.Pt(int(math.Round(x)), int(math.Round(y)))
			}
			tris = append(tris, triangle{
				pts:   pts,
				depth: (cam[0].Z + cam[1].Z + cam[2].Z) / 3,
				color: s.shade(m.Color, lambert),
			})
		}
	}
	return tris
}

// shade scales c by the light level and keeps it off the chroma key.
func (s *Software) shade(c color.RGBA, lambert float64) color.RGBA {
	k := s.cfg.Ambient + (1-s.cfg.Ambient)*lambert
	out := color.RGBA{
		R: uint8(math.Round(float64(c.R) * k)),
		G: uint8(math.Round(float64(c.G) * k)),
		B: uint8(math.Round(float64(c.B) * k)),
		A: 255,
	}
	bg := s.cfg.Background
	if out.R == bg.R && out.G == bg.G && out.B == bg.B {
		if out.R < 255 {
			out.R++
		} else {
			out.R--
		}
	}
	return out
}

// Close releases renderer resources
func (s *Software) Close() error {
	s.meshes = nil
	return nil
}
