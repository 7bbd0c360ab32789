package lens

import (
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/log"
	"github.com/dudu/facelens/internal/pose"
	"github.com/dudu/facelens/internal/render"
)

// Descriptor3D configures a mesh lens. Mesh is "cap", "torus", or the name
// of a Wavefront OBJ file in the asset directory. Placement moves the mesh
// into the face model frame (nose bottom origin, +y up, +z out of the face,
// half a face width per unit).
type Descriptor3D struct {
	Name      string
	Mesh      string
	Color     color.RGBA
	Placement render.Placement
}

// Cap3D is a cap resting on top of the head.
var Cap3D = Descriptor3D{
	Name:  "cap",
	Mesh:  "cap",
	Color: color.RGBA{R: 200, G: 30, B: 40, A: 255},
	Placement: render.Placement{
		Scale:  1.15,
		Offset: r3.Vec{Y: 1.05, Z: -0.55},
	},
}

// NoseRing hangs just under the nose.
var NoseRing = Descriptor3D{
	Name:  "nose_ring",
	Mesh:  "torus",
	Color: color.RGBA{R: 212, G: 175, B: 55, A: 255},
	Placement: render.Placement{
		Scale:  0.12,
		Offset: r3.Vec{Y: -0.14, Z: 0.1},
	},
}

// DogNose loads dog_nose.obj over the nose tip.
var DogNose = Descriptor3D{
	Name:  "dog",
	Mesh:  "dog_nose.obj",
	Color: color.RGBA{R: 40, G: 30, B: 30, A: 255},
	Placement: render.Placement{
		Scale:  0.35,
		Offset: r3.Vec{Y: 0.2, Z: 0.35},
	},
}

// Builtin3D lists the bundled mesh lenses by name.
var Builtin3D = map[string]Descriptor3D{
	Cap3D.Name:    Cap3D,
	NoseRing.Name: NoseRing,
	DogNose.Name:  DogNose,
}

// Load builds the placed mesh.
func (d Descriptor3D) Load(dir string) (*render.Mesh, error) {
	var m *render.Mesh
	switch d.Mesh {
	case "cap":
		m = render.Cap(1, 0.6, 32, d.Color)
	case "torus":
		m = render.Torus(1, 0.2, 32, 12, d.Color)
	case "":
		return nil, fmt.Errorf("lens %s: no mesh", d.Name)
	default:
		var err error
		m, err = render.LoadOBJ(filepath.Join(dir, d.Mesh), d.Color)
		if err != nil {
			return nil, fmt.Errorf("lens %s: %w", d.Name, err)
		}
	}
	return m.Place(d.Placement), nil
}

// Lens3D renders a mesh from the head pose and keys it onto the frame.
type Lens3D struct {
	name     string
	renderer render.Renderer
	anchor   r3.Vec
	opts     []pose.Option
	logger   *slog.Logger
}

// NewLens3D drives r for every frame. anchor is the model point the keyed
// render is centred on. The lens takes ownership of r.
func NewLens3D(name string, r render.Renderer, anchor r3.Vec, opts ...pose.Option) *Lens3D {
	return &Lens3D{
		name:     name,
		renderer: r,
		anchor:   anchor,
		opts:     opts,
		logger:   log.With("component", "lens", "lens", name),
	}
}

// OpenLens3D builds desc's mesh and a software renderer for it, anchored at
// the mesh centre.
func OpenLens3D(desc Descriptor3D, dir string, cfg render.Config, opts ...pose.Option) (*Lens3D, error) {
	mesh, err := desc.Load(dir)
	if err != nil {
		return nil, err
	}
	r, err := render.NewSoftware(cfg, mesh)
	if err != nil {
		return nil, fmt.Errorf("lens %s: %w", desc.Name, err)
	}
	return NewLens3D(desc.Name, r, mesh.Center(), opts...), nil
}

// Name returns the lens name.
func (l *Lens3D) Name() string {
	return l.name
}

// Apply solves the head pose, renders the scene from it and blends the
// keyed render at the projected anchor. A failed pose solve returns a
// *pose.Error with frame untouched.
func (l *Lens3D) Apply(frame *gocv.Mat, m *landmarks.Map) error {
	if m == nil || frame.Empty() {
		return nil
	}

	est, err := pose.New(m, frame.Cols(), frame.Rows(), l.opts...)
	if err != nil {
		return err
	}

	in := est.Intrinsics()
	pos := est.CameraPosition()
	l.renderer.SetCamera(render.Camera{
		Position: pos,
		LookAt:   r3.Add(pos, est.LookDirection()),
		Roll:     est.Roll(),
		Width:    frame.Cols(),
		Height:   frame.Rows(),
		Fx:       in.Fx,
		Fy:       in.Fy,
		Cx:       in.Cx,
		Cy:       in.Cy,
	})

	img, err := l.renderer.Render()
	defer img.Close()
	if err != nil {
		return fmt.Errorf("lens %s: %w", l.name, err)
	}

	keyed, bounds, err := ChromaKey(img, l.renderer.Background())
	defer keyed.Close()
	if err != nil {
		return fmt.Errorf("lens %s: %w", l.name, err)
	}
	if bounds.Empty() {
		l.logger.Debug("render is empty", "rms", est.ReprojectionRMS())
		return nil
	}

	return Blend(frame, keyed, est.Project(l.anchor))
}

// Close releases the renderer.
func (l *Lens3D) Close() error {
	return l.renderer.Close()
}
