// Package lens composites face filters onto video frames. A 2D lens is a
// transparent image pinned to two landmarks; a 3D lens is a mesh rendered
// from the solved head pose and keyed onto the frame.
package lens

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
)

// Compositor draws one lens onto a frame in place. A nil map means no face
// this frame and must leave the frame untouched.
type Compositor interface {
	Name() string
	Apply(frame *gocv.Mat, m *landmarks.Map) error
	Close() error
}

// Descriptor configures a two-point 2D lens.
//
// The asset is scaled to Scale times the anchor distance D and centred on
// the anchor midpoint shifted by (OffsetX, OffsetY)·D, measured along and
// across the anchor line so the offset follows head tilt. Positive OffsetY
// points down the face.
type Descriptor struct {
	Name    string
	Asset   string
	Left    string
	Right   string
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Validate checks the descriptor against the landmark layout it will be fed.
func (d Descriptor) Validate(topo *landmarks.Topology) error {
	if d.Name == "" {
		return fmt.Errorf("lens: descriptor has no name")
	}
	if d.Asset == "" {
		return fmt.Errorf("lens %s: no asset", d.Name)
	}
	if d.Scale <= 0 {
		return fmt.Errorf("lens %s: scale must be positive, got %g", d.Name, d.Scale)
	}
	if d.Left == d.Right {
		return fmt.Errorf("lens %s: anchors must differ", d.Name)
	}
	for _, name := range []string{d.Left, d.Right} {
		if _, err := topo.Index(name); err != nil {
			return fmt.Errorf("lens %s: %w", d.Name, err)
		}
	}
	return nil
}

// Glasses spans ear to ear.
var Glasses = Descriptor{
	Name:  "glasses",
	Asset: "glasses.png",
	Left:  "left_ear",
	Right: "right_ear",
	Scale: 1,
}

// ClownNose is twice the nose width, centred between the nostrils.
var ClownNose = Descriptor{
	Name:  "clown_nose",
	Asset: "clown_nose.png",
	Left:  "nose_left",
	Right: "nose_right",
	Scale: 2,
}

// Lightning sits on the forehead above the brows.
var Lightning = Descriptor{
	Name:    "lightning",
	Asset:   "lightning.png",
	Left:    "left_brow_center",
	Right:   "right_brow_center",
	Scale:   0.8,
	OffsetY: -0.45,
}

// Builtin lists the bundled 2D lenses by name.
var Builtin = map[string]Descriptor{
	Glasses.Name:   Glasses,
	ClownNose.Name: ClownNose,
	Lightning.Name: Lightning,
}
