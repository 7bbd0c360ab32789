package pose

import "fmt"

// Center selects where the principal point of the synthetic camera sits.
type Center int

const (
	// SwappedCenter puts the principal point at (height/2, width/2). The
	// coordinates are transposed relative to the image centre; the overlays
	// were tuned against this camera, so it stays the default.
	SwappedCenter Center = iota
	// ImageCenter puts the principal point at (width/2, height/2).
	ImageCenter
)

func (c Center) String() string {
	switch c {
	case SwappedCenter:
		return "swapped"
	case ImageCenter:
		return "image"
	default:
		return fmt.Sprintf("Center(%d)", int(c))
	}
}

// ParseCenter maps a flag value to a Center.
func ParseCenter(s string) (Center, error) {
	switch s {
	case "swapped", "":
		return SwappedCenter, nil
	case "image":
		return ImageCenter, nil
	}
	return 0, fmt.Errorf("pose: unknown principal point mode %q", s)
}

// Intrinsics is a pinhole camera without distortion.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// NewIntrinsics derives the camera for a frame: focal length equals the
// frame width in pixels.
func NewIntrinsics(width, height int, c Center) Intrinsics {
	f := float64(width)
	in := Intrinsics{Fx: f, Fy: f}
	switch c {
	case ImageCenter:
		in.Cx, in.Cy = float64(width)/2, float64(height)/2
	default:
		in.Cx, in.Cy = float64(height)/2, float64(width)/2
	}
	return in
}
