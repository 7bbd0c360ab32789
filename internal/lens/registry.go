package lens

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/pose"
	"github.com/dudu/facelens/internal/render"
)

// Options holds what Build needs to open lenses.
type Options struct {
	AssetDir     string
	MaxAssetSide int
	Topology     *landmarks.Topology
	Renderer     render.Config
	Pose         []pose.Option
}

// DefaultOptions reads assets from ./assets for the iBUG 68 layout.
func DefaultOptions() Options {
	return Options{
		AssetDir:     "assets",
		MaxAssetSide: 1024,
		Topology:     landmarks.IBUG68,
		Renderer:     render.DefaultConfig(),
	}
}

// Names lists every lens Build accepts.
func Names() []string {
	names := []string{"debug"}
	for n := range Builtin {
		names = append(names, n)
	}
	for n := range Builtin3D {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build opens the named lenses in order. On error every lens opened so far
// is closed.
func Build(names []string, opts Options) ([]Compositor, error) {
	if opts.Topology == nil {
		opts.Topology = landmarks.IBUG68
	}

	var out []Compositor
	fail := func(err error) ([]Compositor, error) {
		for _, c := range out {
			err = errors.Join(err, c.Close())
		}
		return nil, err
	}

	for _, name := range names {
		c, err := open(name, opts)
		if err != nil {
			return fail(err)
		}
		out = append(out, c)
	}
	return out, nil
}

func open(name string, opts Options) (Compositor, error) {
	if name == "debug" {
		return NewDebug(opts.Pose...), nil
	}
	if d, ok := Builtin[name]; ok {
		if err := d.Validate(opts.Topology); err != nil {
			return nil, err
		}
		return OpenLens2D(d, opts.AssetDir, opts.MaxAssetSide)
	}
	if d, ok := Builtin3D[name]; ok {
		return OpenLens3D(d, opts.AssetDir, opts.Renderer, opts.Pose...)
	}
	return nil, fmt.Errorf("lens: unknown lens %q (have %v)", name, Names())
}
