package pipeline

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/detector"
	"github.com/dudu/facelens/internal/landmarks"
	"github.com/dudu/facelens/internal/smoothing"
)

// step is one scripted analyzer answer
type step struct {
	det *detector.Detection
	lm  *landmarks.Map
	err error
}

type scriptedAnalyzer struct {
	steps []step
	prevs []*detector.Detection
}

func (s *scriptedAnalyzer) Analyze(frame gocv.Mat, prev *detector.Detection) (*detector.FaceFrame, error) {
	s.prevs = append(s.prevs, prev)
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err != nil {
		return nil, st.err
	}
	return &detector.FaceFrame{Frame: frame.Clone(), Detection: st.det, Landmarks: st.lm}, nil
}

// paintLens fills the frame with its value whenever it sees landmarks and
// records the first pixel it was handed.
type paintLens struct {
	name   string
	value  float64
	err    error
	seen   []uint8
	maps   []*landmarks.Map
	closed bool
}

func (l *paintLens) Name() string { return l.name }

func (l *paintLens) Apply(frame *gocv.Mat, m *landmarks.Map) error {
	l.seen = append(l.seen, frame.GetUCharAt(0, 0))
	l.maps = append(l.maps, m)
	if l.err != nil {
		return l.err
	}
	if m != nil {
		frame.SetTo(gocv.NewScalar(l.value, l.value, l.value, 0))
	}
	return nil
}

func (l *paintLens) Close() error {
	l.closed = true
	return nil
}

func mapWithFirst(t *testing.T, p landmarks.Point) *landmarks.Map {
	t.Helper()
	pts := make([]landmarks.Point, landmarks.IBUG68.Size())
	for i := range pts {
		pts[i] = landmarks.Point{X: float64(10 + i), Y: 20}
	}
	pts[0] = p
	m, err := landmarks.NewMap(landmarks.IBUG68, pts)
	require.NoError(t, err)
	return m
}

func testFrame(t *testing.T, v float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 24, 32, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func full(x int) *detector.Detection {
	return &detector.Detection{Box: image.Rect(x, 0, x+10, 10), Score: 0.9}
}

func fast(x int) *detector.Detection {
	d := full(x)
	d.Fast = true
	return d
}

func analyzeAll(t *testing.T, p *Pipeline, n int) []*Analysis {
	t.Helper()
	var out []*Analysis
	for i := 0; i < n; i++ {
		a, err := p.Analyze(testFrame(t, 0))
		require.NoError(t, err)
		t.Cleanup(func() { a.Close() })
		out = append(out, a)
	}
	return out
}

func TestAnalyze_IdenticalWindowIsStable(t *testing.T) {
	still := mapWithFirst(t, landmarks.Point{X: 100, Y: 100})
	an := &scriptedAnalyzer{}
	for i := 0; i < 5; i++ {
		an.steps = append(an.steps, step{det: full(0), lm: still})
	}
	p := NewWithComponents(an, nil, smoothing.DefaultConfig())

	got := analyzeAll(t, p, 5)
	last := got[4]
	assert.Equal(t, landmarks.Point{X: 100, Y: 100}, last.Smoothed.At(0))
	assert.False(t, last.Rapid)
	assert.Equal(t, 5, p.window.Len())
}

func TestAnalyze_JumpIsRapidAndRestartsWindow(t *testing.T) {
	still := mapWithFirst(t, landmarks.Point{X: 100, Y: 100})
	moved := mapWithFirst(t, landmarks.Point{X: 200, Y: 100})
	an := &scriptedAnalyzer{}
	for i := 0; i < 4; i++ {
		an.steps = append(an.steps, step{det: full(0), lm: still})
	}
	an.steps = append(an.steps, step{det: full(0), lm: moved})
	p := NewWithComponents(an, nil, smoothing.DefaultConfig())

	got := analyzeAll(t, p, 5)
	last := got[4]
	assert.True(t, last.Rapid)
	assert.Equal(t, landmarks.Point{X: 200, Y: 100}, last.Smoothed.At(0))
	assert.Equal(t, 1, p.window.Len())
	assert.Same(t, moved, p.window.Latest())
}

func TestAnalyze_SeedsFastPathFromFullDetections(t *testing.T) {
	lm := mapWithFirst(t, landmarks.Point{X: 1, Y: 1})
	a0 := full(0)
	a2 := full(20)
	an := &scriptedAnalyzer{steps: []step{
		{det: a0, lm: lm},      // full: becomes the seed
		{det: fast(1), lm: lm}, // fast: seed kept
		{det: a2, lm: lm},      // full: replaces the seed
		{},                     // full-frame miss: seed dropped
		{},
	}}
	p := NewWithComponents(an, nil, smoothing.DefaultConfig())

	analyzeAll(t, p, 5)
	assert.Equal(t, []*detector.Detection{nil, a0, a0, a2, nil}, an.prevs)
}

func TestProcess_AmbiguousPassesFrameThrough(t *testing.T) {
	lm := mapWithFirst(t, landmarks.Point{X: 1, Y: 1})
	seed := full(0)
	an := &scriptedAnalyzer{steps: []step{
		{det: seed, lm: lm},
		{err: &detector.AmbiguousDetectionError{Count: 2, Fast: true}},
		{},
	}}
	paint := &paintLens{name: "paint", value: 200}
	p := NewWithComponents(an, []Compositor{paint}, smoothing.DefaultConfig())

	out, err := p.Process(testFrame(t, 0))
	require.NoError(t, err)
	out.Close()

	frame := testFrame(t, 50)
	out, err = p.Process(frame)
	defer out.Close()
	var amb *detector.AmbiguousDetectionError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, 2, amb.Count)
	assertSameFrame(t, frame, out)

	// the seed is dropped so the next frame searches everything
	a, err := p.Analyze(testFrame(t, 0))
	require.NoError(t, err)
	a.Close()
	assert.Equal(t, []*detector.Detection{nil, seed, nil}, an.prevs)
}

func TestProcess_NoFacePassesFrameThrough(t *testing.T) {
	an := &scriptedAnalyzer{steps: []step{{}}}
	paint := &paintLens{name: "paint", value: 200}
	p := NewWithComponents(an, []Compositor{paint}, smoothing.DefaultConfig())

	frame := testFrame(t, 50)
	out, err := p.Process(frame)
	require.NoError(t, err)
	defer out.Close()

	assertSameFrame(t, frame, out)
	require.Len(t, paint.maps, 1)
	assert.Nil(t, paint.maps[0])
}

func TestRender_ChainsLensesInOrder(t *testing.T) {
	lm := mapWithFirst(t, landmarks.Point{X: 1, Y: 1})
	an := &scriptedAnalyzer{steps: []step{{det: full(0), lm: lm}}}
	first := &paintLens{name: "first", value: 10}
	broken := &paintLens{name: "broken", err: errors.New("no pose")}
	second := &paintLens{name: "second", value: 20}
	p := NewWithComponents(an, []Compositor{first, broken, second}, smoothing.DefaultConfig())

	frame := testFrame(t, 0)
	a, err := p.Analyze(frame)
	require.NoError(t, err)
	defer a.Close()

	out, err := p.Render(frame, a)
	defer out.Close()
	assert.ErrorContains(t, err, "broken: no pose")

	assert.Equal(t, []uint8{0}, first.seen)
	assert.Equal(t, []uint8{10}, broken.seen)
	assert.Equal(t, []uint8{10}, second.seen, "a failed lens does not stop the chain")
	assert.Equal(t, uint8(20), out.GetUCharAt(0, 0))
	assert.Equal(t, uint8(0), frame.GetUCharAt(0, 0), "input frame is not modified")
	assert.Same(t, a.Smoothed, second.maps[0])
}

func TestClose_ClosesLenses(t *testing.T) {
	l1, l2 := &paintLens{name: "a"}, &paintLens{name: "b"}
	p := NewWithComponents(&scriptedAnalyzer{}, []Compositor{l1, l2}, smoothing.DefaultConfig())

	require.NoError(t, p.Close())
	assert.True(t, l1.closed)
	assert.True(t, l2.closed)
}

func TestLastTiming_ReportsFastPath(t *testing.T) {
	lm := mapWithFirst(t, landmarks.Point{X: 1, Y: 1})
	an := &scriptedAnalyzer{steps: []step{{det: fast(3), lm: lm}}}
	p := NewWithComponents(an, nil, smoothing.DefaultConfig())

	analyzeAll(t, p, 1)
	assert.True(t, p.LastTiming().Fast)
}

func assertSameFrame(t *testing.T, want, got gocv.Mat) {
	t.Helper()
	w, err := want.DataPtrUint8()
	require.NoError(t, err)
	g, err := got.DataPtrUint8()
	require.NoError(t, err)
	assert.Equal(t, w, g)
}
