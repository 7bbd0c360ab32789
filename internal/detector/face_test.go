package detector

import (
	"errors"
	"image"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/landmarks"
)

// fakeFinder answers full frames and fast-path crops separately
type fakeFinder struct {
	full  []Candidate
	crop  []Candidate
	sizes []image.Point
}

func (f *fakeFinder) Find(img gocv.Mat) ([]Candidate, error) {
	f.sizes = append(f.sizes, image.Pt(img.Cols(), img.Rows()))
	if img.Cols() == DefaultConfig().FastWidth {
		return append([]Candidate(nil), f.crop...), nil
	}
	return append([]Candidate(nil), f.full...), nil
}

func (f *fakeFinder) Close() error { return nil }

type fakePredictor struct {
	calls int
	err   error
}

func (p *fakePredictor) Predict(img gocv.Mat, box image.Rectangle) (*landmarks.Map, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	pts := make([]landmarks.Point, landmarks.IBUG68.Size())
	for i := range pts {
		pts[i] = landmarks.Point{X: float64(box.Min.X + i), Y: float64(box.Min.Y)}
	}
	return landmarks.NewMap(landmarks.IBUG68, pts)
}

func (p *fakePredictor) Close() error { return nil }

func candidate(r image.Rectangle) Candidate {
	return Candidate{
		Box:   BoundingBox{X1: float32(r.Min.X), Y1: float32(r.Min.Y), X2: float32(r.Max.X), Y2: float32(r.Max.Y)},
		Score: 0.9,
	}
}

func blankFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestDetect_FullFrame(t *testing.T) {
	truth := image.Rect(200, 150, 300, 260)
	finder := &fakeFinder{full: []Candidate{candidate(truth)}}
	d := NewFaceDetector(finder, &fakePredictor{}, DefaultConfig())

	det, err := d.Detect(blankFrame(t), nil)
	require.NoError(t, err)
	require.NotNil(t, det)

	assert.Equal(t, truth, det.Box)
	assert.False(t, det.Fast)
	assert.Equal(t, []image.Point{{X: 640, Y: 480}}, finder.sizes)
}

func TestDetect_FastPathRemapsToFrame(t *testing.T) {
	boxes := []image.Rectangle{
		image.Rect(200, 150, 300, 260),
		image.Rect(0, 0, 140, 150),
		image.Rect(480, 300, 640, 480),
	}

	for _, truth := range boxes {
		t.Run(truth.String(), func(t *testing.T) {
			w, ok := newSearchWindow(truth, frame640, 0.2, 120)
			require.True(t, ok)

			// the same face re-found on the shrunken crop
			finder := &fakeFinder{crop: []Candidate{{Box: w.toCrop(truth), Score: 0.8}}}
			d := NewFaceDetector(finder, &fakePredictor{}, DefaultConfig())

			det, err := d.Detect(blankFrame(t), &Detection{Box: truth})
			require.NoError(t, err)
			require.NotNil(t, det)

			assert.True(t, det.Fast)
			assert.InDelta(t, truth.Min.X, det.Box.Min.X, 1)
			assert.InDelta(t, truth.Min.Y, det.Box.Min.Y, 1)
			assert.InDelta(t, truth.Max.X, det.Box.Max.X, 1)
			assert.InDelta(t, truth.Max.Y, det.Box.Max.Y, 1)
			assert.Equal(t, []image.Point{w.size}, finder.sizes, "fast path must only search the crop")
		})
	}
}

func TestDetect_FastMissFallsBackToFullFrame(t *testing.T) {
	truth := image.Rect(400, 100, 500, 210)
	finder := &fakeFinder{full: []Candidate{candidate(truth)}}
	d := NewFaceDetector(finder, &fakePredictor{}, DefaultConfig())

	det, err := d.Detect(blankFrame(t), &Detection{Box: image.Rect(100, 100, 200, 200)})
	require.NoError(t, err)
	require.NotNil(t, det)

	assert.False(t, det.Fast)
	assert.Equal(t, truth, det.Box)
	assert.Len(t, finder.sizes, 2)
}

func TestDetect_MultipleFacesIsAnError(t *testing.T) {
	two := []Candidate{candidate(image.Rect(10, 10, 110, 110)), candidate(image.Rect(300, 10, 400, 110))}

	tests := []struct {
		name     string
		finder   *fakeFinder
		prev     *Detection
		wantFast bool
	}{
		{name: "full frame", finder: &fakeFinder{full: two}},
		{name: "fast path", finder: &fakeFinder{crop: two}, prev: &Detection{Box: image.Rect(200, 150, 300, 250)}, wantFast: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pred := &fakePredictor{}
			d := NewFaceDetector(tc.finder, pred, DefaultConfig())

			ff, err := d.Analyze(blankFrame(t), tc.prev)
			require.Error(t, err)
			assert.Nil(t, ff)

			var amb *AmbiguousDetectionError
			require.True(t, errors.As(err, &amb))
			assert.Equal(t, 2, amb.Count)
			assert.Equal(t, tc.wantFast, amb.Fast)
			assert.Zero(t, pred.calls, "no landmarks for an ambiguous frame")
		})
	}
}

func TestDetect_NoFace(t *testing.T) {
	pred := &fakePredictor{}
	d := NewFaceDetector(&fakeFinder{}, pred, DefaultConfig())

	det, err := d.Detect(blankFrame(t), nil)
	require.NoError(t, err)
	assert.Nil(t, det)

	ff, err := d.Analyze(blankFrame(t), &Detection{Box: image.Rect(200, 150, 300, 250)})
	require.NoError(t, err)
	defer ff.Close()
	assert.Nil(t, ff.Detection)
	assert.Nil(t, ff.Landmarks)
	assert.False(t, ff.HasFace())
	assert.Zero(t, pred.calls)
}

func TestAnalyze_PredictsOnFullFrame(t *testing.T) {
	truth := image.Rect(200, 150, 300, 260)
	pred := &fakePredictor{}
	d := NewFaceDetector(&fakeFinder{full: []Candidate{candidate(truth)}}, pred, DefaultConfig())

	frame := blankFrame(t)
	ff, err := d.Analyze(frame, nil)
	require.NoError(t, err)
	defer ff.Close()

	require.True(t, ff.HasFace())
	assert.Equal(t, 1, pred.calls)
	assert.Equal(t, landmarks.Point{X: 200, Y: 150}, ff.Landmarks.At(0))
	assert.Equal(t, frame.Rows(), ff.Frame.Rows())
	assert.Equal(t, frame.Cols(), ff.Frame.Cols())
	src, err := frame.DataPtrUint8()
	require.NoError(t, err)
	dst, err := ff.Frame.DataPtrUint8()
	require.NoError(t, err)
	assert.NotSame(t, &src[0], &dst[0], "face frame must own a copy")
}

func TestAnalyze_PredictorError(t *testing.T) {
	d := NewFaceDetector(
		&fakeFinder{full: []Candidate{candidate(image.Rect(200, 150, 300, 260))}},
		&fakePredictor{err: errors.New("boom")},
		DefaultConfig(),
	)
	_, err := d.Analyze(blankFrame(t), nil)
	assert.ErrorContains(t, err, "boom")
}

func TestNMS(t *testing.T) {
	cands := []Candidate{
		{Box: BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.7},
		{Box: BoundingBox{X1: 5, Y1: 5, X2: 105, Y2: 105}, Score: 0.9},
		{Box: BoundingBox{X1: 300, Y1: 300, X2: 400, Y2: 400}, Score: 0.6},
	}

	got := nms(cands, 0.4)
	require.Len(t, got, 2)
	assert.Equal(t, float32(0.9), got[0].Score)
	assert.Equal(t, float32(0.6), got[1].Score)
}

func TestPigoCandidates(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 100, Col: 50, Scale: 40, Q: 12},
		{Row: 300, Col: 300, Scale: 80, Q: 2},
	}

	got := pigoCandidates(dets, 5)
	require.Len(t, got, 1)
	assert.Equal(t, BoundingBox{X1: 30, Y1: 80, X2: 70, Y2: 120}, got[0].Box)
	assert.Equal(t, image.Rect(30, 80, 70, 120), got[0].Box.Rect())
}

func TestCropTransform_Decode(t *testing.T) {
	c := newCropTransform(image.Rect(100, 100, 200, 200), 112, 1.2)

	got := c.decode([]float32{0, 0, 1, 1, -1, 0}, 3, RangeSigned)
	assert.InDelta(t, 150, got[0].X, 1e-4)
	assert.InDelta(t, 150, got[0].Y, 1e-4)
	assert.InDelta(t, 210, got[1].X, 1e-4)
	assert.InDelta(t, 210, got[1].Y, 1e-4)
	assert.InDelta(t, 90, got[2].X, 1e-4)

	got = c.decode([]float32{0.5, 0.5, 1, 0}, 2, RangeUnit)
	assert.InDelta(t, 150, got[0].X, 1e-4)
	assert.InDelta(t, 150, got[0].Y, 1e-4)
	assert.InDelta(t, 210, got[1].X, 1e-4)
	assert.InDelta(t, 90, got[1].Y, 1e-4)
}

func TestAmbiguousDetectionError_Message(t *testing.T) {
	err := &AmbiguousDetectionError{Count: 3}
	assert.Equal(t, "detector: full-frame search found 3 faces instead of 1", err.Error())
}
