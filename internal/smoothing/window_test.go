package smoothing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facelens/internal/landmarks"
)

func numbered(t *testing.T, n int) []*landmarks.Map {
	t.Helper()
	out := make([]*landmarks.Map, n)
	for i := range out {
		out[i] = face(t, landmarks.Point{X: float64(i), Y: 0}, 0, 0)
	}
	return out
}

func TestWindow_EvictsOldest(t *testing.T) {
	maps := numbered(t, 5)
	w := NewWindow(3)

	for _, m := range maps {
		w.Push(m)
		assert.LessOrEqual(t, w.Len(), 3)
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []*landmarks.Map{maps[2], maps[3], maps[4]}, w.Maps())
	assert.Same(t, maps[4], w.Latest())
}

func TestWindow_Reset(t *testing.T) {
	maps := numbered(t, 4)
	w := NewWindow(3)
	for _, m := range maps {
		w.Push(m)
	}

	w.Reset(maps[1])
	require.Equal(t, 1, w.Len())
	assert.Same(t, maps[1], w.Latest())

	w.Push(maps[2])
	assert.Equal(t, []*landmarks.Map{maps[1], maps[2]}, w.Maps())

	w.Reset(nil)
	assert.Equal(t, 0, w.Len())
	assert.Nil(t, w.Latest())
	assert.Empty(t, w.Maps())
}

func TestWindow_MinimumCapacity(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, 1, w.Cap())

	maps := numbered(t, 2)
	w.Push(maps[0])
	w.Push(maps[1])
	assert.Equal(t, []*landmarks.Map{maps[1]}, w.Maps())
}
