package smoothing

import "github.com/dudu/facelens/internal/landmarks"

// Window is a fixed-capacity FIFO of recent landmark maps. Pushing into a
// full window evicts the oldest entry.
type Window struct {
	buf   []*landmarks.Map
	start int
	n     int
}

// NewWindow creates an empty window holding at most capacity maps.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]*landmarks.Map, capacity)}
}

// Push appends m, evicting the oldest map when full.
func (w *Window) Push(m *landmarks.Map) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = m
		w.n++
		return
	}
	w.buf[w.start] = m
	w.start = (w.start + 1) % len(w.buf)
}

// Reset drops all history and leaves m as the only entry.
// A nil m leaves the window empty.
func (w *Window) Reset(m *landmarks.Map) {
	for i := range w.buf {
		w.buf[i] = nil
	}
	w.start, w.n = 0, 0
	if m != nil {
		w.Push(m)
	}
}

// Len returns the number of maps held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Latest returns the newest map, or nil when empty.
func (w *Window) Latest() *landmarks.Map {
	if w.n == 0 {
		return nil
	}
	return w.buf[(w.start+w.n-1)%len(w.buf)]
}

// Maps returns the held maps ordered oldest to newest.
func (w *Window) Maps() []*landmarks.Map {
	out := make([]*landmarks.Map, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
