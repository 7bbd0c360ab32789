// Package processor moves frame analysis onto a worker goroutine so the
// capture loop never waits for it.
//
// At most one frame is in flight. Frames fed while the worker is busy are
// shown but not analyzed, and Poll hands back the newest finished result
// until a fresher one arrives.
package processor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/facelens/internal/log"
)

// ErrWorkerTimeout is returned by Stop when the worker does not exit in time.
var ErrWorkerTimeout = errors.New("processor: worker did not stop in time")

// Func analyzes one frame on the worker goroutine. It must not keep frame.
type Func[T any] func(frame gocv.Mat) (T, error)

type task struct {
	id    string
	frame gocv.Mat
}

type result[T any] struct {
	id      string
	value   T
	err     error
	elapsed time.Duration
}

// Snapshot is what the capture loop draws from.
type Snapshot[T any] struct {
	Frame gocv.Mat // newest fed frame; owned by the processor, valid until the next Feed
	Value T        // newest finished result, possibly older than Frame
	Ok    bool     // Value is set
	Fresh bool     // a task finished since the previous Poll
	Err   error    // set when the task that just finished failed
}

// Processor runs a Func on a worker goroutine, latest frame wins.
// Feed, Poll and Stop must be called from one goroutine.
type Processor[T any] struct {
	fn      Func[T]
	release func(T)

	tasks   chan task
	results chan result[T]
	done    chan struct{}

	busy    bool
	stopped bool
	frame   gocv.Mat
	value   T
	ok      bool

	log *slog.Logger
}

// New starts the worker. release, when not nil, is called on every result
// that is replaced or still held at Stop.
func New[T any](fn Func[T], release func(T)) *Processor[T] {
	p := &Processor[T]{
		fn:      fn,
		release: release,
		tasks:   make(chan task, 1),
		results: make(chan result[T], 1),
		done:    make(chan struct{}),
		frame:   gocv.NewMat(),
		log:     log.With("component", "processor"),
	}
	go p.work()
	return p
}

func (p *Processor[T]) work() {
	defer close(p.done)
	for t := range p.tasks {
		start := time.Now()
		v, err := p.fn(t.frame)
		t.frame.Close()
		p.results <- result[T]{id: t.id, value: v, err: err, elapsed: time.Since(start)}
	}
}

// Feed records frame as the newest frame and, when the worker is idle,
// submits a copy of it. It returns whether the frame was submitted.
func (p *Processor[T]) Feed(frame gocv.Mat) bool {
	p.frame.Close()
	p.frame = frame.Clone()

	if p.busy || p.stopped {
		return false
	}
	id := uuid.NewString()
	p.tasks <- task{id: id, frame: frame.Clone()}
	p.busy = true
	p.log.Debug("task submitted", "task", id)
	return true
}

// Poll collects a finished result if one is ready. It never blocks.
func (p *Processor[T]) Poll() Snapshot[T] {
	snap := Snapshot[T]{}

	select {
	case r := <-p.results:
		p.busy = false
		snap.Fresh = true
		p.drop()
		if r.err != nil {
			p.log.Warn("task failed", "task", r.id, "error", r.err)
			snap.Err = r.err
		} else {
			p.value, p.ok = r.value, true
			p.log.Debug("task finished", "task", r.id, "elapsed", r.elapsed)
		}
	default:
	}

	snap.Frame = p.frame
	snap.Value = p.value
	snap.Ok = p.ok
	return snap
}

// Busy reports whether a task is in flight.
func (p *Processor[T]) Busy() bool {
	return p.busy
}

// Stop shuts the worker down and waits up to timeout for it to exit. On
// timeout the worker is abandoned and ErrWorkerTimeout returned.
func (p *Processor[T]) Stop(timeout time.Duration) error {
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.tasks)

	select {
	case <-p.done:
	case <-time.After(timeout):
		p.drop()
		p.frame.Close()
		return ErrWorkerTimeout
	}

	// a result finished after the last Poll
	select {
	case r := <-p.results:
		if r.err == nil && p.release != nil {
			p.release(r.value)
		}
	default:
	}
	p.drop()
	return p.frame.Close()
}

// drop releases the held value.
func (p *Processor[T]) drop() {
	if p.ok && p.release != nil {
		p.release(p.value)
	}
	var zero T
	p.value, p.ok = zero, false
}
