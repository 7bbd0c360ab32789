// Package ui shows the processed stream in a desktop window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// FPSCounter counts frames shown during the last second
type FPSCounter struct {
	stamps []time.Time
	now    func() time.Time
}

// NewFPSCounter returns a counter on the wall clock
func NewFPSCounter() *FPSCounter {
	return &FPSCounter{now: time.Now}
}

// Tick records a frame and returns the frames seen in the last second.
func (f *FPSCounter) Tick() int {
	now := f.now()
	f.stamps = append(f.stamps, now)

	keep := 0
	for _, t := range f.stamps {
		if now.Sub(t) < time.Second {
			f.stamps[keep] = t
			keep++
		}
	}
	f.stamps = f.stamps[:keep]
	return keep
}

// FPS returns the count from the last Tick.
func (f *FPSCounter) FPS() int {
	return len(f.stamps)
}

// Window manages the preview display
type Window struct {
	window *gocv.Window
	fps    *FPSCounter
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		fps:    NewFPSCounter(),
	}
}

// Show counts the frame, draws the FPS and displays it.
func (w *Window) Show(frame *gocv.Mat) {
	DrawFPS(frame, w.fps.Tick())
	w.window.IMShow(*frame)
}

// DrawFPS writes the frame rate in the top-left corner.
func DrawFPS(frame *gocv.Mat, fps int) {
	gocv.PutText(frame, fmt.Sprintf("FPS: %d", fps), image.Pt(20, 20),
		gocv.FontHersheySimplex, 0.7, color.RGBA{R: 0, G: 255, B: 255, A: 255}, 1)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns the frames shown during the last second
func (w *Window) FPS() int {
	return w.fps.FPS()
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
