package capture

import (
	"context"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Key codes returned by the preview window.
const (
	KeyNone  = -1
	KeyEsc   = 27
	KeySpace = 32
)

var overlayColor = color.RGBA{G: 255, A: 255}

// Preview shows frames to the operator and reports key presses.
type Preview interface {
	// Show displays frame with a status line and returns the key pressed,
	// or KeyNone.
	Show(frame *gocv.Mat, status string) int
}

// Window is a HighGUI preview window. It is also a ResumeSignal that waits
// for the space bar.
type Window struct {
	name   string
	window *gocv.Window
}

// NewWindow opens a named preview window.
func NewWindow(name string) *Window {
	return &Window{name: name, window: gocv.NewWindow(name)}
}

// Show implements Preview.
func (w *Window) Show(frame *gocv.Mat, status string) int {
	display := frame.Clone()
	defer display.Close()

	gocv.PutText(&display, status, image.Pt(10, 30), gocv.FontHersheySimplex, 1, overlayColor, 2)
	w.window.IMShow(display)
	return w.window.WaitKey(1)
}

// Wait implements ResumeSignal by polling for the space bar.
func (w *Window) Wait(ctx context.Context, prompt string) error {
	w.window.SetWindowTitle(prompt)
	defer w.window.SetWindowTitle(w.name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.window.WaitKey(50) == KeySpace {
			return nil
		}
	}
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}
