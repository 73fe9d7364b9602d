package app

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	regionColor = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	labelColor  = color.RGBA{G: 255, A: 255}
)

// Annotate draws the hand region and the display label onto frame.
func Annotate(frame *gocv.Mat, ev Event) {
	if ev.Region.Empty() {
		return
	}
	gocv.Rectangle(frame, ev.Region, regionColor, 2)
	if ev.Label == "" {
		return
	}
	text := fmt.Sprintf("%s (%.2f)", ev.Label, ev.Confidence)
	origin := image.Pt(ev.Region.Min.X, max(ev.Region.Min.Y-10, 20))
	gocv.PutText(frame, text, origin, gocv.FontHersheySimplex, 1, labelColor, 2)
}

// WindowRenderer shows frames in a HighGUI window and quits on 'q'.
type WindowRenderer struct {
	window *gocv.Window
}

// NewWindowRenderer opens a window with the given title.
func NewWindowRenderer(title string) *WindowRenderer {
	return &WindowRenderer{window: gocv.NewWindow(title)}
}

// Render implements Renderer.
func (w *WindowRenderer) Render(frame *gocv.Mat) bool {
	w.window.IMShow(*frame)
	key := w.window.WaitKey(1)
	return key&0xFF == 'q'
}

// Close implements Renderer.
func (w *WindowRenderer) Close() error {
	return w.window.Close()
}
