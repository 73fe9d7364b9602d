// Package testframes builds synthetic camera frames for tests.
package testframes

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame returns a width x height BGR frame filled with a gray level and a
// white square drawn over hand, standing in for a hand on a plain
// background.
func Frame(width, height int, gray uint8, hand image.Rectangle) *gocv.Mat {
	g := float64(gray)
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(g, g, g, 0), height, width, gocv.MatTypeCV8UC3)
	if !hand.Empty() {
		gocv.Rectangle(&m, hand, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	}
	return &m
}

// Sequence returns n frames whose background alternates between dark and
// light so consecutive frames always differ.
func Sequence(n, width, height int, hand image.Rectangle) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		gray := uint8(30)
		if i%2 == 1 {
			gray = 160
		}
		frames = append(frames, Frame(width, height, gray, hand))
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
