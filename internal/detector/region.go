package detector

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// ErrNoHand is returned by helpers that require a hand in the frame.
var ErrNoHand = errors.New("no hand detected")

// HandRegionDetector locates the image region containing a hand.
// ok is false when the frame holds no usable hand region.
type HandRegionDetector interface {
	DetectRegion(frame *gocv.Mat) (region image.Rectangle, ok bool, err error)
}

// FixedRegion always reports the same rectangle, clipped to the frame.
type FixedRegion struct {
	Rect image.Rectangle
}

// DetectRegion implements HandRegionDetector.
func (f FixedRegion) DetectRegion(frame *gocv.Mat) (image.Rectangle, bool, error) {
	if frame == nil || frame.Empty() {
		return image.Rectangle{}, false, nil
	}
	r := f.Rect.Canon().Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	return r, !r.Empty(), nil
}

// LandmarkRegionDetector derives the region from detected hand landmarks:
// the bounding box of the most confident hand, padded and clamped to the
// frame.
type LandmarkRegionDetector struct {
	Detector Detector
	Padding  int
}

// DetectRegion implements HandRegionDetector.
func (d *LandmarkRegionDetector) DetectRegion(frame *gocv.Mat) (image.Rectangle, bool, error) {
	if frame == nil || frame.Empty() {
		return image.Rectangle{}, false, nil
	}

	hands, err := d.Detector.Detect(frame)
	if err != nil {
		return image.Rectangle{}, false, err
	}

	best := -1
	for i := range hands {
		if best < 0 || hands[i].Score > hands[best].Score {
			best = i
		}
	}
	if best < 0 {
		return image.Rectangle{}, false, nil
	}

	r := BoundingBox(hands[best], frame.Cols(), frame.Rows(), d.Padding)
	return r, !r.Empty(), nil
}

// BoundingBox converts normalized landmarks into a pixel rectangle for a
// width x height frame, grown by padding on every side and clamped to the
// frame bounds.
func BoundingBox(h HandLandmarks, width, height, padding int) image.Rectangle {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}

	x0, y0, x1, y1 := h.Extent()
	minX, minY := int(x0*float64(width)), int(y0*float64(height))
	maxX, maxY := int(x1*float64(width)), int(y1*float64(height))

	box := image.Rect(minX-padding, minY-padding, maxX+padding, maxY+padding)
	return box.Intersect(image.Rect(0, 0, width, height))
}
