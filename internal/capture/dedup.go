package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	dedupBlurKernel = 21
	// dedupPixelDelta is the gray level difference at which a pixel counts
	// as changed.
	dedupPixelDelta = 25
)

// DuplicateFilter drops frames that barely differ from the last kept frame,
// so a capture session does not fill a label with identical samples.
// Frames are compared as blurred grayscale images.
type DuplicateFilter struct {
	mu          sync.Mutex
	minChange   float64
	baseline    gocv.Mat
	hasBaseline bool
}

// NewDuplicateFilter returns a filter that keeps a frame when more than
// minChange percent of its pixels changed.
func NewDuplicateFilter(minChange float64) *DuplicateFilter {
	return &DuplicateFilter{minChange: minChange, baseline: gocv.NewMat()}
}

// Changed reports whether frame differs enough from the baseline, and the
// changed share in percent. A kept frame becomes the new baseline. The
// first frame after construction or Reset is always kept at 100%.
func (f *DuplicateFilter) Changed(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	gray := blurredGray(frame)
	defer gray.Close()

	if !f.hasBaseline {
		gray.CopyTo(&f.baseline)
		f.hasBaseline = true
		return true, 100
	}

	pct := changedPercent(gray, f.baseline)
	if pct <= f.minChange {
		return false, pct
	}
	gray.CopyTo(&f.baseline)
	return true, pct
}

// Reset forgets the baseline.
func (f *DuplicateFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasBaseline = false
}

// Close releases the baseline. It is safe to call more than once.
func (f *DuplicateFilter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.baseline.Close()
	f.baseline = gocv.NewMat()
	f.hasBaseline = false
}

func blurredGray(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(dedupBlurKernel, dedupBlurKernel), 0, 0, gocv.BorderDefault)
	return gray
}

func changedPercent(a, b gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)
	gocv.Threshold(diff, &diff, dedupPixelDelta, 255, gocv.ThresholdBinary)

	total := diff.Rows() * diff.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(diff)) / float64(total) * 100
}
