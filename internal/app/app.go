// Package app runs the live sign inference loop: frame, hand region,
// classifier, smoothed display label.
package app

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/smoothing"
	"github.com/ayusman/handsign/internal/store"
)

// Event is the outcome of one processed frame.
type Event struct {
	Frame      int             `json:"frame"`
	Time       time.Time       `json:"time"`
	HasHand    bool            `json:"has_hand"`
	Region     image.Rectangle `json:"-"`
	Raw        string          `json:"raw,omitempty"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Changed    bool            `json:"changed"`
}

// Stats summarizes a Run.
type Stats struct {
	Frames         int
	NoHandFrames   int
	DisplayChanges int
	LastLabel      string
}

// Renderer shows annotated frames. Render returns true when the operator
// asked to quit.
type Renderer interface {
	Render(frame *gocv.Mat) (quit bool)
	Close() error
}

// Config holds the collaborators of a Runner.
type Config struct {
	Camera     capture.Camera
	Region     detector.HandRegionDetector
	Classifier classifier.GestureClassifier
	Stream     *smoothing.Stream

	// Flip mirrors frames horizontally before processing.
	Flip bool
	// Renderer is optional; without one the loop runs headless.
	Renderer Renderer

	// Sessions, when set, records a summary row per Run.
	Sessions       *store.SessionRepository
	CameraID       int
	ClassifierName string

	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	// OnEvent receives every processed frame's event.
	OnEvent func(Event)
	// OnFrame receives every annotated frame. The Mat is only valid during
	// the call.
	OnFrame func(frame *gocv.Mat)
}

// Runner drives the inference loop. A Runner owns its Stream; it is not
// safe to call Step concurrently.
type Runner struct {
	cfg Config

	mu      sync.RWMutex
	enabled bool

	stats   Stats
	last    smoothing.Display
	hasLast bool
}

// New validates cfg and returns a Runner that starts enabled.
func New(cfg Config) (*Runner, error) {
	if cfg.Region == nil {
		return nil, errors.New("app: hand region detector is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("app: classifier is required")
	}
	if cfg.Stream == nil {
		return nil, errors.New("app: smoothing stream is required")
	}
	return &Runner{cfg: cfg, enabled: true}, nil
}

// SetEnabled pauses or resumes classification. Paused frames are still
// rendered.
func (r *Runner) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled returns whether classification is currently enabled.
func (r *Runner) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Stats returns counters for the frames processed so far.
func (r *Runner) Stats() Stats {
	return r.stats
}
