// Package smoothing turns a per-frame stream of classifier predictions into a
// temporally stable display label by majority vote over a short window.
//
// A Stream is owned by the loop that feeds it; it is not safe for concurrent
// use. Run one Stream per camera.
package smoothing

import (
	"fmt"
	"math"
)

// DefaultWindow is the number of recent labels voted over.
const DefaultWindow = 5

// Prediction is one frame's raw classification result.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Display is the smoothed label together with the confidence of the raw
// prediction that produced it. Confidence is never smoothed.
type Display struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	// Changed is set when Label differs from the previous Display.
	Changed bool `json:"changed"`
}

// InvalidPredictionError is returned by Push for a malformed prediction.
type InvalidPredictionError struct {
	Prediction Prediction
	Reason     string
}

func (e *InvalidPredictionError) Error() string {
	return fmt.Sprintf("invalid prediction %q (confidence %v): %s",
		e.Prediction.Label, e.Prediction.Confidence, e.Reason)
}

// Stream keeps the most recent labels and votes over them.
type Stream struct {
	window  int
	labels  map[string]struct{}
	history []string
	last    string
}

// NewStream creates a Stream voting over the last window labels. When labels
// are given, predictions for any other label are rejected.
func NewStream(window int, labels ...string) (*Stream, error) {
	if window < 1 {
		return nil, fmt.Errorf("smoothing window must be at least 1, got %d", window)
	}

	s := &Stream{
		window:  window,
		history: make([]string, 0, window),
	}
	if len(labels) > 0 {
		s.labels = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			s.labels[l] = struct{}{}
		}
	}
	return s, nil
}

// Push records p and returns the current majority label.
//
// When several labels share the highest count the choice among them is not
// part of the contract. This implementation returns the tied label seen most
// recently.
func (s *Stream) Push(p Prediction) (Display, error) {
	if err := s.validate(p); err != nil {
		return Display{}, err
	}

	if len(s.history) >= s.window {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.window-1]
	}
	s.history = append(s.history, p.Label)

	label := s.vote()
	d := Display{
		Label:      label,
		Confidence: p.Confidence,
		Changed:    label != s.last,
	}
	s.last = label
	return d, nil
}

// History returns a copy of the buffered labels, oldest first.
func (s *Stream) History() []string {
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of buffered labels.
func (s *Stream) Len() int {
	return len(s.history)
}

// Window returns the buffer capacity.
func (s *Stream) Window() int {
	return s.window
}

// Reset empties the buffer.
func (s *Stream) Reset() {
	s.history = s.history[:0]
	s.last = ""
}

func (s *Stream) vote() string {
	counts := make(map[string]int, len(s.history))
	for _, l := range s.history {
		counts[l]++
	}

	best, bestCount := "", 0
	for i := len(s.history) - 1; i >= 0; i-- {
		l := s.history[i]
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

func (s *Stream) validate(p Prediction) error {
	switch {
	case p.Label == "":
		return &InvalidPredictionError{Prediction: p, Reason: "empty label"}
	case math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1:
		return &InvalidPredictionError{Prediction: p, Reason: "confidence outside [0, 1]"}
	}
	if s.labels != nil {
		if _, ok := s.labels[p.Label]; !ok {
			return &InvalidPredictionError{Prediction: p, Reason: "unknown label"}
		}
	}
	return nil
}
