package classifier

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockClassifier replays a scripted sequence of distributions. After the
// script runs out the last entry repeats.
type MockClassifier struct {
	mu      sync.Mutex
	script  []Distribution
	err     error
	calls   int
	closed  bool
	regions []int
}

// NewMockClassifier creates a mock that returns the given distributions in order.
func NewMockClassifier(script ...Distribution) *MockClassifier {
	return &MockClassifier{script: script}
}

// SetError makes every subsequent Classify call fail.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Classify implements GestureClassifier.
func (m *MockClassifier) Classify(region *gocv.Mat) (Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if region != nil {
		m.regions = append(m.regions, region.Cols())
	}
	if m.err != nil {
		return Distribution{}, m.err
	}
	if len(m.script) == 0 {
		return Distribution{}, ErrNoLabels
	}
	d := m.script[min(m.calls, len(m.script)-1)]
	m.calls++
	return d, nil
}

// Calls returns the number of successful Classify calls.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// RegionWidths returns the width of every region passed to Classify.
func (m *MockClassifier) RegionWidths() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.regions...)
}

// Closed reports whether Close was called.
func (m *MockClassifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close implements GestureClassifier.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// OneHot returns a distribution where label has probability p and the
// remaining mass is split evenly across the other labels.
func OneHot(labels []string, label string, p float64) Distribution {
	probs := make([]float64, len(labels))
	rest := 0.0
	if len(labels) > 1 {
		rest = (1 - p) / float64(len(labels)-1)
	}
	for i, l := range labels {
		if l == label {
			probs[i] = p
		} else {
			probs[i] = rest
		}
	}
	return Distribution{Labels: labels, Probs: probs}
}
