// Package classifier turns a hand region into a probability distribution
// over sign labels.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// ErrNoLabels is returned when a classifier has no labels to score.
var ErrNoLabels = errors.New("classifier: no labels")

// GestureClassifier scores a cropped hand region.
type GestureClassifier interface {
	Classify(region *gocv.Mat) (Distribution, error)
	Close() error
}

// Distribution maps labels to probabilities. Labels and Probs are parallel.
type Distribution struct {
	Labels []string  `json:"labels"`
	Probs  []float64 `json:"probabilities"`
}

// NewDistribution pairs labels with probabilities.
func NewDistribution(labels []string, probs []float64) (Distribution, error) {
	d := Distribution{Labels: labels, Probs: probs}
	if err := d.Validate(); err != nil {
		return Distribution{}, err
	}
	return d, nil
}

// Validate checks that the distribution is well formed.
func (d Distribution) Validate() error {
	if len(d.Labels) == 0 {
		return ErrNoLabels
	}
	if len(d.Labels) != len(d.Probs) {
		return fmt.Errorf("classifier: %d labels but %d probabilities", len(d.Labels), len(d.Probs))
	}
	for i, p := range d.Probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("classifier: probability %v for %q outside [0,1]", p, d.Labels[i])
		}
	}
	return nil
}

// Top returns the most probable label and its probability. Ties go to the
// label listed first.
func (d Distribution) Top() (string, float64) {
	best := -1
	for i, p := range d.Probs {
		if best < 0 || p > d.Probs[best] {
			best = i
		}
	}
	if best < 0 || best >= len(d.Labels) {
		return "", 0
	}
	return d.Labels[best], d.Probs[best]
}

// Prob returns the probability of label, or 0 if it is absent.
func (d Distribution) Prob(label string) float64 {
	for i, l := range d.Labels {
		if l == label && i < len(d.Probs) {
			return d.Probs[i]
		}
	}
	return 0
}

// normalize scales non-negative scores to sum to one. All-zero scores
// produce a uniform distribution.
func normalize(labels []string, scores []float64) Distribution {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	probs := make([]float64, len(scores))
	for i, s := range scores {
		if sum > 0 {
			probs[i] = s / sum
		} else {
			probs[i] = 1 / float64(len(scores))
		}
	}
	return Distribution{Labels: labels, Probs: probs}
}
