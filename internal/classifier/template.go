package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/store"
)

// DefaultTolerance is the summed landmark distance above which a template
// contributes nothing to the distribution.
const DefaultTolerance = 3.0

// Template is the averaged, normalized landmark shape of a label.
type Template struct {
	Label     string
	Landmarks []detector.Point3D
	Tolerance float64
	Samples   int
}

// TemplateClassifier scores a region by comparing the detected hand's
// normalized landmarks to per-label templates.
type TemplateClassifier struct {
	detector  detector.Detector
	templates []Template
}

// NewTemplateClassifier creates a classifier over the given templates.
func NewTemplateClassifier(det detector.Detector, templates []Template) (*TemplateClassifier, error) {
	if len(templates) == 0 {
		return nil, ErrNoLabels
	}
	sorted := append([]Template(nil), templates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })
	return &TemplateClassifier{detector: det, templates: sorted}, nil
}

// Labels returns the template labels in order.
func (c *TemplateClassifier) Labels() []string {
	labels := make([]string, len(c.templates))
	for i, t := range c.templates {
		labels[i] = t.Label
	}
	return labels
}

// Classify implements GestureClassifier. It returns detector.ErrNoHand when
// the region holds no hand.
func (c *TemplateClassifier) Classify(region *gocv.Mat) (Distribution, error) {
	hands, err := c.detector.Detect(region)
	if err != nil {
		return Distribution{}, err
	}
	if len(hands) == 0 {
		return Distribution{}, detector.ErrNoHand
	}
	return c.Score(&hands[0]), nil
}

// Score compares one hand against every template. Each template scores
// 1/(1+distance) when within tolerance and zero otherwise; scores are then
// normalized to a distribution.
func (c *TemplateClassifier) Score(hand *detector.HandLandmarks) Distribution {
	normalized := hand.Normalize()
	labels := c.Labels()
	scores := make([]float64, len(c.templates))

	for i, t := range c.templates {
		distance := landmarkDistance(normalized.Points[:], t.Landmarks)
		tolerance := t.Tolerance
		if tolerance <= 0 {
			tolerance = DefaultTolerance
		}
		if distance <= tolerance {
			scores[i] = 1.0 / (1.0 + distance)
		}
	}

	return normalize(labels, scores)
}

// Close releases the underlying detector.
func (c *TemplateClassifier) Close() error {
	return c.detector.Close()
}

// landmarkDistance sums the Euclidean distances between corresponding
// points. Extra points on either side are ignored.
func landmarkDistance(a, b []detector.Point3D) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return math.Inf(1)
	}

	var total float64
	for i := 0; i < n; i++ {
		total += a[i].Dist(b[i])
	}
	return total
}

// TrainTemplate averages the normalized landmarks of several samples of one
// label into a template.
func TrainTemplate(label string, samples []detector.HandLandmarks, tolerance float64) (Template, error) {
	if label == "" {
		return Template{}, errors.New("template label is required")
	}
	if len(samples) == 0 {
		return Template{}, fmt.Errorf("template %q: no samples provided", label)
	}

	var sum [detector.NumLandmarks]detector.Point3D
	for _, s := range samples {
		normalized := s.Normalize()
		for i, p := range normalized.Points {
			sum[i].X += p.X
			sum[i].Y += p.Y
			sum[i].Z += p.Z
		}
	}

	n := float64(len(samples))
	averaged := make([]detector.Point3D, detector.NumLandmarks)
	for i, p := range sum {
		averaged[i] = detector.Point3D{X: p.X / n, Y: p.Y / n, Z: p.Z / n}
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return Template{Label: label, Landmarks: averaged, Tolerance: tolerance, Samples: len(samples)}, nil
}

// ToRecord converts a template to its stored form.
func (t Template) ToRecord() *store.LabelTemplate {
	points := make([]store.Point, len(t.Landmarks))
	for i, p := range t.Landmarks {
		points[i] = store.Point{X: p.X, Y: p.Y, Z: p.Z}
	}
	return &store.LabelTemplate{
		Label:     t.Label,
		Samples:   t.Samples,
		Tolerance: t.Tolerance,
		Landmarks: points,
	}
}

// TemplateFromRecord converts a stored template.
func TemplateFromRecord(rec *store.LabelTemplate) Template {
	points := make([]detector.Point3D, len(rec.Landmarks))
	for i, p := range rec.Landmarks {
		points[i] = detector.Point3D{X: p.X, Y: p.Y, Z: p.Z}
	}
	return Template{
		Label:     rec.Label,
		Landmarks: points,
		Tolerance: rec.Tolerance,
		Samples:   rec.Samples,
	}
}

// LoadTemplates reads every stored template.
func LoadTemplates(repo *store.TemplateRepository) ([]Template, error) {
	records, err := repo.List()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	templates := make([]Template, len(records))
	for i, rec := range records {
		templates[i] = TemplateFromRecord(rec)
	}
	return templates, nil
}
