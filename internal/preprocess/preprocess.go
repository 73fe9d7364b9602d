// Package preprocess crops the hand out of raw samples and resizes it to
// the model input size.
//
// Raw samples live in <raw>/<label>/<file>; results are written with the
// same file name to <out>/<label>/<file>. Images without a detectable hand
// are skipped.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/metrics"
)

// Outcome classifies what happened to one raw image.
type Outcome string

const (
	OutcomeSaved      Outcome = "saved"
	OutcomeNoHand     Outcome = "no_hand"
	OutcomeUnreadable Outcome = "unreadable"
	OutcomeFailed     Outcome = "failed"
)

// Result describes the handling of a single raw image.
type Result struct {
	Label   string
	Name    string
	Path    string
	Outcome Outcome
	Err     error
}

// LabelSummary counts outcomes for one label.
type LabelSummary struct {
	Saved      int `json:"saved"`
	NoHand     int `json:"no_hand"`
	Unreadable int `json:"unreadable"`
	Failed     int `json:"failed"`
}

// Total returns the number of images considered.
func (s LabelSummary) Total() int {
	return s.Saved + s.NoHand + s.Unreadable + s.Failed
}

func (s *LabelSummary) add(o Outcome) {
	switch o {
	case OutcomeSaved:
		s.Saved++
	case OutcomeNoHand:
		s.NoHand++
	case OutcomeUnreadable:
		s.Unreadable++
	default:
		s.Failed++
	}
}

// Config configures a Preprocessor.
type Config struct {
	RawDir     string
	OutDir     string
	ImageSize  int
	Extensions []string
	Region     detector.HandRegionDetector
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	OnResult   func(Result)
}

// Preprocessor turns raw samples into cropped training images.
type Preprocessor struct {
	cfg        Config
	extensions map[string]bool
}

// New validates cfg and returns a Preprocessor.
func New(cfg Config) (*Preprocessor, error) {
	if cfg.RawDir == "" || cfg.OutDir == "" {
		return nil, errors.New("preprocess: raw and output directories are required")
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("preprocess: invalid image size %d", cfg.ImageSize)
	}
	if cfg.Region == nil {
		return nil, errors.New("preprocess: hand region detector is required")
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".jpg", ".jpeg", ".png"}
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Preprocessor{cfg: cfg, extensions: exts}, nil
}

// Labels lists the label directories under the raw root.
func (p *Preprocessor) Labels() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("read raw directory: %w", err)
	}
	var labels []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Run processes every label.
func (p *Preprocessor) Run(ctx context.Context) (map[string]LabelSummary, error) {
	labels, err := p.Labels()
	if err != nil {
		return nil, err
	}

	summary := make(map[string]LabelSummary, len(labels))
	for _, label := range labels {
		s, err := p.RunLabel(ctx, label)
		summary[label] = s
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// RunLabel processes one label directory.
func (p *Preprocessor) RunLabel(ctx context.Context, label string) (LabelSummary, error) {
	var summary LabelSummary
	log := p.cfg.Logger.With().Str("label", label).Logger()

	src := filepath.Join(p.cfg.RawDir, label)
	entries, err := os.ReadDir(src)
	if err != nil {
		return summary, fmt.Errorf("read label directory: %w", err)
	}

	dst := filepath.Join(p.cfg.OutDir, label)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if e.IsDir() || !p.extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}

		res := p.processFile(label, e.Name(), filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()))
		summary.add(res.Outcome)

		switch res.Outcome {
		case OutcomeSaved:
			log.Debug().Str("path", res.Path).Msg("saved preprocessed sample")
		case OutcomeNoHand:
			log.Info().Str("file", res.Name).Msg("skipping sample, no hand detected")
		default:
			log.Warn().Str("file", res.Name).Err(res.Err).Msg("skipping sample")
			p.cfg.Metrics.RecordError("preprocess")
		}

		if p.cfg.Metrics != nil {
			p.cfg.Metrics.Preprocessed.WithLabelValues(label, string(res.Outcome)).Inc()
		}
		if p.cfg.OnResult != nil {
			p.cfg.OnResult(res)
		}
	}

	log.Info().
		Int("saved", summary.Saved).
		Int("no_hand", summary.NoHand).
		Int("failed", summary.Unreadable+summary.Failed).
		Msg("label preprocessed")
	return summary, nil
}

func (p *Preprocessor) processFile(label, name, src, dst string) Result {
	res := Result{Label: label, Name: name}

	img := gocv.IMRead(src, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		res.Outcome = OutcomeUnreadable
		res.Err = fmt.Errorf("cannot decode %s", src)
		return res
	}

	cropped, err := p.ExtractHand(&img)
	if err != nil {
		if errors.Is(err, detector.ErrNoHand) {
			res.Outcome = OutcomeNoHand
		} else {
			res.Outcome = OutcomeFailed
		}
		res.Err = err
		return res
	}
	defer cropped.Close()

	if ok := gocv.IMWrite(dst, cropped); !ok {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("write %s", dst)
		return res
	}

	res.Outcome = OutcomeSaved
	res.Path = dst
	return res
}

// ExtractHand crops the hand region of img and resizes it to a square of
// ImageSize pixels. It returns detector.ErrNoHand when no hand is found.
// The caller closes the returned Mat.
func (p *Preprocessor) ExtractHand(img *gocv.Mat) (gocv.Mat, error) {
	region, ok, err := p.cfg.Region.DetectRegion(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	if !ok {
		return gocv.NewMat(), detector.ErrNoHand
	}
	return CropResize(img, region, p.cfg.ImageSize), nil
}

// CropResize returns region of img resized to a size x size square.
func CropResize(img *gocv.Mat, region image.Rectangle, size int) gocv.Mat {
	crop := img.Region(region)
	defer crop.Close()

	out := gocv.NewMat()
	gocv.Resize(crop, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return out
}
