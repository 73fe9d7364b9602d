package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	for _, p := range []*string{&c.Paths.RawDir, &c.Paths.ProcessedDir, &c.Paths.DBPath, &c.Paths.ModelsDir, &c.Server.StaticDir} {
		expanded, err := expandPath(strings.TrimSpace(*p))
		if err != nil {
			return err
		}
		*p = expanded
	}

	c.Inference.Region = strings.ToLower(strings.TrimSpace(c.Inference.Region))
	c.Inference.Classifier = strings.ToLower(strings.TrimSpace(c.Inference.Classifier))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	for i, ext := range c.Preprocess.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Preprocess.Extensions[i] = ext
	}
	return nil
}

// Validate checks the configuration for values the commands cannot use.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.RawDir == "" {
		errs = append(errs, errors.New("paths.raw_dir must be set"))
	}
	if c.Paths.ProcessedDir == "" {
		errs = append(errs, errors.New("paths.processed_dir must be set"))
	}
	if c.Paths.DBPath == "" {
		errs = append(errs, errors.New("paths.db_path must be set"))
	}
	if c.Capture.IntervalMs < 0 {
		errs = append(errs, fmt.Errorf("capture.interval_ms must not be negative, got %d", c.Capture.IntervalMs))
	}
	if c.Capture.LightingPhases < 0 {
		errs = append(errs, fmt.Errorf("capture.lighting_phases must not be negative, got %d", c.Capture.LightingPhases))
	}
	if c.Preprocess.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("preprocess.image_size must be positive, got %d", c.Preprocess.ImageSize))
	}
	if c.Preprocess.Padding < 0 {
		errs = append(errs, fmt.Errorf("preprocess.padding must not be negative, got %d", c.Preprocess.Padding))
	}
	if c.Inference.ImageSize <= 0 {
		errs = append(errs, fmt.Errorf("inference.image_size must be positive, got %d", c.Inference.ImageSize))
	}
	if len(c.Inference.Labels) == 0 {
		errs = append(errs, errors.New("inference.labels must list at least one label"))
	}

	switch c.Inference.Region {
	case "fixed":
		roi := c.Inference.ROI
		if roi.X1 < 0 || roi.Y1 < 0 || roi.X2 <= roi.X1 || roi.Y2 <= roi.Y1 {
			errs = append(errs, fmt.Errorf("inference.roi is empty or negative: %+v", roi))
		}
	case "landmarks":
	default:
		errs = append(errs, fmt.Errorf("inference.region: unsupported value %q", c.Inference.Region))
	}

	switch c.Inference.Classifier {
	case "service":
		if len(c.Inference.ClassifierCommand) == 0 {
			errs = append(errs, errors.New("inference.classifier_command must be set for the service classifier"))
		}
	case "template":
	default:
		errs = append(errs, fmt.Errorf("inference.classifier: unsupported value %q", c.Inference.Classifier))
	}

	if c.Smoothing.Window < 1 {
		errs = append(errs, fmt.Errorf("smoothing.window must be at least 1, got %d", c.Smoothing.Window))
	}

	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
