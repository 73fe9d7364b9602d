package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/config"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/store"
)

func newCamera(cfg *config.Config, deviceID int) capture.Camera {
	return capture.NewCamera(capture.CameraConfig{
		DeviceID: deviceID,
		Width:    cfg.Capture.Width,
		Height:   cfg.Capture.Height,
	})
}

// newLandmarkDetector starts (lazily) the MediaPipe helper.
func (c *commandContext) newLandmarkDetector() (*detector.MediaPipeDetector, error) {
	det, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), c.componentLog("detector"))
	if err != nil {
		return nil, fmt.Errorf("hand landmark detector: %w", err)
	}
	return det, nil
}

// newRegionDetector builds the configured hand region strategy. The
// returned detector, if any, must be closed by the caller.
func (c *commandContext) newRegionDetector(cfg *config.Config, mode string, padding int) (detector.HandRegionDetector, detector.Detector, error) {
	switch mode {
	case "fixed":
		roi := cfg.Inference.ROI
		return detector.FixedRegion{Rect: image.Rect(roi.X1, roi.Y1, roi.X2, roi.Y2)}, nil, nil
	case "landmarks":
		det, err := c.newLandmarkDetector()
		if err != nil {
			return nil, nil, err
		}
		return &detector.LandmarkRegionDetector{Detector: det, Padding: padding}, det, nil
	default:
		return nil, nil, fmt.Errorf("unsupported region mode %q", mode)
	}
}

// newClassifier builds the configured classifier. Template classification
// shares det with the region detector when one is already running; closing
// the classifier closes that detector too.
func (c *commandContext) newClassifier(cfg *config.Config, st *store.Store, det detector.Detector) (classifier.GestureClassifier, []string, error) {
	switch cfg.Inference.Classifier {
	case "service":
		svc, err := classifier.NewServiceClassifier(classifier.ServiceConfig{
			Command:   cfg.Inference.ClassifierCommand,
			Labels:    cfg.Inference.Labels,
			ImageSize: cfg.Inference.ImageSize,
			Logger:    c.componentLog("classifier"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("classifier service: %w", err)
		}
		return svc, cfg.Inference.Labels, nil

	case "template":
		templates, err := classifier.LoadTemplates(st.Templates())
		if err != nil {
			return nil, nil, err
		}
		if len(templates) == 0 {
			return nil, nil, errors.New("no landmark templates stored; run `handsign templates train` first")
		}
		if det == nil {
			mp, err := c.newLandmarkDetector()
			if err != nil {
				return nil, nil, err
			}
			det = mp
		}
		tc, err := classifier.NewTemplateClassifier(det, templates)
		if err != nil {
			det.Close()
			return nil, nil, err
		}
		return tc, tc.Labels(), nil

	default:
		return nil, nil, fmt.Errorf("unsupported classifier %q", cfg.Inference.Classifier)
	}
}
