package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/metrics"
)

// ErrAborted is returned when the operator stops a capture with ESC.
var ErrAborted = errors.New("capture aborted")

// SessionConfig configures a capture Session.
type SessionConfig struct {
	Camera Camera
	Writer SampleWriter
	// Resume gates the start of each label and every lighting change.
	// Nil means ImmediateResume.
	Resume ResumeSignal
	// Preview is optional. When set, ESC aborts the session.
	Preview Preview
	// Dedup, when set, drops frames that barely differ from the last sample.
	Dedup *DuplicateFilter

	Samples int
	// LightingPhases > 1 splits each label into that many phases with a
	// pause for the operator to change the lighting between them.
	LightingPhases int
	// Manual saves a frame only when the space bar is pressed in Preview.
	Manual   bool
	Interval time.Duration

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// OnSaved is called after each sample is written.
	OnSaved func(label, path string, count int)
}

// Session records raw samples for one or more labels.
type Session struct {
	cfg SessionConfig
}

// NewSession validates the configuration and returns a Session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Camera == nil {
		return nil, errors.New("capture: camera is required")
	}
	if cfg.Writer == nil {
		return nil, errors.New("capture: writer is required")
	}
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("capture: samples must be positive, got %d", cfg.Samples)
	}
	if cfg.Manual && cfg.Preview == nil {
		return nil, errors.New("capture: manual mode needs a preview window")
	}
	if cfg.Resume == nil {
		cfg.Resume = ImmediateResume{}
	}
	return &Session{cfg: cfg}, nil
}

// lightingPauseAt reports whether the operator should change lighting
// before taking sample count.
func (s *Session) lightingPauseAt(count int) bool {
	if s.cfg.LightingPhases < 2 {
		return false
	}
	every := s.cfg.Samples / s.cfg.LightingPhases
	if every == 0 || count == 0 {
		return false
	}
	return count%every == 0 && count/every < s.cfg.LightingPhases
}

// CaptureLabel records Samples frames for label. It returns the number of
// samples written, which is less than requested when the camera runs dry,
// the operator aborts, or ctx is cancelled.
func (s *Session) CaptureLabel(ctx context.Context, label string) (int, error) {
	log := s.cfg.Logger.With().Str("label", label).Logger()

	next, err := s.cfg.Writer.NextIndex(label)
	if err != nil {
		return 0, err
	}
	if s.cfg.Dedup != nil {
		s.cfg.Dedup.Reset()
	}

	log.Info().Int("samples", s.cfg.Samples).Int("first_index", next).Msg("capturing samples")

	count, pausedAt := 0, -1
	for count < s.cfg.Samples {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		if s.lightingPauseAt(count) && pausedAt != count {
			pausedAt = count
			log.Info().Int("count", count).Msg("waiting for lighting change")
			if err := s.cfg.Resume.Wait(ctx, "Switch lighting, press SPACE to continue"); err != nil {
				return count, err
			}
		}

		saved, err := s.captureOne(label, next+count, count, log)
		if err != nil {
			return count, err
		}
		if !saved {
			continue
		}
		count++

		if s.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return count, ctx.Err()
			case <-time.After(s.cfg.Interval):
			}
		}
	}

	log.Info().Int("saved", count).Msg("label captured")
	return count, nil
}

func (s *Session) captureOne(label string, index, count int, log zerolog.Logger) (bool, error) {
	frame, err := s.cfg.Camera.ReadFrame()
	if err != nil {
		return false, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	key := KeyNone
	if s.cfg.Preview != nil {
		key = s.cfg.Preview.Show(frame, fmt.Sprintf("%s: %d/%d", label, count, s.cfg.Samples))
	}
	if key == KeyEsc {
		return false, ErrAborted
	}
	if s.cfg.Manual && key != KeySpace {
		return false, nil
	}

	if s.cfg.Dedup != nil {
		if kept, pct := s.cfg.Dedup.Changed(frame); !kept {
			log.Debug().Float64("change_percent", pct).Msg("skipping duplicate frame")
			return false, nil
		}
	}

	path, err := s.cfg.Writer.Write(label, index, frame)
	if err != nil {
		s.cfg.Metrics.RecordError("capture")
		return false, err
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SamplesCaptured.WithLabelValues(label).Inc()
	}
	log.Debug().Str("path", path).Msg("saved sample")
	if s.cfg.OnSaved != nil {
		s.cfg.OnSaved(label, path, count+1)
	}
	return true, nil
}

// CaptureAll records every label in turn, waiting for the operator before
// each one. It returns the per-label sample counts written so far.
func (s *Session) CaptureAll(ctx context.Context, labels []string) (map[string]int, error) {
	counts := make(map[string]int, len(labels))
	for _, label := range labels {
		if err := s.cfg.Resume.Wait(ctx, fmt.Sprintf("Show %q, press SPACE to start", label)); err != nil {
			return counts, err
		}
		n, err := s.CaptureLabel(ctx, label)
		counts[label] = n
		if err != nil {
			return counts, fmt.Errorf("label %s: %w", label, err)
		}
	}
	return counts, nil
}
