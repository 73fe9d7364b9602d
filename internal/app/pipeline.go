package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/smoothing"
	"github.com/ayusman/handsign/internal/store"
)

// Step processes one frame that is already oriented for display:
// locate the hand, classify it, push the top prediction into the stream.
// Frames without a hand keep the previous display label.
func (r *Runner) Step(frame *gocv.Mat) (Event, error) {
	r.stats.Frames++
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.FramesTotal.Inc()
	}

	ev := Event{Frame: r.stats.Frames, Time: time.Now()}
	if r.hasLast {
		ev.Label = r.last.Label
	}

	region, ok, err := r.cfg.Region.DetectRegion(frame)
	if err != nil {
		r.cfg.Metrics.RecordError("region")
		return ev, fmt.Errorf("detect region: %w", err)
	}
	if !ok {
		return r.noHand(ev), nil
	}
	ev.Region = region

	crop := frame.Region(region)
	defer crop.Close()

	start := time.Now()
	dist, err := r.cfg.Classifier.Classify(&crop)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ClassifySeconds.Observe(time.Since(start).Seconds())
	}
	if errors.Is(err, detector.ErrNoHand) {
		return r.noHand(ev), nil
	}
	if err != nil {
		r.cfg.Metrics.RecordError("classifier")
		return ev, fmt.Errorf("classify: %w", err)
	}

	label, confidence := dist.Top()
	display, err := r.cfg.Stream.Push(smoothing.Prediction{Label: label, Confidence: confidence})
	if err != nil {
		r.cfg.Metrics.RecordError("smoothing")
		return ev, err
	}

	r.last, r.hasLast = display, true
	r.stats.LastLabel = display.Label
	if display.Changed {
		r.stats.DisplayChanges++
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.DisplayConfidence.Set(display.Confidence)
		if display.Changed {
			r.cfg.Metrics.DisplayChangesTotal.Inc()
		}
	}

	ev.HasHand = true
	ev.Raw = label
	ev.Label = display.Label
	ev.Confidence = display.Confidence
	ev.Changed = display.Changed
	return ev, nil
}

func (r *Runner) noHand(ev Event) Event {
	r.stats.NoHandFrames++
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.NoHandFramesTotal.Inc()
	}
	return ev
}

// Run reads frames until ctx is cancelled, the camera runs out of frames,
// or the renderer reports a quit. Per-frame errors are logged and the loop
// continues. The camera is opened if needed but not closed.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	if r.cfg.Camera == nil {
		return r.stats, errors.New("app: camera is required")
	}
	if !r.cfg.Camera.IsOpen() {
		if err := r.cfg.Camera.Open(); err != nil {
			return r.stats, err
		}
	}

	sess := r.startSession()
	defer r.finishSession(sess)

	log := r.cfg.Logger
	log.Info().Bool("flip", r.cfg.Flip).Int("window", r.cfg.Stream.Window()).Msg("inference loop started")

	for {
		if err := ctx.Err(); err != nil {
			log.Info().Int("frames", r.stats.Frames).Msg("inference loop stopped")
			return r.stats, nil
		}

		frame, err := r.cfg.Camera.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			log.Info().Int("frames", r.stats.Frames).Msg("frame source ended")
			return r.stats, nil
		}
		if err != nil {
			r.cfg.Metrics.RecordError("camera")
			return r.stats, fmt.Errorf("read frame: %w", err)
		}

		quit := r.processFrame(frame)
		frame.Close()
		if quit {
			log.Info().Int("frames", r.stats.Frames).Msg("quit requested")
			return r.stats, nil
		}
	}
}

func (r *Runner) processFrame(frame *gocv.Mat) bool {
	if r.cfg.Flip {
		gocv.Flip(*frame, frame, 1)
	}

	if r.IsEnabled() {
		ev, err := r.Step(frame)
		if err != nil {
			r.cfg.Logger.Warn().Err(err).Int("frame", ev.Frame).Msg("frame skipped")
		} else {
			Annotate(frame, ev)
			if ev.Changed {
				r.cfg.Logger.Info().Str("label", ev.Label).Float64("confidence", ev.Confidence).Msg("display label changed")
			}
			if r.cfg.OnEvent != nil {
				r.cfg.OnEvent(ev)
			}
		}
	}

	if r.cfg.OnFrame != nil {
		r.cfg.OnFrame(frame)
	}
	if r.cfg.Renderer != nil {
		return r.cfg.Renderer.Render(frame)
	}
	return false
}

func (r *Runner) startSession() *store.InferenceSession {
	if r.cfg.Sessions == nil {
		return nil
	}
	sess := &store.InferenceSession{
		CameraID:   r.cfg.CameraID,
		Classifier: r.cfg.ClassifierName,
		Window:     r.cfg.Stream.Window(),
	}
	if err := r.cfg.Sessions.Create(sess); err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("failed to record inference session")
		return nil
	}
	return sess
}

func (r *Runner) finishSession(sess *store.InferenceSession) {
	if sess == nil {
		return
	}
	sess.Frames = r.stats.Frames
	sess.NoHandFrames = r.stats.NoHandFrames
	sess.DisplayChanges = r.stats.DisplayChanges
	sess.LastLabel = r.stats.LastLabel
	if err := r.cfg.Sessions.Finish(sess); err != nil {
		r.cfg.Logger.Warn().Err(err).Str("session", sess.ID).Msg("failed to finish inference session")
	}
}
