package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/tray"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var lighting bool
	var manual bool
	var headless bool
	var useTray bool
	var cameraID int

	cmd := &cobra.Command{
		Use:   "capture <num_samples> [label]",
		Short: "Record raw samples from the webcam",
		Long: `Capture records num_samples frames per label into data/raw/<label>/.
Without a label every configured label is captured in turn, pausing before
each one. --lighting adds pauses within each label so the lighting can be
changed between phases.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			samples, err := strconv.Atoi(args[0])
			if err != nil || samples <= 0 {
				return fmt.Errorf("num_samples must be a positive integer, got %q", args[0])
			}

			labels := cfg.Capture.Labels
			if len(args) == 2 {
				if !slices.Contains(cfg.Capture.Labels, args[1]) {
					return fmt.Errorf("unknown label %q (configured: %s)", args[1], strings.Join(cfg.Capture.Labels, ", "))
				}
				labels = []string{args[1]}
			}
			if headless && manual {
				return errors.New("--manual needs the preview window")
			}
			if !cmd.Flags().Changed("camera") {
				cameraID = cfg.Capture.CameraID
			}

			log := ctx.componentLog("capture")
			m := ctx.metricsValue()

			camera := newCamera(cfg, cameraID)
			if err := camera.Open(); err != nil {
				return err
			}
			defer camera.Close()

			sessCfg := capture.SessionConfig{
				Camera:   camera,
				Writer:   capture.DirWriter{Root: cfg.Paths.RawDir},
				Samples:  samples,
				Manual:   manual,
				Interval: time.Duration(cfg.Capture.IntervalMs) * time.Millisecond,
				Metrics:  m,
				Logger:   log,
				OnSaved: func(label, path string, count int) {
					log.Debug().Str("path", path).Int("count", count).Msg("sample saved")
				},
			}
			if lighting {
				sessCfg.LightingPhases = cfg.Capture.LightingPhases
			}
			if cfg.Capture.MotionThreshold > 0 {
				dedup := capture.NewDuplicateFilter(cfg.Capture.MotionThreshold)
				defer dedup.Close()
				sessCfg.Dedup = dedup
			}

			var t *tray.Tray
			if !headless {
				window := capture.NewWindow("handsign capture")
				defer window.Close()
				sessCfg.Preview = window
				sessCfg.Resume = window
			}
			if useTray {
				t = tray.New()
				sessCfg.Resume = t.ResumeSignal()
			}

			session, err := capture.NewSession(sessCfg)
			if err != nil {
				return err
			}

			run := func(runCtx context.Context) (map[string]int, error) {
				if len(labels) == 1 {
					n, err := session.CaptureLabel(runCtx, labels[0])
					return map[string]int{labels[0]: n}, err
				}
				return session.CaptureAll(runCtx, labels)
			}

			var counts map[string]int
			if t != nil {
				runCtx, cancel := context.WithCancel(cmd.Context())
				t.OnQuit(cancel)
				done := make(chan struct{})
				go func() {
					defer close(done)
					defer cancel()
					counts, err = run(runCtx)
				}()
				t.RunContext(runCtx)
				<-done
			} else {
				counts, err = run(cmd.Context())
			}

			printCaptureSummary(cmd, labels, counts, samples)
			if errors.Is(err, capture.ErrAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Capture aborted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&lighting, "lighting", false, "Pause within each label to change the lighting")
	cmd.Flags().BoolVar(&manual, "manual", false, "Save a frame only when SPACE is pressed")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without a preview window")
	cmd.Flags().BoolVar(&useTray, "tray", false, "Resume paused capture from the system tray")
	cmd.Flags().IntVar(&cameraID, "camera", 0, "Camera device id (defaults to capture.camera_id)")
	return cmd
}

func printCaptureSummary(cmd *cobra.Command, labels []string, counts map[string]int, requested int) {
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		n, ok := counts[label]
		if !ok {
			continue
		}
		rows = append(rows, []string{label, strconv.Itoa(n), strconv.Itoa(requested)})
	}
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Label", "Saved", "Requested"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
}
