package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/server"
	"github.com/ayusman/handsign/internal/smoothing"
	"github.com/ayusman/handsign/internal/tray"
)

func newInferCommand(ctx *commandContext) *cobra.Command {
	var cameraID int
	var headless bool
	var serveAddr string
	var useTray bool
	var noFlip bool

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run live sign recognition on the webcam",
		Long: `Infer classifies the hand region of every webcam frame and shows the
majority label over the last few frames. Press q in the preview window or
Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("camera") {
				cameraID = cfg.Capture.CameraID
			}

			log := ctx.componentLog("infer")
			m := ctx.metricsValue()

			st, err := ctx.openStore()
			if err != nil {
				return err
			}

			region, det, err := ctx.newRegionDetector(cfg, cfg.Inference.Region, cfg.Preprocess.Padding)
			if err != nil {
				return err
			}
			if det != nil {
				defer det.Close()
			}

			clf, labels, err := ctx.newClassifier(cfg, st, det)
			if err != nil {
				return err
			}
			defer clf.Close()

			stream, err := smoothing.NewStream(cfg.Smoothing.Window, labels...)
			if err != nil {
				return err
			}

			camera := newCamera(cfg, cameraID)
			if err := camera.Open(); err != nil {
				return err
			}
			defer camera.Close()

			runnerCfg := app.Config{
				Camera:         camera,
				Region:         region,
				Classifier:     clf,
				Stream:         stream,
				Flip:           cfg.Inference.Flip && !noFlip,
				Sessions:       st.Sessions(),
				CameraID:       cameraID,
				ClassifierName: cfg.Inference.Classifier,
				Metrics:        m,
				Logger:         log,
			}
			if !headless {
				renderer := app.NewWindowRenderer("handsign")
				defer renderer.Close()
				runnerCfg.Renderer = renderer
			}

			var onEvent []func(app.Event)
			var onFrame []func(*gocv.Mat)

			var srv *server.Server
			if serveAddr != "" {
				feed := server.NewFrameFeed()
				hub := server.NewPredictionHub(ctx.componentLog("server"))
				srv = server.New(server.Config{
					StaticDir: cfg.Server.StaticDir,
					Store:     st,
					Datasets: map[string]dataset.SampleStore{
						"raw":       dataset.NewDirStore(cfg.Paths.RawDir),
						"processed": dataset.NewDirStore(cfg.Paths.ProcessedDir),
					},
					Feed:        feed,
					Predictions: hub,
					Metrics:     m,
					Logger:      ctx.componentLog("server"),
				})
				onFrame = append(onFrame, func(frame *gocv.Mat) {
					if err := feed.Publish(frame); err != nil {
						log.Debug().Err(err).Msg("preview frame dropped")
					}
				})
				onEvent = append(onEvent, func(ev app.Event) {
					if err := hub.Broadcast(ev); err != nil {
						log.Debug().Err(err).Msg("prediction broadcast failed")
					}
				})
			}

			var t *tray.Tray
			if useTray {
				t = tray.New()
				onEvent = append(onEvent, func(ev app.Event) {
					if ev.Changed {
						t.SetLastLabel(ev.Label)
					}
				})
			}

			runnerCfg.OnEvent = func(ev app.Event) {
				for _, fn := range onEvent {
					fn(ev)
				}
			}
			runnerCfg.OnFrame = func(frame *gocv.Mat) {
				for _, fn := range onFrame {
					fn(frame)
				}
			}

			runner, err := app.New(runnerCfg)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if t != nil {
				t.OnToggle(runner.SetEnabled)
				t.OnQuit(cancel)
				if serveAddr != "" {
					t.OnPreview(func() {
						fmt.Fprintf(cmd.OutOrStdout(), "Live preview: http://%s/api/stream\n", displayAddr(serveAddr))
					})
				}
			}

			var stats app.Stats
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				defer cancel()
				var err error
				stats, err = runner.Run(gctx)
				return err
			})
			if srv != nil {
				g.Go(func() error {
					return srv.Run(gctx, serveAddr)
				})
			}
			if t != nil {
				t.RunContext(gctx)
				cancel()
			}
			err = g.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "Frames: %d  No hand: %d  Label changes: %d  Last: %s\n",
				stats.Frames, stats.NoHandFrames, stats.DisplayChanges, orNone(stats.LastLabel))
			return err
		},
	}

	cmd.Flags().IntVar(&cameraID, "camera", 0, "Camera device id (defaults to capture.camera_id)")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run without a preview window")
	cmd.Flags().StringVar(&serveAddr, "serve", "", "Also serve the live preview and prediction feed on this address")
	cmd.Flags().BoolVar(&useTray, "tray", false, "Show a system tray menu to pause recognition")
	cmd.Flags().BoolVar(&noFlip, "no-flip", false, "Do not mirror frames horizontally")
	return cmd
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
