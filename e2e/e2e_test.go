package e2e

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/preprocess"
	"github.com/ayusman/handsign/internal/server"
	"github.com/ayusman/handsign/internal/smoothing"
	"github.com/ayusman/handsign/internal/store"
	"github.com/ayusman/handsign/internal/testframes"
)

var (
	labels = []string{"A", "B", "OK"}
	hand   = image.Rect(40, 30, 100, 90)
)

func captureSamples(t *testing.T, root, label string, n int) int {
	t.Helper()

	frames := testframes.Sequence(n, 160, 120, hand)
	t.Cleanup(func() { testframes.CloseAll(frames) })

	cam := capture.NewMockCamera(frames, false)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	sess, err := capture.NewSession(capture.SessionConfig{
		Camera:  cam,
		Writer:  capture.DirWriter{Root: root},
		Samples: n,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	saved, err := sess.CaptureLabel(context.Background(), label)
	if err != nil {
		t.Fatalf("CaptureLabel(%s) error = %v", label, err)
	}
	return saved
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s error = %v", url, err)
	}
}

func TestE2E_DatasetWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	rawDir := filepath.Join(tmpDir, "raw")
	processedDir := filepath.Join(tmpDir, "processed")

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	raw := dataset.NewDirStore(rawDir)

	t.Run("Capture", func(t *testing.T) {
		for label, n := range map[string]int{"A": 6, "B": 4, "OK": 5} {
			if got := captureSamples(t, rawDir, label, n); got != n {
				t.Fatalf("captured %d samples of %s, want %d", got, label, n)
			}
		}

		// A second session for B continues numbering after the first.
		if got := captureSamples(t, rawDir, "B", 2); got != 2 {
			t.Fatalf("captured %d more samples of B, want 2", got)
		}

		inv, err := raw.Inventory(ctx)
		if err != nil {
			t.Fatalf("Inventory() error = %v", err)
		}
		want := map[string]int{"A": 6, "B": 6, "OK": 5}
		for label, n := range want {
			if got := inv.Counts()[label]; got != n {
				t.Errorf("%s count = %d, want %d", label, got, n)
			}
		}
	})

	t.Run("Balance", func(t *testing.T) {
		run := &store.BalanceRun{DatasetRoot: rawDir}
		if err := s.BalanceRuns().Create(run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		b := dataset.NewBalancer(dataset.Config{
			Store: raw,
			OnRemove: func(rm dataset.Removal) error {
				return s.BalanceRuns().AddRemoval(run.ID, rm.Label, rm.Sample)
			},
		})

		plan, report, err := b.Run(ctx, dataset.PlanOptions{})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if plan.Target != 5 {
			t.Errorf("target = %d, want 5", plan.Target)
		}
		if !report.Balanced() {
			t.Errorf("report not balanced: %v", report.After)
		}
		if len(report.Removed) != 2 {
			t.Errorf("removed %d samples, want 2", len(report.Removed))
		}
		if err := s.BalanceRuns().Finish(run.ID, store.BalanceCompleted, ""); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
	})

	t.Run("Preprocess", func(t *testing.T) {
		p, err := preprocess.New(preprocess.Config{
			RawDir:    rawDir,
			OutDir:    processedDir,
			ImageSize: 32,
			Region:    detector.FixedRegion{Rect: hand},
		})
		if err != nil {
			t.Fatalf("preprocess.New() error = %v", err)
		}

		summary, err := p.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		for _, label := range labels {
			if got := summary[label].Saved; got != 5 {
				t.Errorf("%s saved = %d, want 5", label, got)
			}
		}

		inv, err := dataset.NewDirStore(processedDir).Inventory(ctx)
		if err != nil {
			t.Fatalf("Inventory() error = %v", err)
		}
		if !inv.Balanced() || inv.Total() != 15 {
			t.Errorf("processed inventory = %v, want 5 per label", inv.Counts())
		}
	})

	t.Run("Recognize", func(t *testing.T) {
		frames := testframes.Sequence(6, 160, 120, hand)
		defer testframes.CloseAll(frames)

		var script []classifier.Distribution
		for _, l := range []string{"B", "B", "OK", "B", "OK", "OK"} {
			script = append(script, classifier.OneHot(labels, l, 0.9))
		}

		stream, err := smoothing.NewStream(3, labels...)
		if err != nil {
			t.Fatalf("NewStream() error = %v", err)
		}

		runner, err := app.New(app.Config{
			Camera:         capture.NewMockCamera(frames, false),
			Region:         detector.FixedRegion{Rect: hand},
			Classifier:     classifier.NewMockClassifier(script...),
			Stream:         stream,
			Sessions:       s.Sessions(),
			ClassifierName: "mock",
		})
		if err != nil {
			t.Fatalf("app.New() error = %v", err)
		}

		stats, err := runner.Run(ctx)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Frames != 6 {
			t.Errorf("frames = %d, want 6", stats.Frames)
		}
		if stats.LastLabel != "OK" {
			t.Errorf("last label = %q, want OK", stats.LastLabel)
		}
	})

	t.Run("API", func(t *testing.T) {
		srv := server.New(server.Config{
			Store: s,
			Datasets: map[string]dataset.SampleStore{
				"raw":       raw,
				"processed": dataset.NewDirStore(processedDir),
			},
		})
		ts := httptest.NewServer(srv)
		defer ts.Close()
		client := ts.Client()

		var inv struct {
			Total    int  `json:"total"`
			Balanced bool `json:"balanced"`
		}
		getJSON(t, client, ts.URL+"/api/inventory/processed", &inv)
		if inv.Total != 15 || !inv.Balanced {
			t.Errorf("processed inventory total=%d balanced=%v", inv.Total, inv.Balanced)
		}

		var runs struct {
			Runs []store.BalanceRun `json:"runs"`
		}
		getJSON(t, client, ts.URL+"/api/runs", &runs)
		if len(runs.Runs) != 1 {
			t.Fatalf("runs = %d, want 1", len(runs.Runs))
		}
		if runs.Runs[0].Removed != 2 || runs.Runs[0].Status != store.BalanceCompleted {
			t.Errorf("run = %+v", runs.Runs[0])
		}

		var sessions struct {
			Sessions []store.InferenceSession `json:"sessions"`
		}
		getJSON(t, client, ts.URL+"/api/sessions", &sessions)
		if len(sessions.Sessions) != 1 || sessions.Sessions[0].Frames != 6 {
			t.Errorf("sessions = %+v", sessions.Sessions)
		}
	})
}

func TestE2E_BalanceIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	root := t.TempDir()
	for label, n := range map[string]int{"A": 3, "B": 7} {
		captureSamples(t, root, label, n)
	}

	b := dataset.NewBalancer(dataset.Config{Store: dataset.NewDirStore(root)})
	ctx := context.Background()

	if _, report, err := b.Run(ctx, dataset.PlanOptions{}); err != nil || len(report.Removed) != 4 {
		t.Fatalf("first run removed %v, err = %v", report, err)
	}

	plan, report, err := b.Run(ctx, dataset.PlanOptions{})
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if !plan.Empty() || len(report.Removed) != 0 {
		t.Errorf("second run removed %d samples, want 0", len(report.Removed))
	}
}
