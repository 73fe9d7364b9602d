package app

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/smoothing"
	"github.com/ayusman/handsign/internal/store"
)

var labels = []string{"A", "B", "OK"}

// scriptedRegion reports a hand on frames whose script entry is true.
type scriptedRegion struct {
	hands []bool
	calls int
	err   error
}

func (s *scriptedRegion) DetectRegion(frame *gocv.Mat) (image.Rectangle, bool, error) {
	defer func() { s.calls++ }()
	if s.err != nil {
		return image.Rectangle{}, false, s.err
	}
	if s.calls < len(s.hands) && !s.hands[s.calls] {
		return image.Rectangle{}, false, nil
	}
	return image.Rect(10, 10, 50, 50), true, nil
}

type quitRenderer struct {
	after  int
	frames int
}

func (q *quitRenderer) Render(frame *gocv.Mat) bool {
	q.frames++
	return q.after > 0 && q.frames >= q.after
}

func (q *quitRenderer) Close() error { return nil }

func newCamera(t *testing.T, n int) *capture.MockCamera {
	t.Helper()
	var frames []*gocv.Mat
	for i := 0; i < n; i++ {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
		t.Cleanup(func() { m.Close() })
		frames = append(frames, &m)
	}
	return capture.NewMockCamera(frames, false)
}

func script(seq ...string) []classifier.Distribution {
	out := make([]classifier.Distribution, len(seq))
	for i, l := range seq {
		out[i] = classifier.OneHot(labels, l, 0.8)
	}
	return out
}

func newStream(t *testing.T) *smoothing.Stream {
	t.Helper()
	s, err := smoothing.NewStream(smoothing.DefaultWindow, labels...)
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Classifier: classifier.NewMockClassifier(), Stream: newStream(t)})
	assert.Error(t, err)

	_, err = New(Config{Region: &scriptedRegion{}, Stream: newStream(t)})
	assert.Error(t, err)

	_, err = New(Config{Region: &scriptedRegion{}, Classifier: classifier.NewMockClassifier()})
	assert.Error(t, err)
}

func TestRunner_MajorityVoteOverFrames(t *testing.T) {
	m := metrics.New()
	var events []Event
	r, err := New(Config{
		Camera:     newCamera(t, 5),
		Region:     &scriptedRegion{},
		Classifier: classifier.NewMockClassifier(script("A", "A", "B", "A", "B")...),
		Stream:     newStream(t),
		Flip:       true,
		Metrics:    m,
		OnEvent:    func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, "A", stats.LastLabel)
	require.Len(t, events, 5)

	assert.Equal(t, "B", events[2].Raw)
	assert.Equal(t, "A", events[2].Label, "one B among As must not flip the display")
	assert.Equal(t, "A", events[4].Label)
	for _, ev := range events {
		assert.Equal(t, 0.8, ev.Confidence, "confidence is the raw frame confidence")
		assert.True(t, ev.HasHand)
	}

	assert.Equal(t, 5.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DisplayChangesTotal))
}

func TestRunner_DisplayFollowsMajority(t *testing.T) {
	seq := []string{"A", "A", "B", "B", "B", "B", "B"}
	var labelsSeen []string
	r, err := New(Config{
		Camera:     newCamera(t, len(seq)),
		Region:     &scriptedRegion{},
		Classifier: classifier.NewMockClassifier(script(seq...)...),
		Stream:     newStream(t),
		OnEvent:    func(ev Event) { labelsSeen = append(labelsSeen, ev.Label) },
	})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B", labelsSeen[len(labelsSeen)-1])
	assert.Equal(t, 2, stats.DisplayChanges)
}

func TestRunner_NoHandFramesKeepLabel(t *testing.T) {
	m := metrics.New()
	region := &scriptedRegion{hands: []bool{true, false, false, true}}
	mock := classifier.NewMockClassifier(script("OK", "OK")...)

	var events []Event
	r, err := New(Config{
		Camera:     newCamera(t, 4),
		Region:     region,
		Classifier: mock,
		Stream:     newStream(t),
		Metrics:    m,
		OnEvent:    func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.NoHandFrames)
	assert.Equal(t, 2, mock.Calls())
	assert.False(t, events[1].HasHand)
	assert.Equal(t, "OK", events[1].Label)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NoHandFramesTotal))
	assert.Equal(t, []int{40, 40}, mock.RegionWidths(), "classifier sees only the cropped region")
}

func TestRunner_ClassifierNoHandCountsAsNoHand(t *testing.T) {
	det := detector.NewMockDetector()
	tmpl, err := classifier.TrainTemplate("A", []detector.HandLandmarks{detector.ASignLandmarks()}, 0)
	require.NoError(t, err)
	tc, err := classifier.NewTemplateClassifier(det, []classifier.Template{tmpl})
	require.NoError(t, err)

	stream, err := smoothing.NewStream(smoothing.DefaultWindow)
	require.NoError(t, err)

	r, err := New(Config{Camera: newCamera(t, 2), Region: &scriptedRegion{}, Classifier: tc, Stream: stream})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NoHandFrames)
	assert.Zero(t, stream.Len())
}

func TestRunner_FrameErrorsDoNotStopLoop(t *testing.T) {
	m := metrics.New()
	mock := classifier.NewMockClassifier()
	mock.SetError(errors.New("service down"))

	var events int
	r, err := New(Config{
		Camera:     newCamera(t, 3),
		Region:     &scriptedRegion{},
		Classifier: mock,
		Stream:     newStream(t),
		Metrics:    m,
		OnEvent:    func(Event) { events++ },
	})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)
	assert.Zero(t, events)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("classifier")))
}

func TestRunner_InvalidPredictionLeavesStream(t *testing.T) {
	bad := classifier.Distribution{Labels: []string{"Z"}, Probs: []float64{0.9}}
	stream := newStream(t)
	r, err := New(Config{
		Camera:     newCamera(t, 2),
		Region:     &scriptedRegion{},
		Classifier: classifier.NewMockClassifier(bad),
		Stream:     stream,
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stream.Len())
}

func TestRunner_Step(t *testing.T) {
	r, err := New(Config{
		Region:     &scriptedRegion{err: errors.New("helper crashed")},
		Classifier: classifier.NewMockClassifier(script("A")...),
		Stream:     newStream(t),
	})
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	_, err = r.Step(&frame)
	assert.ErrorContains(t, err, "helper crashed")
}

func TestRunner_RendererQuit(t *testing.T) {
	cam := newCamera(t, 10)
	renderer := &quitRenderer{after: 3}
	var published int
	r, err := New(Config{
		Camera:     cam,
		Region:     &scriptedRegion{},
		Classifier: classifier.NewMockClassifier(script("B")...),
		Stream:     newStream(t),
		Renderer:   renderer,
		OnFrame:    func(*gocv.Mat) { published++ },
	})
	require.NoError(t, err)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)
	assert.Equal(t, 3, published)
	assert.Equal(t, 3, cam.Reads())
}

func TestRunner_Disabled(t *testing.T) {
	mock := classifier.NewMockClassifier(script("A")...)
	renderer := &quitRenderer{}
	r, err := New(Config{
		Camera:     newCamera(t, 4),
		Region:     &scriptedRegion{},
		Classifier: mock,
		Stream:     newStream(t),
		Renderer:   renderer,
	})
	require.NoError(t, err)

	r.SetEnabled(false)
	assert.False(t, r.IsEnabled())

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
	assert.Zero(t, mock.Calls())
	assert.Equal(t, 4, renderer.frames, "paused frames are still rendered")
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cam := newCamera(t, 3)
	r, err := New(Config{Camera: cam, Region: &scriptedRegion{}, Classifier: classifier.NewMockClassifier(), Stream: newStream(t)})
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, cam.Reads())
}

func TestRunner_RecordsSession(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r, err := New(Config{
		Camera:         newCamera(t, 3),
		Region:         &scriptedRegion{hands: []bool{true, false, true}},
		Classifier:     classifier.NewMockClassifier(script("B")...),
		Stream:         newStream(t),
		Sessions:       s.Sessions(),
		CameraID:       2,
		ClassifierName: "mock",
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	sessions, err := s.Sessions().List(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	got := sessions[0]
	assert.Equal(t, 3, got.Frames)
	assert.Equal(t, 1, got.NoHandFrames)
	assert.Equal(t, "B", got.LastLabel)
	assert.Equal(t, 2, got.CameraID)
	assert.Equal(t, "mock", got.Classifier)
	assert.Equal(t, smoothing.DefaultWindow, got.Window)
	assert.NotNil(t, got.EndedAt)
}

func TestAnnotate(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Annotate(&frame, Event{})
	assert.Zero(t, gocv.CountNonZero(grey(t, &frame)))

	Annotate(&frame, Event{Region: image.Rect(20, 20, 100, 100), Label: "A", Confidence: 0.9})
	assert.Positive(t, gocv.CountNonZero(grey(t, &frame)))
}

func grey(t *testing.T, frame *gocv.Mat) gocv.Mat {
	t.Helper()
	g := gocv.NewMat()
	t.Cleanup(func() { g.Close() })
	gocv.CvtColor(*frame, &g, gocv.ColorBGRToGray)
	return g
}
