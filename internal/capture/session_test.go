package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/metrics"
)

type memWriter struct {
	start   int
	written map[string][]int
	failAt  int
}

func newMemWriter() *memWriter {
	return &memWriter{written: map[string][]int{}, failAt: -1}
}

func (w *memWriter) NextIndex(label string) (int, error) { return w.start, nil }

func (w *memWriter) Write(label string, index int, frame *gocv.Mat) (string, error) {
	if w.failAt >= 0 && len(w.written[label]) == w.failAt {
		return "", errors.New("disk full")
	}
	w.written[label] = append(w.written[label], index)
	return SampleName(label, index), nil
}

type recordingResume struct {
	prompts []string
	err     error
}

func (r *recordingResume) Wait(ctx context.Context, prompt string) error {
	r.prompts = append(r.prompts, prompt)
	return r.err
}

type scriptedPreview struct {
	keys  []int
	shown int
}

func (p *scriptedPreview) Show(frame *gocv.Mat, status string) int {
	defer func() { p.shown++ }()
	if p.shown < len(p.keys) {
		return p.keys[p.shown]
	}
	return KeyNone
}

func loopingCamera(t *testing.T) *MockCamera {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	require.NoError(t, cam.Open())
	return cam
}

func TestNewSession_Validation(t *testing.T) {
	cam := NewMockCamera(nil, false)

	_, err := NewSession(SessionConfig{Writer: newMemWriter(), Samples: 1})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{Camera: cam, Samples: 1})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{Camera: cam, Writer: newMemWriter()})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{Camera: cam, Writer: newMemWriter(), Samples: 1, Manual: true})
	assert.Error(t, err)
}

func TestSession_CaptureLabel(t *testing.T) {
	w := newMemWriter()
	w.start = 7
	m := metrics.New()

	var saved []string
	s, err := NewSession(SessionConfig{
		Camera:  loopingCamera(t),
		Writer:  w,
		Samples: 4,
		Metrics: m,
		OnSaved: func(label, path string, count int) { saved = append(saved, path) },
	})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{7, 8, 9, 10}, w.written["A"])
	assert.Equal(t, "A_0010.jpg", saved[3])
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SamplesCaptured.WithLabelValues("A")))
}

func TestSession_LightingPauses(t *testing.T) {
	resume := &recordingResume{}
	s, err := NewSession(SessionConfig{
		Camera:         loopingCamera(t),
		Writer:         newMemWriter(),
		Resume:         resume,
		Samples:        9,
		LightingPhases: 3,
	})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Len(t, resume.prompts, 2, "three lighting phases need two pauses")
}

func TestSession_LightingPauseError(t *testing.T) {
	resume := &recordingResume{err: context.Canceled}
	s, err := NewSession(SessionConfig{
		Camera:         loopingCamera(t),
		Writer:         newMemWriter(),
		Resume:         resume,
		Samples:        6,
		LightingPhases: 2,
	})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "B")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, n)
}

func TestSession_EndOfStream(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := NewMockCamera([]*gocv.Mat{&frame, &frame}, false)
	require.NoError(t, cam.Open())

	s, err := NewSession(SessionConfig{Camera: cam, Writer: newMemWriter(), Samples: 5})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "OK")
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.Equal(t, 2, n)
}

func TestSession_EscAborts(t *testing.T) {
	preview := &scriptedPreview{keys: []int{KeyNone, KeyEsc}}
	s, err := NewSession(SessionConfig{
		Camera:  loopingCamera(t),
		Writer:  newMemWriter(),
		Preview: preview,
		Samples: 5,
	})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "A")
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, n)
}

func TestSession_ManualCapture(t *testing.T) {
	preview := &scriptedPreview{keys: []int{KeyNone, KeySpace, KeyNone, KeyNone, KeySpace}}
	w := newMemWriter()
	s, err := NewSession(SessionConfig{
		Camera:  loopingCamera(t),
		Writer:  w,
		Preview: preview,
		Manual:  true,
		Samples: 2,
	})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, preview.shown)
}

func TestSession_DuplicateFramesSkipped(t *testing.T) {
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer black.Close()
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer white.Close()

	cam := NewMockCamera([]*gocv.Mat{&black, &black, &white, &white}, false)
	require.NoError(t, cam.Open())

	dedup := NewDuplicateFilter(1.0)
	defer dedup.Close()

	w := newMemWriter()
	s, err := NewSession(SessionConfig{Camera: cam, Writer: w, Dedup: dedup, Samples: 2})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, cam.Reads())
}

func TestSession_WriteFailure(t *testing.T) {
	w := newMemWriter()
	w.failAt = 1
	m := metrics.New()
	s, err := NewSession(SessionConfig{Camera: loopingCamera(t), Writer: w, Samples: 3, Metrics: m})
	require.NoError(t, err)

	n, err := s.CaptureLabel(context.Background(), "A")
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("capture")))
}

func TestSession_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewSession(SessionConfig{Camera: loopingCamera(t), Writer: newMemWriter(), Samples: 3})
	require.NoError(t, err)

	n, err := s.CaptureLabel(ctx, "A")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestSession_CaptureAll(t *testing.T) {
	resume := &recordingResume{}
	w := newMemWriter()
	s, err := NewSession(SessionConfig{Camera: loopingCamera(t), Writer: w, Resume: resume, Samples: 2})
	require.NoError(t, err)

	counts, err := s.CaptureAll(context.Background(), []string{"A", "B", "OK"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "OK": 2}, counts)
	assert.Len(t, resume.prompts, 3, "one start prompt per label")
	assert.Contains(t, resume.prompts[2], `"OK"`)
}

func TestChannelResume(t *testing.T) {
	ch := make(chan struct{}, 1)
	var prompt string
	r := ChannelResume{C: ch, Prompt: func(p string) { prompt = p }}

	ch <- struct{}{}
	require.NoError(t, r.Wait(context.Background(), "go"))
	assert.Equal(t, "go", prompt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx, "again"), context.Canceled)
}

func TestDirWriter(t *testing.T) {
	root := t.TempDir()
	w := DirWriter{Root: root}

	next, err := w.NextIndex("A")
	require.NoError(t, err)
	assert.Zero(t, next)

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	path, err := w.Write("A", 3, &frame)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "A", "A_0003.jpg"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// Foreign files do not affect numbering
	require.NoError(t, os.WriteFile(filepath.Join(root, "A", "notes.txt"), nil, 0o644))

	next, err = w.NextIndex("A")
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}
