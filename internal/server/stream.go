package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FrameFeed holds the most recent annotated frame as JPEG. The inference
// loop publishes into it and MJPEG clients read from it, so the camera is
// only ever read by the loop.
type FrameFeed struct {
	mu      sync.RWMutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
}

// NewFrameFeed creates an empty feed.
func NewFrameFeed() *FrameFeed {
	return &FrameFeed{updated: make(chan struct{})}
}

// Publish encodes frame and makes it the latest frame.
func (f *FrameFeed) Publish(frame *gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	f.PublishJPEG(buf.GetBytes())
	return nil
}

// PublishJPEG stores an already encoded frame. The slice is copied.
func (f *FrameFeed) PublishJPEG(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	f.mu.Lock()
	f.jpeg = cp
	f.seq++
	close(f.updated)
	f.updated = make(chan struct{})
	f.mu.Unlock()
}

// Latest returns the latest frame, its sequence number, and a channel that
// is closed when a newer frame arrives.
func (f *FrameFeed) Latest() ([]byte, uint64, <-chan struct{}) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.jpeg, f.seq, f.updated
}

// StreamHandler serves the feed as MJPEG.
type StreamHandler struct {
	feed     *FrameFeed
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler that sends at most one frame
// per interval. A zero interval uses ~15 FPS.
func NewStreamHandler(feed *FrameFeed, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = 66 * time.Millisecond
	}
	return &StreamHandler{feed: feed, interval: interval}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var sent uint64
	for {
		data, seq, updated := h.feed.Latest()
		if seq == sent || data == nil {
			select {
			case <-r.Context().Done():
				return
			case <-updated:
				continue
			}
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
		if _, err := w.Write(data); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		sent = seq

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(h.interval):
		}
	}
}
