package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// SampleWriter persists captured frames.
type SampleWriter interface {
	// NextIndex returns the first unused sample index for label.
	NextIndex(label string) (int, error)
	// Write stores frame as sample index of label and returns its path.
	Write(label string, index int, frame *gocv.Mat) (string, error)
}

// DirWriter writes samples as <root>/<label>/<label>_NNNN.jpg.
type DirWriter struct {
	Root string
}

// SampleName returns the file name of a sample.
func SampleName(label string, index int) string {
	return fmt.Sprintf("%s_%04d.jpg", label, index)
}

// NextIndex scans the label directory for existing samples so new captures
// never overwrite them.
func (w DirWriter) NextIndex(label string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(w.Root, label))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read label directory: %w", err)
	}

	next := 0
	prefix := label + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), filepath.Ext(name)))
		if err != nil {
			continue
		}
		next = max(next, n+1)
	}
	return next, nil
}

// Write implements SampleWriter.
func (w DirWriter) Write(label string, index int, frame *gocv.Mat) (string, error) {
	dir := filepath.Join(w.Root, label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create label directory: %w", err)
	}

	path := filepath.Join(dir, SampleName(label, index))
	if ok := gocv.IMWrite(path, *frame); !ok {
		return "", fmt.Errorf("write sample %s", path)
	}
	return path, nil
}
