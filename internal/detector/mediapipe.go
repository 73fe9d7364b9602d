package detector

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/sidecar"
)

const mediaPipeScript = "mediapipe_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
type MediaPipeDetector struct {
	config Config
	proc   *sidecar.Process
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config, log zerolog.Logger) (*MediaPipeDetector, error) {
	command := config.Command
	if len(command) == 0 {
		scriptPath := sidecar.FindScript(mediaPipeScript)
		if scriptPath == "" {
			return nil, fmt.Errorf("%s not found", mediaPipeScript)
		}
		command = []string{
			sidecar.FindPython(), scriptPath,
			"--max-hands", strconv.Itoa(max(config.MaxHands, 1)),
			"--min-confidence", strconv.FormatFloat(config.MinConfidence, 'f', -1, 64),
		}
	}

	proc, err := sidecar.New(sidecar.Config{
		Command:     command,
		IdleTimeout: config.IdleTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	return &MediaPipeDetector{config: config, proc: proc}, nil
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	line, err := d.proc.Roundtrip(buf.GetBytes())
	if err != nil {
		return nil, err
	}

	return parseHands(line)
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	return d.proc.Close()
}

func parseHands(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe: %s", response.Error)
	}

	// Convert to HandLandmarks
	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}
	return result, nil
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
