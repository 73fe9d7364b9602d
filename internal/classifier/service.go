package classifier

import (
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/sidecar"
)

// ServiceConfig configures a ServiceClassifier.
type ServiceConfig struct {
	// Command runs the model service, e.g. python3 classifier_service.py model.h5.
	Command []string
	// Labels names the model outputs by index. Used when the service reply
	// carries no labels of its own.
	Labels []string
	// ImageSize is the square input size the model expects.
	ImageSize int
	Logger    zerolog.Logger
}

// ServiceClassifier sends JPEG-encoded regions to a model service process
// and reads back one JSON line per region:
//
//	{"probabilities": [0.1, 0.8, 0.1], "labels": ["A", "B", "OK"]}
//	{"error": "model not loaded"}
type ServiceClassifier struct {
	cfg  ServiceConfig
	proc *sidecar.Process
}

// NewServiceClassifier creates a classifier backed by a lazily started
// model service.
func NewServiceClassifier(cfg ServiceConfig) (*ServiceClassifier, error) {
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("classifier: invalid image size %d", cfg.ImageSize)
	}
	proc, err := sidecar.New(sidecar.Config{Command: cfg.Command, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &ServiceClassifier{cfg: cfg, proc: proc}, nil
}

// Classify implements GestureClassifier.
func (c *ServiceClassifier) Classify(region *gocv.Mat) (Distribution, error) {
	if region == nil || region.Empty() {
		return Distribution{}, errors.New("classifier: empty region")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(*region, &resized, image.Pt(c.cfg.ImageSize, c.cfg.ImageSize), 0, 0, gocv.InterpolationLinear)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, resized)
	if err != nil {
		return Distribution{}, fmt.Errorf("encode region: %w", err)
	}
	defer buf.Close()

	line, err := c.proc.Roundtrip(buf.GetBytes())
	if err != nil {
		return Distribution{}, fmt.Errorf("classifier service: %w", err)
	}
	return parseServiceReply(line, c.cfg.Labels)
}

// Close stops the model service.
func (c *ServiceClassifier) Close() error {
	return c.proc.Close()
}

func parseServiceReply(line []byte, labels []string) (Distribution, error) {
	if !gjson.ValidBytes(line) {
		return Distribution{}, fmt.Errorf("classifier service: invalid reply %q", line)
	}

	reply := gjson.ParseBytes(line)
	if msg := reply.Get("error"); msg.Exists() && msg.String() != "" {
		return Distribution{}, fmt.Errorf("classifier service: %s", msg.String())
	}

	probsResult := reply.Get("probabilities")
	if !probsResult.IsArray() {
		return Distribution{}, errors.New("classifier service: reply has no probabilities")
	}

	var probs []float64
	for _, v := range probsResult.Array() {
		probs = append(probs, v.Float())
	}

	if names := reply.Get("labels"); names.IsArray() {
		labels = labels[:0:0]
		for _, v := range names.Array() {
			labels = append(labels, v.String())
		}
	}

	return NewDistribution(labels, probs)
}
