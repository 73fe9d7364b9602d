package config

const (
	defaultRawDir            = "data/raw"
	defaultProcessedDir      = "data/processed"
	defaultDBPath            = "~/.local/share/handsign/handsign.db"
	defaultModelsDir         = "models"
	defaultCaptureWidth      = 640
	defaultCaptureHeight     = 480
	defaultCaptureIntervalMs = 100
	defaultLightingPhases    = 3
	defaultImageSize         = 128
	defaultPadding           = 20
	defaultRegion            = "fixed"
	defaultClassifier        = "service"
	defaultSmoothingWindow   = 5
	defaultServerAddr        = "127.0.0.1:8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
)

var defaultClassifierCommand = []string{"python3", "scripts/classifier_service.py", "models/cnn_hand_sign_model_02.h5"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RawDir:       defaultRawDir,
			ProcessedDir: defaultProcessedDir,
			DBPath:       defaultDBPath,
			ModelsDir:    defaultModelsDir,
		},
		Capture: Capture{
			CameraID:       0,
			Width:          defaultCaptureWidth,
			Height:         defaultCaptureHeight,
			Labels:         []string{"A", "B", "OK"},
			IntervalMs:     defaultCaptureIntervalMs,
			LightingPhases: defaultLightingPhases,
		},
		Preprocess: Preprocess{
			ImageSize:  defaultImageSize,
			Padding:    defaultPadding,
			Extensions: []string{".jpg", ".jpeg", ".png"},
		},
		Inference: Inference{
			Region:            defaultRegion,
			ROI:               ROI{X1: 100, Y1: 100, X2: 300, Y2: 300},
			ImageSize:         defaultImageSize,
			Labels:            []string{"A", "B", "OK"},
			Flip:              true,
			Classifier:        defaultClassifier,
			ClassifierCommand: append([]string(nil), defaultClassifierCommand...),
		},
		Smoothing: Smoothing{
			Window: defaultSmoothingWindow,
		},
		Server: Server{
			Addr: defaultServerAddr,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
