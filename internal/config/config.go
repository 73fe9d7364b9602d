// Package config loads and validates the handsign TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains dataset and database locations.
type Paths struct {
	RawDir       string `toml:"raw_dir"`
	ProcessedDir string `toml:"processed_dir"`
	DBPath       string `toml:"db_path"`
	ModelsDir    string `toml:"models_dir"`
}

// Capture contains settings for raw sample collection.
type Capture struct {
	CameraID        int      `toml:"camera_id"`
	Width           int      `toml:"width"`
	Height          int      `toml:"height"`
	Labels          []string `toml:"labels"`
	IntervalMs      int      `toml:"interval_ms"`
	LightingPhases  int      `toml:"lighting_phases"`
	MotionThreshold float64  `toml:"motion_threshold"`
}

// Preprocess contains settings for hand cropping.
type Preprocess struct {
	ImageSize  int      `toml:"image_size"`
	Padding    int      `toml:"padding"`
	Extensions []string `toml:"extensions"`
}

// ROI is a fixed region of interest in frame pixels.
type ROI struct {
	X1 int `toml:"x1"`
	Y1 int `toml:"y1"`
	X2 int `toml:"x2"`
	Y2 int `toml:"y2"`
}

// Inference contains settings for live classification.
type Inference struct {
	// Region selects how the classified region is found: "fixed" uses ROI,
	// "landmarks" uses the hand landmark detector.
	Region            string   `toml:"region"`
	ROI               ROI      `toml:"roi"`
	ImageSize         int      `toml:"image_size"`
	Labels            []string `toml:"labels"`
	Flip              bool     `toml:"flip"`
	Classifier        string   `toml:"classifier"`
	ClassifierCommand []string `toml:"classifier_command"`
}

// Smoothing contains settings for the display label vote.
type Smoothing struct {
	Window int `toml:"window"`
}

// Server contains HTTP settings.
type Server struct {
	Addr      string `toml:"addr"`
	StaticDir string `toml:"static_dir"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for handsign.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Capture    Capture    `toml:"capture"`
	Preprocess Preprocess `toml:"preprocess"`
	Inference  Inference  `toml:"inference"`
	Smoothing  Smoothing  `toml:"smoothing"`
	Server     Server     `toml:"server"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/handsign/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error: defaults are used and exists is false.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}

	return &c, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("handsign.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the dataset directories and the database parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.RawDir, c.Paths.ProcessedDir, filepath.Dir(c.Paths.DBPath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath applies the configuration path rules (~ expansion, absolute).
func ExpandPath(p string) (string, error) {
	return expandPath(p)
}

func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
