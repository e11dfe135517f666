// Package config loads fridgewatch settings: defaults, then a YAML file,
// then .env and FRIDGE_* environment overrides.
package config

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/shm"
	"github.com/anusha9573/SmartRefridgerator/internal/store"
	"github.com/anusha9573/SmartRefridgerator/internal/webmonitor"
	"github.com/anusha9573/SmartRefridgerator/internal/webrtc"
)

// Frame sources.
const (
	SourceCamera = "camera"
	SourceReplay = "replay"
	SourceSHM    = "shm"
)

// Environment overrides.
const (
	EnvStoreURI     = "FRIDGE_STORE_URI"
	EnvCameraDevice = "FRIDGE_CAMERA_DEVICE"
	EnvLogLevel     = "FRIDGE_LOG_LEVEL"
	EnvSource       = "FRIDGE_SOURCE"
)

// Config is the complete process configuration.
type Config struct {
	Source   string         `yaml:"source"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Replay   ReplayConfig   `yaml:"replay"`
	SHM      shm.Config     `yaml:"shm"`
	Store    StoreConfig    `yaml:"store"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Journal  JournalConfig  `yaml:"journal"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Log      LogConfig      `yaml:"log"`
}

// CameraConfig selects the capture device. A number is a device index,
// anything else a file or stream URL.
type CameraConfig struct {
	Device string `yaml:"device"`
}

// DetectorConfig configures the ONNX detector used with the camera source.
type DetectorConfig struct {
	Model          string   `yaml:"model"`
	Names          string   `yaml:"names"`
	InputSize      int      `yaml:"input_size"`
	ScoreThreshold float32  `yaml:"score_threshold"`
	NMSThreshold   float32  `yaml:"nms_threshold"`
	MinArea        float64  `yaml:"min_area"` // boxes smaller than this many pixels are dropped
	Labels         []string `yaml:"labels"`   // when set, only these labels are tracked
}

// ReplayConfig configures the recorded-detections source.
type ReplayConfig struct {
	Path        string        `yaml:"path"`
	Pace        time.Duration `yaml:"pace"`
	BlankFrames bool          `yaml:"blank_frames"`
}

// StoreConfig is the ledger connection plus its retry policy.
type StoreConfig struct {
	store.Config `yaml:",inline"`
	Retry        inventory.RetryPolicy `yaml:"retry"`
}

// PipelineConfig tunes the frame loop.
type PipelineConfig struct {
	LineRatio   float64 `yaml:"line_ratio"`
	Headless    bool    `yaml:"headless"`
	WindowTitle string  `yaml:"window_title"`
}

// MonitorConfig enables the HTTP monitor.
type MonitorConfig struct {
	Enabled           bool `yaml:"enabled"`
	webmonitor.Config `yaml:",inline"`
}

// MetricsConfig sets the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// JournalConfig sets where event journals are written.
type JournalConfig struct {
	Path      string `yaml:"path"`
	AutoStart bool   `yaml:"auto_start"`
}

// WebRTCConfig enables the event data channel.
type WebRTCConfig struct {
	Enabled       bool `yaml:"enabled"`
	webrtc.Config `yaml:",inline"`
}

// LogConfig sets the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the stock configuration: webcam 0, best.onnx, a local
// MongoDB and the monitor on :8080.
func Default() Config {
	return Config{
		Source: SourceCamera,
		Camera: CameraConfig{Device: "0"},
		Detector: DetectorConfig{
			Model:          "best.onnx",
			Names:          "best.names",
			InputSize:      640,
			ScoreThreshold: 0.25,
			NMSThreshold:   0.45,
		},
		SHM:   shm.DefaultConfig(),
		Store: StoreConfig{Config: store.DefaultConfig(), Retry: inventory.DefaultRetryPolicy()},
		Pipeline: PipelineConfig{
			LineRatio:   0.5,
			WindowTitle: "Fridge",
		},
		Monitor: MonitorConfig{Enabled: true, Config: webmonitor.DefaultConfig()},
		Metrics: MetricsConfig{Addr: ":9090"},
		Journal: JournalConfig{Path: "./journal"},
		WebRTC:  WebRTCConfig{Config: webrtc.DefaultConfig()},
		Log:     LogConfig{Level: "info", Color: true},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional), the
// .env file at envFile (optional, missing is fine) and the process
// environment, then validates it.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := cfg.Overlay(data); err != nil {
			return cfg, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, errors.Wrapf(err, "load %s", envFile)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)

	return cfg, cfg.Validate()
}

// Overlay decodes YAML data onto c. Keys absent from data keep their
// current values; unknown keys are an error.
func (c *Config) Overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

// ApplyEnv applies FRIDGE_* overrides found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStoreURI); ok && v != "" {
		c.Store.URI = v
		logger.Debug("Config", "Store URI from %s: %s", EnvStoreURI, store.Redact(v))
	}
	if v, ok := lookup(EnvCameraDevice); ok && v != "" {
		c.Camera.Device = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvSource); ok && v != "" {
		c.Source = v
	}
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	switch c.Source {
	case SourceCamera:
		if c.Camera.Device == "" {
			return errors.New("config: camera.device is required for the camera source")
		}
		if c.Detector.Model == "" || c.Detector.Names == "" {
			return errors.New("config: detector.model and detector.names are required for the camera source")
		}
	case SourceReplay:
		if c.Replay.Path == "" {
			return errors.New("config: replay.path is required for the replay source")
		}
	case SourceSHM:
	default:
		return errors.Errorf("config: unknown source %q", c.Source)
	}

	if c.Store.URI == "" {
		return errors.New("config: store.uri is required")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: log.level")
	}
	if c.Pipeline.LineRatio <= 0 || c.Pipeline.LineRatio >= 1 {
		return errors.Errorf("config: pipeline.line_ratio %v must be in (0, 1)", c.Pipeline.LineRatio)
	}
	if c.Detector.ScoreThreshold < 0 || c.Detector.ScoreThreshold > 1 {
		return errors.Errorf("config: detector.score_threshold %v must be in [0, 1]", c.Detector.ScoreThreshold)
	}
	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		return errors.Errorf("config: detector.nms_threshold %v must be in [0, 1]", c.Detector.NMSThreshold)
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return errors.New("config: monitor.addr is required when the monitor is enabled")
	}
	if c.WebRTC.Enabled && !c.Monitor.Enabled {
		return errors.New("config: webrtc needs the monitor for offer signaling")
	}
	if c.Journal.AutoStart && c.Journal.Path == "" {
		return errors.New("config: journal.path is required for auto_start")
	}
	return nil
}
