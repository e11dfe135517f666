package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Store.URI != "mongodb://localhost:27017" || cfg.Store.Database != "fridge" || cfg.Store.Collection != "items" {
		t.Fatalf("store defaults = %+v", cfg.Store.Config)
	}
	if cfg.Pipeline.LineRatio != 0.5 {
		t.Fatalf("line ratio = %v", cfg.Pipeline.LineRatio)
	}
}

func TestOverlayKeepsUnsetValues(t *testing.T) {
	cfg := Default()
	err := cfg.Overlay([]byte(`
source: replay
replay:
  path: run.jsonl
  pace: 40ms
store:
  uri: postgres://fridge@db/fridge
  retry:
    max_retries: 5
monitor:
  addr: ":9000"
  status_interval: 500ms
webrtc:
  enabled: true
  max_clients: 3
`))
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if cfg.Source != SourceReplay || cfg.Replay.Path != "run.jsonl" || cfg.Replay.Pace != 40*time.Millisecond {
		t.Fatalf("replay = %q %+v", cfg.Source, cfg.Replay)
	}
	if cfg.Store.URI != "postgres://fridge@db/fridge" || cfg.Store.Collection != "items" {
		t.Fatalf("store = %+v", cfg.Store.Config)
	}
	if cfg.Store.Retry.MaxRetries != 5 || cfg.Store.Retry.MaxInterval != time.Second {
		t.Fatalf("retry = %+v", cfg.Store.Retry)
	}
	if cfg.Monitor.Addr != ":9000" || cfg.Monitor.StatusInterval != 500*time.Millisecond || cfg.Monitor.HistorySize != 8 {
		t.Fatalf("monitor = %+v", cfg.Monitor)
	}
	if !cfg.WebRTC.Enabled || cfg.WebRTC.MaxClients != 3 || len(cfg.WebRTC.STUNServers) != 1 {
		t.Fatalf("webrtc = %+v", cfg.WebRTC)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOverlayRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	if err := cfg.Overlay([]byte("stroe:\n  uri: x\n")); err == nil {
		t.Fatalf("typo accepted")
	}
	if err := cfg.Overlay(nil); err != nil {
		t.Fatalf("empty document: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvStoreURI:     "memory://",
		EnvCameraDevice: "/dev/video2",
		EnvLogLevel:     "debug",
		EnvSource:       "",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Store.URI != "memory://" || cfg.Camera.Device != "/dev/video2" || cfg.Log.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Source != SourceCamera {
		t.Fatalf("empty FRIDGE_SOURCE changed source to %q", cfg.Source)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown source":    func(c *Config) { c.Source = "usb" },
		"replay no path":    func(c *Config) { c.Source = SourceReplay },
		"no model":          func(c *Config) { c.Detector.Model = "" },
		"empty store uri":   func(c *Config) { c.Store.URI = "" },
		"bad log level":     func(c *Config) { c.Log.Level = "loud" },
		"line ratio 0":      func(c *Config) { c.Pipeline.LineRatio = 0 },
		"line ratio 1":      func(c *Config) { c.Pipeline.LineRatio = 1 },
		"score > 1":         func(c *Config) { c.Detector.ScoreThreshold = 1.5 },
		"webrtc no monitor": func(c *Config) { c.WebRTC.Enabled = true; c.Monitor.Enabled = false },
		"autostart no path": func(c *Config) { c.Journal.AutoStart = true; c.Journal.Path = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted %+v", name, cfg)
		}
	}
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fridge.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n  color: false\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte(EnvStoreURI+"=memory://\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv(EnvStoreURI, "")
	os.Unsetenv(EnvStoreURI)
	t.Setenv(EnvCameraDevice, "3")

	cfg, err := Load(path, envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Color {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Store.URI != "memory://" || cfg.Camera.Device != "3" {
		t.Fatalf("store=%q camera=%q", cfg.Store.URI, cfg.Camera.Device)
	}
}

func TestLoadMissingDotEnvIsFine(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != SourceCamera {
		t.Fatalf("source = %q", cfg.Source)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("pipeline: [1, 2"), 0o644)
	if _, err := Load(path, ""); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v", err)
	}
}
