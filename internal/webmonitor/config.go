package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string        `yaml:"addr"`
	StatusInterval time.Duration `yaml:"status_interval"`
	HistorySize    int           `yaml:"history_size"`
	JPEGQuality    int           `yaml:"jpeg_quality"`
	OverlayHeader  bool          `yaml:"overlay_header"`
	LedgerTimeout  time.Duration `yaml:"ledger_timeout"`
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 2 * time.Second,
		HistorySize:    8,
		JPEGQuality:    75,
		OverlayHeader:  true,
		LedgerTimeout:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatusInterval <= 0 {
		c.StatusInterval = d.StatusInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.LedgerTimeout <= 0 {
		c.LedgerTimeout = d.LedgerTimeout
	}
	return c
}
