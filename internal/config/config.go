// Package config loads the fleetwatch runtime configuration. The schema
// matches the /api/config endpoint so the same JSON serves both startup
// configuration and runtime inspection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file, the single
// source of truth for default playback values.
const DefaultConfigPath = "config/fleetwatch.defaults.json"

// Config is the root configuration. All fields are optional; omitted fields
// fall back to the defaults in the Get* accessors, so partial configs are
// safe.
type Config struct {
	// Backend params
	BackendURL     *string `json:"backend_url,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "10s"

	// Playback params
	MaxPointsPerTrack *int      `json:"max_points_per_track,omitempty"`
	TickInterval      *string   `json:"tick_interval,omitempty"` // duration string like "200ms"
	SpeedPresets      []float64 `json:"speed_presets,omitempty"` // virtual seconds per tick
	HistoryWindow     *string   `json:"history_window,omitempty"`

	// Live feed params
	LivePollInterval *string `json:"live_poll_interval,omitempty"`
}

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and stay under the max file size.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching from the current directory up towards the repo root. Panics if
// the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.MaxPointsPerTrack != nil && *c.MaxPointsPerTrack < 1 {
		return fmt.Errorf("max_points_per_track must be positive, got %d", *c.MaxPointsPerTrack)
	}

	for _, preset := range c.SpeedPresets {
		if preset <= 0 {
			return fmt.Errorf("speed presets must be positive, got %v", preset)
		}
	}

	durations := map[string]*string{
		"tick_interval":      c.TickInterval,
		"request_timeout":    c.RequestTimeout,
		"history_window":     c.HistoryWindow,
		"live_poll_interval": c.LivePollInterval,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

// GetBackendURL returns the backend base URL or the default.
func (c *Config) GetBackendURL() string {
	if c.BackendURL == nil || *c.BackendURL == "" {
		return "http://localhost:8800"
	}
	return *c.BackendURL
}

// GetRequestTimeout parses and returns the backend request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	return c.duration(c.RequestTimeout, 10*time.Second)
}

// GetMaxPointsPerTrack returns the downsample budget per loaded track.
func (c *Config) GetMaxPointsPerTrack() int {
	if c.MaxPointsPerTrack == nil {
		return 8000 // default
	}
	return *c.MaxPointsPerTrack
}

// GetTickInterval returns the wall-clock playback tick cadence.
func (c *Config) GetTickInterval() time.Duration {
	return c.duration(c.TickInterval, 200*time.Millisecond)
}

// GetSpeedPresets returns the offered playback speed factors.
func (c *Config) GetSpeedPresets() []float64 {
	if len(c.SpeedPresets) == 0 {
		return []float64{2, 10, 30, 60}
	}
	return c.SpeedPresets
}

// GetHistoryWindow returns how far back a default history load reaches.
func (c *Config) GetHistoryWindow() time.Duration {
	return c.duration(c.HistoryWindow, 24*time.Hour)
}

// GetLivePollInterval returns the cadence of the live position poller.
func (c *Config) GetLivePollInterval() time.Duration {
	return c.duration(c.LivePollInterval, 5*time.Second)
}

func (c *Config) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
