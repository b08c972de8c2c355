package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tailscale/hujson"
)

// File is the user configuration file (HuJSON: JSON with comments and
// trailing commas). Everything in it has a sensible default; a missing or
// malformed file degrades to DefaultFile rather than failing startup.
type File struct {
	Bar     BarConfig         `json:"bar"`
	Theme   ThemeConfig       `json:"theme"`
	Hotkeys map[string]string `json:"hotkeys"`

	// Step sizes, in percentage points, applied when an up/down command
	// omits an explicit amount.
	VolumeStep     float64 `json:"volume_step"`
	BrightnessStep float64 `json:"brightness_step"`
}

// BarConfig carries the options the bar renderer consumes. The daemon core
// only loads and validates them.
type BarConfig struct {
	Height         int    `json:"height"`
	Position       string `json:"position"`
	ShowWorkspaces bool   `json:"show_workspaces"`
	ShowClock      bool   `json:"show_clock"`
	ShowSystemInfo bool   `json:"show_system_info"`
}

// ThemeConfig carries the color options the bar renderer consumes.
type ThemeConfig struct {
	Background string `json:"background"`
	Foreground string `json:"foreground"`
	Accent     string `json:"accent"`
	Warning    string `json:"warning"`
	Critical   string `json:"critical"`
}

// DefaultFile returns the configuration used when no file is present.
func DefaultFile() *File {
	return &File{
		Bar: BarConfig{
			Height:         32,
			Position:       "top",
			ShowWorkspaces: true,
			ShowClock:      true,
			ShowSystemInfo: true,
		},
		Theme: ThemeConfig{
			Background: "#1e1e2e",
			Foreground: "#cdd6f4",
			Accent:     "#89b4fa",
			Warning:    "#f9e2af",
			Critical:   "#f38ba8",
		},
		Hotkeys:        map[string]string{},
		VolumeStep:     5.0,
		BrightnessStep: 5.0,
	}
}

// LoadFile reads and validates the HuJSON configuration file at path. An
// empty path or a missing file yields defaults silently; a malformed file
// yields defaults with a warning, never an error.
func LoadFile(logger *slog.Logger, path string) *File {
	if path == "" {
		return DefaultFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read config file, using defaults", "path", path, "error", err)
		}
		return DefaultFile()
	}

	cfg, err := parseFile(data)
	if err != nil {
		logger.Warn("malformed config file, using defaults", "path", path, "error", err)
		return DefaultFile()
	}

	return cfg
}

func parseFile(data []byte) (*File, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to standardize HuJSON: %w", err)
	}

	cfg := DefaultFile()
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Bar.Position != "top" && cfg.Bar.Position != "bottom" {
		return nil, fmt.Errorf("invalid bar position %q, must be 'top' or 'bottom'", cfg.Bar.Position)
	}
	if cfg.Bar.Height < 1 {
		return nil, fmt.Errorf("bar height must be positive, got %d", cfg.Bar.Height)
	}
	if cfg.VolumeStep <= 0 || cfg.VolumeStep > 100 {
		return nil, fmt.Errorf("volume step must be in (0, 100], got %v", cfg.VolumeStep)
	}
	if cfg.BrightnessStep <= 0 || cfg.BrightnessStep > 100 {
		return nil, fmt.Errorf("brightness step must be in (0, 100], got %v", cfg.BrightnessStep)
	}

	return cfg, nil
}
