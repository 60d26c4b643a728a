// Package config loads and saves the keytrace TOML configuration.
// A missing file is created with defaults so there is always something
// to edit.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stlalpha/keytrace/internal/device"
	"github.com/stlalpha/keytrace/internal/table"
)

// Duration wraps time.Duration so TOML reads and writes it as a
// duration string ("500ms") instead of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full keytrace configuration.
type Config struct {
	Capture CaptureConfig `toml:"capture"`
	Table   TableConfig   `toml:"table"`
	Devices DevicesConfig `toml:"devices"`
	Web     WebConfig     `toml:"web"`
	Log     LogConfig     `toml:"log"`
}

// CaptureConfig controls table lifecycle and layout resolution.
type CaptureConfig struct {
	// Manual starts the session with operator-controlled table
	// termination.
	Manual bool `toml:"manual"`
	// IdleTimeout finalizes a table after this much quiet, when no
	// device reports key releases.
	IdleTimeout Duration `toml:"idle_timeout"`
	// Layout names the keyboard layout used to resolve device key
	// codes ("us", "us-intl").
	Layout string `toml:"layout"`
}

// TableConfig adjusts the emitted columns.
type TableConfig struct {
	ExtendedWidths  bool     `toml:"extended_widths"`
	ShowScancode    bool     `toml:"show_scancode"`
	DisabledColumns []string `toml:"disabled_columns"`
}

// DevicesConfig controls raw input device capture.
type DevicesConfig struct {
	Enabled bool `toml:"enabled"`
	// Include and Exclude filter devices by name substring.
	Include      []string `toml:"include"`
	Exclude      []string `toml:"exclude"`
	PollInterval Duration `toml:"poll_interval"`
}

// WebConfig controls the HTML live view.
type WebConfig struct {
	Enabled     bool   `toml:"enabled"`
	Addr        string `toml:"addr"`
	OpenBrowser bool   `toml:"open_browser"`
}

// LogConfig controls log output.
type LogConfig struct {
	// File receives a copy of the log; in TUI modes it receives all of
	// it, keeping the display clean. Empty means no file.
	File  string `toml:"file"`
	Debug bool   `toml:"debug"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			IdleTimeout: Duration{500 * time.Millisecond},
			Layout:      "us",
		},
		Devices: DevicesConfig{
			Enabled:      true,
			PollInterval: Duration{5 * time.Second},
		},
		Web: WebConfig{
			Addr:        "127.0.0.1:7788",
			OpenBrowser: true,
		},
	}
}

// Dir returns the keytrace configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config dir: %w", err)
	}
	return filepath.Join(base, "keytrace"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HostKeyPath returns where the SSH host key lives.
func HostKeyPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "host_key"), nil
}

// Load reads the config file, writing and returning defaults when it
// does not exist yet.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as TOML, creating the directory as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// TableOptions maps the table section onto column options.
func (c *Config) TableOptions() table.Options {
	return table.Options{
		ExtendedWidths: c.Table.ExtendedWidths,
		ShowScancode:   c.Table.ShowScancode,
		Disabled:       c.Table.DisabledColumns,
	}
}

// DeviceOptions maps the devices section onto monitor options.
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		Filter: device.Filter{
			Include: c.Devices.Include,
			Exclude: c.Devices.Exclude,
		},
		PollInterval: c.Devices.PollInterval.Duration,
	}
}
