package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stlalpha/keytrace/internal/table"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.IdleTimeout.Duration != 500*time.Millisecond {
		t.Errorf("idle timeout default: %v", cfg.Capture.IdleTimeout)
	}
	if cfg.Capture.Layout != "us" || !cfg.Devices.Enabled {
		t.Errorf("defaults: %+v", cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if !strings.Contains(string(data), `idle_timeout = "500ms"`) {
		t.Errorf("durations should serialize as strings:\n%s", data)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	want := Default()
	want.Capture.Manual = true
	want.Capture.IdleTimeout = Duration{2 * time.Second}
	want.Table.ShowScancode = true
	want.Table.DisabledColumns = []string{"Location"}
	want.Devices.Exclude = []string{"webcam"}
	want.Web.Addr = "127.0.0.1:9999"
	want.Log.Debug = true

	if err := Save(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Capture.Manual || got.Capture.IdleTimeout.Duration != 2*time.Second {
		t.Errorf("capture section: %+v", got.Capture)
	}
	if !got.Table.ShowScancode || len(got.Table.DisabledColumns) != 1 {
		t.Errorf("table section: %+v", got.Table)
	}
	if len(got.Devices.Exclude) != 1 || got.Devices.Exclude[0] != "webcam" {
		t.Errorf("devices section: %+v", got.Devices)
	}
	if got.Web.Addr != "127.0.0.1:9999" || !got.Log.Debug {
		t.Errorf("web/log sections: %+v / %+v", got.Web, got.Log)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture]\nidle_timeout = \"soon\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestTableOptions(t *testing.T) {
	cfg := Default()
	cfg.Table.DisabledColumns = []string{table.ColLocation}
	cfg.Table.ShowScancode = true

	tbl := table.Build(cfg.TableOptions())
	header := tbl.HeaderLine()
	if strings.Contains(header, table.ColLocation) {
		t.Error("disabled column still rendered")
	}
	if !strings.Contains(header, table.ColScancode) {
		t.Error("scancode column missing")
	}
}
