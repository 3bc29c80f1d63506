package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RocketName == "" {
		t.Fatalf("default rocket name should not be empty")
	}
	if cfg.HTTPAddr != ":33845" {
		t.Fatalf("default http addr = %q", cfg.HTTPAddr)
	}
	if cfg.HistoryDepth != 512 {
		t.Fatalf("default history depth = %d", cfg.HistoryDepth)
	}
	if cfg.ReorderWindowMS != 5000 {
		t.Fatalf("default reorder window = %d", cfg.ReorderWindowMS)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ground-station.json")
	data := []byte(`{
		"rocketName": "Hyperion",
		"httpAddr": ":9000",
		"serialDevice": "/dev/ttyUSB0",
		"historyDepth": 128,
		"alerts": [{"name": "apogee", "expr": "altitude_ft > 10000.0"}]
	}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RocketName != "Hyperion" {
		t.Fatalf("rocket name = %q", cfg.RocketName)
	}
	if cfg.HTTPAddr != ":9000" || cfg.SerialDevice != "/dev/ttyUSB0" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.HistoryDepth != 128 {
		t.Fatalf("history depth = %d", cfg.HistoryDepth)
	}
	// Unset fields keep defaults.
	if cfg.ReorderWindowMS != 5000 {
		t.Fatalf("reorder window = %d", cfg.ReorderWindowMS)
	}
	if len(cfg.Alerts) != 1 || cfg.Alerts[0].Name != "apogee" {
		t.Fatalf("alerts = %+v", cfg.Alerts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("GS_ROCKET_NAME", "Intrepid")
	os.Setenv("GS_HTTP_ADDR", ":8080")
	os.Setenv("GS_HISTORY_DEPTH", "64")
	t.Cleanup(func() {
		os.Unsetenv("GS_ROCKET_NAME")
		os.Unsetenv("GS_HTTP_ADDR")
		os.Unsetenv("GS_HISTORY_DEPTH")
	})
	FromEnv(&cfg)
	if cfg.RocketName != "Intrepid" {
		t.Fatalf("env override rocket name: %q", cfg.RocketName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("env override addr: %q", cfg.HTTPAddr)
	}
	if cfg.HistoryDepth != 64 {
		t.Fatalf("env override history depth: %d", cfg.HistoryDepth)
	}
}
