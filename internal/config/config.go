package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/CarletonURocketry/ground-station/internal/alerts"
	"github.com/CarletonURocketry/ground-station/internal/store"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// RocketName labels every published snapshot.
	RocketName string `json:"rocketName"`
	// HTTPAddr is the dashboard listen address.
	HTTPAddr string `json:"httpAddr"`
	// SerialDevice is the radio modem device node; empty runs the server
	// without a live source (mission replay only).
	SerialDevice string `json:"serialDevice"`
	// MissionImage is the SD card image or device node for durable
	// capture; empty disables capture.
	MissionImage string `json:"missionImage"`
	// MissionsDir is the Pebble directory of the mission library.
	MissionsDir string `json:"missionsDir"`
	// HistoryDepth bounds each telemetry quantity's retained samples.
	HistoryDepth int `json:"historyDepth"`
	// ReorderWindowMS is the out-of-order frame tolerance in mission-time
	// milliseconds.
	ReorderWindowMS uint32 `json:"reorderWindowMs"`
	// SubscriberBuffer is the per-subscriber send queue depth.
	SubscriberBuffer int `json:"subscriberBuffer"`
	// Alerts are the threshold rules evaluated on the live stream.
	Alerts []alerts.Rule `json:"alerts"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		RocketName:       "rocket",
		HTTPAddr:         ":33845",
		MissionsDir:      DefaultDataDir(),
		HistoryDepth:     store.DefaultHistoryDepth,
		ReorderWindowMS:  store.DefaultReorderWindow,
		SubscriberBuffer: 16,
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
