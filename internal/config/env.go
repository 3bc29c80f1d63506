package config

import (
	"os"
	"strconv"
)

// FromEnv overlays GS_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("GS_ROCKET_NAME"); v != "" {
		cfg.RocketName = v
	}
	if v := os.Getenv("GS_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("GS_SERIAL_DEVICE"); v != "" {
		cfg.SerialDevice = v
	}
	if v := os.Getenv("GS_MISSION_IMAGE"); v != "" {
		cfg.MissionImage = v
	}
	if v := os.Getenv("GS_MISSIONS_DIR"); v != "" {
		cfg.MissionsDir = v
	}
	if v := os.Getenv("GS_HISTORY_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryDepth = n
		}
	}
	if v := os.Getenv("GS_REORDER_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.ReorderWindowMS = uint32(n)
		}
	}
	if v := os.Getenv("GS_SUBSCRIBER_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SubscriberBuffer = n
		}
	}
}
