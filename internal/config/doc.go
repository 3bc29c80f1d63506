// Package config provides loading and environment overlay for ground
// station configuration. It exposes a Default() baseline, a JSON file
// loader, and GS_* environment variable overlays.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/ground-station.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
