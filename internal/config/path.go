package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir picks the mission library location for the host.
// Resolution order: XDG data home, a system data dir, the platform's
// per-user application directory, then a dotdir under $HOME. Without a
// home directory it degrades to a relative path so the station can
// still start from a USB stick in the field.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./missions"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ground-station")
	}
	candidates := []struct{ probe, dir string }{
		{"/var/lib", "/var/lib/ground-station"},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "GroundStation")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "GroundStation")},
	}
	for _, c := range candidates {
		if isDir(c.probe) {
			return c.dir
		}
	}
	return filepath.Join(home, ".ground-station")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
