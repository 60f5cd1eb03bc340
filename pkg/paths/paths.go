// Package paths resolves per-user locations for slimjob files.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the configuration file looked up in the working
// directory.
const ConfigFileName = "slimjob.yaml"

// ConfigDir returns the config directory for slimjob.
// Order: XDG_CONFIG_HOME/slimjob, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "slimjob")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "slimjob")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "slimjob")
}

// DefaultConfigFile returns the first existing config file among
// ./slimjob.yaml and ConfigDir()/config.yaml, or "" if neither exists.
func DefaultConfigFile() string {
	candidates := []string{
		ConfigFileName,
		filepath.Join(ConfigDir(), "config.yaml"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
