package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the locations used when neither flags nor settings name one.
type Paths struct {
	Settings string // settings file, BK_SETTINGS_PATH or ~/.config/bk.toml
	Base     string // data directory, BK_HOME or ~/.local/share/bk
}

// DefaultPaths resolves Paths from the environment. The home directory is
// only consulted for values the environment leaves unset.
func DefaultPaths() (Paths, error) {
	settings, err := fromEnv("BK_SETTINGS_PATH", ".config", "bk.toml")
	if err != nil {
		return Paths{}, err
	}
	base, err := fromEnv("BK_HOME", ".local", "share", "bk")
	if err != nil {
		return Paths{}, err
	}
	return Paths{Settings: settings, Base: base}, nil
}

// SettingsFile returns flag when it is set, otherwise the default settings file.
func (p Paths) SettingsFile(flag string) string {
	if flag != "" {
		return flag
	}
	return p.Settings
}

func fromEnv(key string, underHome ...string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%s is unset and the home directory is unknown: %w", key, err)
	}
	return filepath.Join(append([]string{home}, underHome...)...), nil
}
