package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDir returns ~/.config/micguard (or a cwd fallback).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "micguard")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".micguard")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

// StatePath joins a state file name onto dir.
func StatePath(dir, name string) string {
	return filepath.Join(dir, name)
}

// DefaultHelperPath is where the volume helper executable is expected.
func DefaultHelperPath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(DefaultDir(), "SoundVolumeView.exe")
	}
	return filepath.Join(DefaultDir(), "soundvolumeview")
}
