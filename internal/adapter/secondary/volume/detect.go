package volume

import (
	"os/exec"
	"runtime"

	"micguard/internal/domain"
)

// DetectOptions selects and configures a backend.
type DetectOptions struct {
	// Backend is auto, helper, pactl, osascript or memory.
	Backend    string
	HelperPath string
	ScratchDir string
	Config     domain.MonitorConfig

	goos     string
	lookPath func(string) (string, error)
}

// Detect picks a backend by name or, for "auto", by platform capability:
// osascript on macOS, pactl on Linux, and the helper executable otherwise.
// When nothing is usable the helper backend is returned anyway; every call on
// it then fails with domain.ErrBackendUnavailable until the helper appears.
func Detect(opts DetectOptions) domain.AudioSystem {
	goos := opts.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	lookPath := opts.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	has := func(name string) bool {
		_, err := lookPath(name)
		return err == nil
	}

	helper := func() domain.AudioSystem {
		return NewHelperBackend(opts.HelperPath, opts.ScratchDir, opts.Config)
	}

	switch opts.Backend {
	case "helper":
		return helper()
	case "pactl":
		return NewPactlBackend(opts.Config)
	case "osascript":
		return NewAppleScriptBackend(opts.Config)
	case "memory":
		return NewMemoryBackend(DefaultMemoryDevices()...)
	}

	if opts.HelperPath != "" && has(opts.HelperPath) {
		return helper()
	}
	switch goos {
	case "darwin":
		if has("osascript") {
			return NewAppleScriptBackend(opts.Config)
		}
	case "linux", "freebsd", "openbsd", "netbsd":
		if has("pactl") {
			return NewPactlBackend(opts.Config)
		}
	}
	return helper()
}
