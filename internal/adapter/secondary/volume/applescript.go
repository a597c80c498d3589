package volume

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"micguard/internal/domain"
)

// DefaultInputID is the only device the AppleScript backend knows about.
const DefaultInputID = "default-input"

// AppleScriptBackend controls the macOS default input through osascript.
// AppleScript only addresses the system default input, so every handle maps to it.
type AppleScriptBackend struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	runner       *runner
}

// NewAppleScriptBackend creates a new AppleScript volume backend.
func NewAppleScriptBackend(cfg domain.MonitorConfig) *AppleScriptBackend {
	return &AppleScriptBackend{
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		runner:       newRunner(cfg.SettleDelay),
	}
}

func (a *AppleScriptBackend) Name() string {
	return "osascript"
}

func (a *AppleScriptBackend) script(ctx context.Context, timeout time.Duration, src string) (string, error) {
	out, err := a.runner.run(ctx, helperCall{name: "osascript", args: []string{"-e", src}, timeout: timeout})
	return strings.TrimSpace(string(out)), err
}

// Devices reports the default input as the single capture device.
func (a *AppleScriptBackend) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return []domain.DeviceInfo{{
		ID:             DefaultInputID,
		Name:           "Default Input",
		Description:    "macOS default input device",
		Direction:      domain.DirectionCapture,
		DefaultCapture: true,
	}}, nil
}

// ReadVolume reads the input volume; "missing value" means no input device.
func (a *AppleScriptBackend) ReadVolume(ctx context.Context, _ domain.DeviceHandle) (domain.Volume, error) {
	out, err := a.script(ctx, a.readTimeout, "input volume of (get volume settings)")
	if err != nil {
		return domain.VolumeUnknown, fmt.Errorf("%w: %w", domain.ErrVolumeUnknown, err)
	}
	n, err := strconv.Atoi(out)
	if err != nil || n < 0 || n > 100 {
		return domain.VolumeUnknown, fmt.Errorf("%w: osascript returned %q", domain.ErrVolumeUnknown, out)
	}
	return domain.Volume(n), nil
}

// SetVolume sets the microphone input volume using osascript.
func (a *AppleScriptBackend) SetVolume(ctx context.Context, _ domain.DeviceHandle, percent int) error {
	if percent < 1 || percent > 100 {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, domain.ErrInvalidVolume)
	}
	if _, err := a.script(ctx, a.writeTimeout, fmt.Sprintf("set volume input volume %d", percent)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, err)
	}
	return nil
}
