package volume

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"micguard/internal/domain"
)

// HelperBackend drives a SoundVolumeView-compatible executable: `/stext <file>`
// exports every endpoint as a text report and `/SetVolume <id> <percent>`
// changes one endpoint.
type HelperBackend struct {
	path         string
	scratchDir   string
	readTimeout  time.Duration
	writeTimeout time.Duration
	settle       time.Duration
	runner       *runner
}

// NewHelperBackend creates a backend for the helper at path. Scratch reports go
// to scratchDir (os.TempDir when empty).
func NewHelperBackend(path, scratchDir string, cfg domain.MonitorConfig) *HelperBackend {
	return &HelperBackend{
		path:         path,
		scratchDir:   scratchDir,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		settle:       cfg.SettleDelay,
		runner:       newRunner(cfg.SettleDelay),
	}
}

func (h *HelperBackend) Name() string {
	return "helper"
}

// export runs the helper into a fresh scratch file and parses it. The scratch
// file is removed on every path, including timeout and panic.
func (h *HelperBackend) export(ctx context.Context) (report, error) {
	scratch := scratchPath(h.scratchDir, "report")
	defer removeScratch(scratch, h.settle)

	if _, err := h.runner.run(ctx, helperCall{
		name:    h.path,
		args:    []string{"/stext", scratch},
		timeout: h.readTimeout,
	}); err != nil {
		return report{}, err
	}

	f, err := os.Open(scratch)
	if err != nil {
		return report{}, fmt.Errorf("open helper report: %w", err)
	}
	defer f.Close()
	return parseReport(f)
}

// ReadVolume exports the report and extracts the device's percentage.
func (h *HelperBackend) ReadVolume(ctx context.Context, device domain.DeviceHandle) (domain.Volume, error) {
	rep, err := h.export(ctx)
	if err != nil {
		return domain.VolumeUnknown, fmt.Errorf("%w: %w", domain.ErrVolumeUnknown, err)
	}
	v, ok := rep.volumeFor(device.ID)
	if !ok {
		return domain.VolumeUnknown, fmt.Errorf("%w: no volume for %q in helper report", domain.ErrVolumeUnknown, device.ID)
	}
	return v, nil
}

// SetVolume sets the device to percent.
func (h *HelperBackend) SetVolume(ctx context.Context, device domain.DeviceHandle, percent int) error {
	if percent < 1 || percent > 100 {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, domain.ErrInvalidVolume)
	}
	if _, err := h.runner.run(ctx, helperCall{
		name:    h.path,
		args:    []string{"/SetVolume", device.ID, strconv.Itoa(percent)},
		timeout: h.writeTimeout,
	}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, err)
	}
	return nil
}

// Devices lists hardware endpoints from the helper report in export order.
func (h *HelperBackend) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	rep, err := h.export(ctx)
	if err != nil {
		return nil, err
	}
	return rep.devices(), nil
}
