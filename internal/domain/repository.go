package domain

import "context"

// VolumeBackend is a secondary port that reads and writes a capture device's level.
// Implementations never retry internally; the monitor owns retry cadence.
type VolumeBackend interface {
	Name() string
	// ReadVolume returns the level, or VolumeUnknown with a non-nil error.
	ReadVolume(ctx context.Context, device DeviceHandle) (Volume, error)
	SetVolume(ctx context.Context, device DeviceHandle, percent int) error
}

// DeviceCatalog enumerates audio devices in platform order.
type DeviceCatalog interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
}

// DeviceClassStore is the secondary, registry-style device search used when the
// catalog has no match for an explicit id.
type DeviceClassStore interface {
	Search(ctx context.Context, idSubstring string) ([]DeviceInfo, error)
}

// AudioSystem is a backend that can also enumerate its devices.
type AudioSystem interface {
	VolumeBackend
	DeviceCatalog
}

// CycleObserver receives a report after every monitor cycle.
type CycleObserver interface {
	ObserveCycle(ctx context.Context, report CycleReport) error
}
