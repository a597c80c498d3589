package volume

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"micguard/internal/domain"
)

// MemoryDevice seeds a MemoryBackend.
type MemoryDevice struct {
	Info   domain.DeviceInfo
	Volume int
}

// MemoryBackend keeps devices and levels in process. Useful for dry runs and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	devices []MemoryDevice
	readErr error
	setErr  error
	sets    int
}

// NewMemoryBackend creates a backend holding devices in the given order.
func NewMemoryBackend(devices ...MemoryDevice) *MemoryBackend {
	return &MemoryBackend{devices: append([]MemoryDevice(nil), devices...)}
}

// DefaultMemoryDevices is the simulated device set used by `--backend memory`.
func DefaultMemoryDevices() []MemoryDevice {
	return []MemoryDevice{
		{Info: domain.DeviceInfo{ID: "memory-speakers", Name: "Speakers", Direction: domain.DirectionRender}, Volume: 70},
		{Info: domain.DeviceInfo{ID: "memory-mic", Name: "Microphone", Description: "Simulated input", Direction: domain.DirectionCapture, DefaultCapture: true}, Volume: 50},
	}
}

func (m *MemoryBackend) Name() string {
	return "memory"
}

// FailReads makes every ReadVolume fail with err (nil restores normal reads).
func (m *MemoryBackend) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailSets makes every SetVolume fail with err (nil restores normal writes).
func (m *MemoryBackend) FailSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// SetCount returns the number of successful SetVolume calls.
func (m *MemoryBackend) SetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Adjust changes a level from outside, the way another application would.
func (m *MemoryBackend) Adjust(id string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(id); i >= 0 {
		m.devices[i].Volume = percent
	}
}

func (m *MemoryBackend) find(id string) int {
	for i, d := range m.devices {
		if strings.EqualFold(d.Info.ID, id) {
			return i
		}
	}
	return -1
}

// Devices returns the seeded devices in order.
func (m *MemoryBackend) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DeviceInfo, len(m.devices))
	for i, d := range m.devices {
		out[i] = d.Info
	}
	return out, nil
}

func (m *MemoryBackend) ReadVolume(ctx context.Context, device domain.DeviceHandle) (domain.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return domain.VolumeUnknown, fmt.Errorf("%w: %w", domain.ErrVolumeUnknown, m.readErr)
	}
	i := m.find(device.ID)
	if i < 0 {
		return domain.VolumeUnknown, fmt.Errorf("%w: device %q gone", domain.ErrVolumeUnknown, device.ID)
	}
	return domain.Volume(m.devices[i].Volume), nil
}

func (m *MemoryBackend) SetVolume(ctx context.Context, device domain.DeviceHandle, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if percent < 1 || percent > 100 {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, domain.ErrInvalidVolume)
	}
	if m.setErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, m.setErr)
	}
	i := m.find(device.ID)
	if i < 0 {
		return fmt.Errorf("%w: device %q gone", domain.ErrVolumeSetFailed, device.ID)
	}
	m.devices[i].Volume = percent
	m.sets++
	return nil
}
