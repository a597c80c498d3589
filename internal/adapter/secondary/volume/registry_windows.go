//go:build windows

package volume

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/registry"

	"micguard/internal/domain"
)

const (
	captureKey = `SOFTWARE\Microsoft\Windows\CurrentVersion\MMDevices\Audio\Capture`
	// Capture endpoint ids are "{0.0.1.00000000}." followed by the registry key name.
	captureIDPrefix = "{0.0.1.00000000}."

	propDeviceDesc    = "{a45c254e-df1c-4efd-8020-67d146a850e0},2"
	propInterfaceName = "{b3f8fa53-0004-438e-9003-51a46e139bfc},6"
)

// RegistryStore searches the MMDevices capture endpoint store.
type RegistryStore struct{}

// NewRegistryStore creates the secondary device store for this platform.
func NewRegistryStore() *RegistryStore {
	return &RegistryStore{}
}

// Search returns capture endpoints whose id contains idSubstring, in registry order.
func (RegistryStore) Search(ctx context.Context, idSubstring string) ([]domain.DeviceInfo, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, captureKey, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("open capture store: %w", err)
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("list capture store: %w", err)
	}

	var out []domain.DeviceInfo
	for _, name := range names {
		id := captureIDPrefix + name
		if !containsFold(id, idSubstring) {
			continue
		}
		info := domain.DeviceInfo{ID: id, Direction: domain.DirectionCapture}
		if props, err := registry.OpenKey(k, name+`\Properties`, registry.QUERY_VALUE); err == nil {
			info.Name, _, _ = props.GetStringValue(propDeviceDesc)
			info.Description, _, _ = props.GetStringValue(propInterfaceName)
			props.Close()
		}
		out = append(out, info)
	}
	return out, nil
}
