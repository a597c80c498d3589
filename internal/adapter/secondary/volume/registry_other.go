//go:build !windows

package volume

import (
	"context"

	"micguard/internal/domain"
)

// RegistryStore has no backing store outside Windows and never matches.
type RegistryStore struct{}

// NewRegistryStore creates the secondary device store for this platform.
func NewRegistryStore() *RegistryStore {
	return &RegistryStore{}
}

func (RegistryStore) Search(ctx context.Context, idSubstring string) ([]domain.DeviceInfo, error) {
	return nil, nil
}
