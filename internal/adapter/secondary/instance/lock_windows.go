//go:build windows

package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"

	"micguard/internal/domain"
)

// lockFile holds a session-local named mutex derived from the lock file name.
// The mutex disappears with the last handle, including on process death.
func lockFile(path string) (func() error, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name, err := windows.UTF16PtrFromString(`Local\` + base)
	if err != nil {
		return nil, fmt.Errorf("mutex name: %w", err)
	}
	h, err := windows.CreateMutex(nil, false, name)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, domain.ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("create mutex: %w", err)
	}
	return func() error {
		return windows.CloseHandle(h)
	}, nil
}
