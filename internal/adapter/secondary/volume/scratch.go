package volume

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// scratchPath returns a file name unique per process, time and call, so files
// orphaned by a killed monitor never collide with a later run.
func scratchPath(dir, op string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("micguard-%s-%d-%d-%s.txt", op, os.Getpid(), time.Now().UnixNano(), uuid.NewString())
	return filepath.Join(dir, name)
}

// removeScratch deletes path, retrying once after settle when a killed helper
// still holds it open.
func removeScratch(path string, settle time.Duration) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	time.Sleep(settle)
	_ = os.Remove(path)
}
