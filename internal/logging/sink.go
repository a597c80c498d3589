package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"micguard/internal/domain"
)

const (
	appendAttempts = 3
	appendBackoff  = 10 * time.Millisecond
)

// AppendSink is a zapcore.WriteSyncer for a log file shared by several processes.
// Every record is a separate O_APPEND open/write/close, so concurrent writers
// interleave whole lines and a rotated or deleted file is simply recreated.
// Persistent failures switch the sink to a per-process fallback file; a record
// neither destination accepts is dropped.
type AppendSink struct {
	mu       sync.Mutex
	shared   string
	private  string
	fallback bool
	sleep    func(time.Duration)
}

// NewAppendSink prepares a sink for path, creating parent directories.
func NewAppendSink(path string) (*AppendSink, error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &AppendSink{
		shared:  path,
		private: PrivatePath(path, os.Getpid()),
		sleep:   time.Sleep,
	}, nil
}

// PrivatePath returns the per-process fallback file for a shared log path.
func PrivatePath(shared string, pid int) string {
	ext := filepath.Ext(shared)
	base := strings.TrimSuffix(shared, ext)
	if ext == "" {
		ext = ".log"
	}
	return fmt.Sprintf("%s.%d%s", base, pid, ext)
}

// Write appends p, retrying with backoff before falling back. It never fails.
func (s *AppendSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fallback {
		delay := appendBackoff
		for attempt := 0; attempt < appendAttempts; attempt++ {
			if err := appendFile(s.shared, p); err == nil {
				return len(p), nil
			}
			if attempt < appendAttempts-1 {
				s.sleep(delay)
				delay *= 2
			}
		}
		s.fallback = true
	}

	if err := appendFile(s.private, p); err != nil {
		fmt.Fprintf(os.Stderr, "%v: %v\n", domain.ErrLoggingFailure, err)
	}
	return len(p), nil
}

// Sync is a no-op; every write is already closed.
func (s *AppendSink) Sync() error {
	return nil
}

// FallbackActive reports whether the shared file has been abandoned.
func (s *AppendSink) FallbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Path returns the destination currently in use.
func (s *AppendSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback {
		return s.private
	}
	return s.shared
}

func appendFile(path string, p []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(p); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
