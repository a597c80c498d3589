package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"micguard/internal/domain"
)

// ErrNoStatus is returned by Load when no monitor has written a status yet.
var ErrNoStatus = errors.New("no status recorded")

// StatusFile persists the monitor snapshot as JSON so other processes can read it.
type StatusFile struct {
	path   string
	source func() domain.Snapshot
	mu     sync.Mutex
}

// NewStatusFile creates the status file writer. source supplies the snapshot
// written after every cycle and may be nil when the file is only read.
func NewStatusFile(path string, source func() domain.Snapshot) (*StatusFile, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	return &StatusFile{path: path, source: source}, nil
}

// DeviceView is the persisted form of a resolved device.
type DeviceView struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Method string `json:"method"`
}

// CycleView is the persisted form of the last cycle.
type CycleView struct {
	StartedAt    time.Time `json:"startedAt"`
	Phases       []string  `json:"phases"`
	Before       int       `json:"before"`
	Target       int       `json:"target"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	Failures     int       `json:"failures"`
	Cooldown     bool      `json:"cooldown"`
	SleepSeconds float64   `json:"sleepSeconds"`
}

// StatusView is the JSON document shared by the status file and the status API.
type StatusView struct {
	PID                    int         `json:"pid"`
	UpdatedAt              time.Time   `json:"updatedAt"`
	TargetDeviceID         string      `json:"targetDeviceId,omitempty"`
	TargetVolume           int         `json:"targetVolume"`
	PollingIntervalSeconds float64     `json:"pollingIntervalSeconds"`
	Phase                  string      `json:"phase"`
	Device                 *DeviceView `json:"device,omitempty"`
	ConsecutiveFailures    int         `json:"consecutiveFailures"`
	LastPollTime           *time.Time  `json:"lastPollTime,omitempty"`
	LastCycle              *CycleView  `json:"lastCycle,omitempty"`
}

// NewStatusView converts a monitor snapshot.
func NewStatusView(snap domain.Snapshot) StatusView {
	v := StatusView{
		PID:                    os.Getpid(),
		UpdatedAt:              time.Now(),
		TargetDeviceID:         snap.Config.TargetDeviceID,
		TargetVolume:           snap.Config.TargetVolume,
		PollingIntervalSeconds: snap.Config.PollingInterval.Seconds(),
		Phase:                  snap.State.Phase.String(),
		ConsecutiveFailures:    snap.State.ConsecutiveFailures,
	}
	if d := snap.State.CurrentDevice; d != nil {
		v.Device = &DeviceView{ID: d.ID, Name: d.DisplayName, Method: d.Method.String()}
	}
	if !snap.State.LastPollTime.IsZero() {
		t := snap.State.LastPollTime
		v.LastPollTime = &t
	}
	if c := snap.LastCycle; c != nil {
		cv := &CycleView{
			StartedAt:    c.StartedAt,
			Before:       int(c.Before),
			Target:       c.Target,
			Outcome:      c.Outcome.String(),
			Failures:     c.Failures,
			Cooldown:     c.Cooldown,
			SleepSeconds: c.Sleep.Seconds(),
		}
		for _, p := range c.Phases {
			cv.Phases = append(cv.Phases, p.String())
		}
		if c.Err != nil {
			cv.Error = c.Err.Error()
		}
		v.LastCycle = cv
	}
	return v
}

// Load reads the last written status.
func (f *StatusFile) Load() (StatusView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusView{}, ErrNoStatus
		}
		return StatusView{}, fmt.Errorf("read status: %w", err)
	}
	var v StatusView
	if err := json.Unmarshal(data, &v); err != nil {
		return StatusView{}, fmt.Errorf("unmarshal status: %w", err)
	}
	return v, nil
}

// Save writes the snapshot atomically.
func (f *StatusFile) Save(snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(NewStatusView(snap), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// ObserveCycle saves the current snapshot.
func (f *StatusFile) ObserveCycle(ctx context.Context, _ domain.CycleReport) error {
	if f.source == nil {
		return nil
	}
	return f.Save(f.source())
}

// Remove deletes the status file on clean shutdown.
func (f *StatusFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
