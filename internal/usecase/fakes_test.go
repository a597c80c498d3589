package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"micguard/internal/domain"
	"micguard/internal/logging"
)

// fakeCatalog is a local stub satisfying domain.DeviceCatalog.
type fakeCatalog struct {
	devices []domain.DeviceInfo
	err     error
	calls   int
}

func (f *fakeCatalog) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	f.calls++
	return f.devices, f.err
}

// fakeStore is a local stub satisfying domain.DeviceClassStore.
type fakeStore struct {
	devices []domain.DeviceInfo
	err     error
	queries []string
}

func (f *fakeStore) Search(ctx context.Context, id string) ([]domain.DeviceInfo, error) {
	f.queries = append(f.queries, id)
	var out []domain.DeviceInfo
	for _, d := range f.devices {
		if containsFold(d.ID, id) {
			out = append(out, d)
		}
	}
	return out, f.err
}

// fakeResolver returns a fixed handle or error and counts calls.
type fakeResolver struct {
	handle domain.DeviceHandle
	err    error
	calls  int
}

func (f *fakeResolver) Resolve(ctx context.Context, explicitID string) (domain.DeviceHandle, error) {
	f.calls++
	return f.handle, f.err
}

// fakeBackend is a scripted volume backend.
type fakeBackend struct {
	mu        sync.Mutex
	volume    domain.Volume
	readErr   error
	setErr    error
	readPanic bool
	reads     int
	sets      []int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ReadVolume(ctx context.Context, dev domain.DeviceHandle) (domain.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readPanic {
		panic("driver exploded")
	}
	if f.readErr != nil {
		return domain.VolumeUnknown, f.readErr
	}
	return f.volume, nil
}

func (f *fakeBackend) SetVolume(ctx context.Context, dev domain.DeviceHandle, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, percent)
	f.volume = domain.Volume(percent)
	return nil
}

// recordingObserver keeps every report.
type recordingObserver struct {
	reports []domain.CycleReport
	err     error
}

func (r *recordingObserver) ObserveCycle(ctx context.Context, report domain.CycleReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

func newObservedLogger() (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewWithCore(core), logs
}

func testMonitorConfig() domain.MonitorConfig {
	cfg := domain.DefaultMonitorConfig()
	cfg.TargetVolume = 100
	cfg.PollingInterval = time.Second
	return cfg
}

func countLevel(logs []observer.LoggedEntry, level zapcore.Level) int {
	n := 0
	for _, e := range logs {
		if e.Level == level {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

func mustMonitor(t *testing.T, cfg domain.MonitorConfig, r Resolver, b domain.VolumeBackend, log *logging.Logger, opts ...Option) *Monitor {
	t.Helper()
	m, err := NewMonitor(cfg, r, b, log, opts...)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}
