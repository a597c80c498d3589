package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"micguard/internal/domain"
	"micguard/internal/logging"
)

var mic = domain.DeviceHandle{ID: "mic-1", DisplayName: "Microphone", Method: domain.ResolvedDefault}

func TestMonitor_CorrectsLowVolume(t *testing.T) {
	log, logs := newObservedLogger()
	backend := &fakeBackend{volume: 100}
	m := mustMonitor(t, testMonitorConfig(), &fakeResolver{handle: mic}, backend, log)
	ctx := context.Background()

	m.Cycle(ctx) // resolves the device
	backend.volume = 80
	logs.TakeAll()

	report := m.Cycle(ctx)

	want := []domain.Phase{domain.PhasePolling, domain.PhaseCorrecting, domain.PhasePolling}
	if !reflect.DeepEqual(report.Phases, want) {
		t.Fatalf("phases: want %v, got %v", want, report.Phases)
	}
	if report.Outcome != domain.OutcomeCorrected || report.Before != 80 {
		t.Fatalf("unexpected report %+v", report)
	}
	entries := logs.All()
	if n := countLevel(entries, zapcore.WarnLevel); n != 1 {
		t.Errorf("want 1 WARN, got %d", n)
	}
	if n := countLevel(entries, zapcore.InfoLevel); n != 1 {
		t.Errorf("want 1 INFO, got %d", n)
	}
	if !reflect.DeepEqual(backend.sets, []int{100}) {
		t.Errorf("sets: %v", backend.sets)
	}
	if snap := m.Snapshot(); snap.State.ConsecutiveFailures != 0 || snap.State.Phase != domain.PhasePolling {
		t.Errorf("unexpected state %+v", snap.State)
	}
}

func TestMonitor_OptimalResetsFailuresWithoutSetting(t *testing.T) {
	backend := &fakeBackend{volume: 80, setErr: errBoom}
	m := mustMonitor(t, testMonitorConfig(), &fakeResolver{handle: mic}, backend, logging.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Cycle(ctx)
	}
	if got := m.Snapshot().State.ConsecutiveFailures; got != 3 {
		t.Fatalf("want 3 failures, got %d", got)
	}

	backend.volume = 100
	backend.setErr = nil
	report := m.Cycle(ctx)

	if report.Outcome != domain.OutcomeOptimal || len(backend.sets) != 0 {
		t.Fatalf("optimal cycle must not set: %+v sets=%v", report, backend.sets)
	}
	if !reflect.DeepEqual(report.Phases, []domain.Phase{domain.PhasePolling}) {
		t.Fatalf("phases: %v", report.Phases)
	}
	if got := m.Snapshot().State.ConsecutiveFailures; got != 0 {
		t.Fatalf("want 0 failures, got %d", got)
	}
}

func TestMonitor_OptimalLogsInfoWithoutVerbose(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := testMonitorConfig()
	cfg.Verbose = false
	m := mustMonitor(t, cfg, &fakeResolver{handle: mic}, &fakeBackend{volume: 100}, logging.NewWithCore(core))
	ctx := context.Background()

	m.Cycle(ctx) // resolves the device
	logs.TakeAll()

	if report := m.Cycle(ctx); report.Outcome != domain.OutcomeOptimal {
		t.Fatalf("want optimal, got %+v", report)
	}
	entries := logs.FilterMessageSnippet("optimal").All()
	if len(entries) != 1 || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("want one INFO optimal entry, got %+v", entries)
	}
}

func TestMonitor_UnknownReadStillSets(t *testing.T) {
	log, logs := newObservedLogger()
	backend := &fakeBackend{readErr: domain.ErrVolumeUnknown}
	m := mustMonitor(t, testMonitorConfig(), &fakeResolver{handle: mic}, backend, log)

	report := m.Cycle(context.Background())

	if report.Outcome != domain.OutcomeBlindCorrected || !reflect.DeepEqual(backend.sets, []int{100}) {
		t.Fatalf("want blind correction, got %+v sets=%v", report, backend.sets)
	}
	if report.Failures != 0 {
		t.Fatalf("unknown read alone must not count: %d", report.Failures)
	}
	if countLevel(logs.All(), zapcore.WarnLevel) != 1 {
		t.Fatalf("want one WARN for unknown read")
	}

	backend.setErr = errBoom
	report = m.Cycle(context.Background())
	if report.Outcome != domain.OutcomeSetFailed || report.Failures != 1 {
		t.Fatalf("failed blind set should count: %+v", report)
	}
	if countLevel(logs.All(), zapcore.ErrorLevel) != 1 {
		t.Fatalf("want one ERROR for failed set")
	}
}

func TestMonitor_CooldownAfterMaxFailures(t *testing.T) {
	cfg := testMonitorConfig()
	resolver := &fakeResolver{handle: mic}
	backend := &fakeBackend{readErr: domain.ErrVolumeUnknown, setErr: errBoom}
	m := mustMonitor(t, cfg, resolver, backend, logging.NewNop())
	ctx := context.Background()

	for i := 1; i <= cfg.MaxFailures; i++ {
		report := m.Cycle(ctx)
		if report.Sleep != cfg.PollingInterval || report.Cooldown {
			t.Fatalf("cycle %d: want normal sleep, got %v", i, report.Sleep)
		}
		if report.Failures != i {
			t.Fatalf("cycle %d: want %d failures, got %d", i, i, report.Failures)
		}
	}
	// Cycles starting with more than ResolveAfterFailures failures re-resolve.
	if resolver.calls != cfg.MaxFailures-cfg.ResolveAfterFailures {
		t.Fatalf("resolver calls: got %d", resolver.calls)
	}

	report := m.Cycle(ctx)
	if !report.Cooldown || report.Sleep != 5*cfg.PollingInterval {
		t.Fatalf("want cooldown of %v, got %+v", 5*cfg.PollingInterval, report)
	}
	snap := m.Snapshot()
	if snap.State.ConsecutiveFailures != 0 || snap.State.Phase != domain.PhaseDegraded || snap.State.CurrentDevice != nil {
		t.Fatalf("unexpected state after cooldown %+v", snap.State)
	}

	calls := resolver.calls
	report = m.Cycle(ctx)
	if resolver.calls != calls+1 || report.Phases[0] != domain.PhaseResolving {
		t.Fatalf("cycle after cooldown should resolve: %+v", report)
	}
}

func TestMonitor_ResolutionFailureSkipsPolling(t *testing.T) {
	log, logs := newObservedLogger()
	backend := &fakeBackend{volume: 50}
	resolver := &fakeResolver{err: domain.ErrDeviceNotFound}
	m := mustMonitor(t, testMonitorConfig(), resolver, backend, log)

	report := m.Cycle(context.Background())

	if report.Outcome != domain.OutcomeDeviceNotFound || report.Failures != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if backend.reads != 0 {
		t.Fatalf("must not poll without a device, reads=%d", backend.reads)
	}
	if report.Sleep != time.Second {
		t.Fatalf("want normal sleep, got %v", report.Sleep)
	}
	if countLevel(logs.All(), zapcore.WarnLevel) != 1 {
		t.Fatal("want one WARN for failed resolution")
	}
	if m.Snapshot().State.CurrentDevice != nil {
		t.Fatal("device should be cleared")
	}
}

func TestMonitor_PanicIsContained(t *testing.T) {
	log, logs := newObservedLogger()
	backend := &fakeBackend{readPanic: true}
	cfg := testMonitorConfig()
	cfg.MaxFailures = 0
	m := mustMonitor(t, cfg, &fakeResolver{handle: mic}, backend, log)

	report := m.Cycle(context.Background())

	if report.Outcome != domain.OutcomeCycleError || report.Err == nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Failures != 1 || report.Sleep != cfg.PollingInterval || report.Cooldown {
		t.Fatalf("panic must count and use normal sleep: %+v", report)
	}
	if countLevel(logs.All(), zapcore.ErrorLevel) != 1 {
		t.Fatal("want one ERROR for panic")
	}

	backend.readPanic = false
	backend.volume = 100
	if report := m.Cycle(context.Background()); report.Outcome != domain.OutcomeOptimal {
		t.Fatalf("loop should recover, got %+v", report)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := &recordingObserver{err: errors.New("disk full")}
	var slept []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	backend := &fakeBackend{volume: 100}
	m := mustMonitor(t, testMonitorConfig(), &fakeResolver{handle: mic}, backend, logging.NewNop(),
		WithSleeper(sleeper), WithObservers(obs))

	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(obs.reports) != 3 || len(slept) != 3 {
		t.Fatalf("want 3 cycles, got %d reports / %d sleeps", len(obs.reports), len(slept))
	}
	if m.Snapshot().LastCycle == nil {
		t.Fatal("last cycle not recorded")
	}
}

func TestMonitor_ApplyAndReadNow(t *testing.T) {
	backend := &fakeBackend{volume: 30}
	m := mustMonitor(t, testMonitorConfig(), &fakeResolver{handle: mic}, backend, logging.NewNop())
	ctx := context.Background()

	if _, err := m.ApplyNow(ctx, 0); !errors.Is(err, domain.ErrInvalidVolume) {
		t.Fatalf("want ErrInvalidVolume, got %v", err)
	}
	if _, err := m.ApplyNow(ctx, -1); err != nil {
		t.Fatalf("ApplyNow: %v", err)
	}
	dev, v, err := m.ReadNow(ctx)
	if err != nil || dev.ID != mic.ID || v != 100 {
		t.Fatalf("ReadNow: %v %v %v", dev, v, err)
	}
}

func TestNewMonitor_RejectsInvalidConfig(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.TargetVolume = 0
	if _, err := NewMonitor(cfg, &fakeResolver{}, &fakeBackend{}, nil); !errors.Is(err, domain.ErrInvalidVolume) {
		t.Fatalf("want ErrInvalidVolume, got %v", err)
	}
}
