package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"micguard/internal/domain"
	"micguard/internal/logging"
)

// Monitor is the resolve, read, compare, correct, sleep loop.
// Only the loop goroutine mutates state; Snapshot may be called concurrently.
type Monitor struct {
	cfg       domain.MonitorConfig
	policy    *domain.MonitorPolicy
	resolver  Resolver
	backend   domain.VolumeBackend
	log       *logging.Logger
	observers []domain.CycleObserver
	sleep     func(context.Context, time.Duration) error
	now       func() time.Time

	mu    sync.RWMutex
	state domain.MonitorState
	last  *domain.CycleReport
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithObservers registers cycle observers, called in order after every cycle.
func WithObservers(obs ...domain.CycleObserver) Option {
	return func(m *Monitor) {
		m.observers = append(m.observers, obs...)
	}
}

// WithSleeper replaces the inter-cycle wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Monitor) {
		m.sleep = sleep
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor validates cfg and prepares the loop.
func NewMonitor(cfg domain.MonitorConfig, resolver Resolver, backend domain.VolumeBackend, log *logging.Logger, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil || backend == nil {
		return nil, fmt.Errorf("resolver and backend are required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	m := &Monitor{
		cfg:      cfg,
		policy:   domain.NewMonitorPolicy(cfg),
		resolver: resolver,
		backend:  backend,
		log:      log,
		sleep:    sleepContext,
		now:      time.Now,
		state:    domain.MonitorState{Phase: domain.PhaseUninitialized},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run cycles until ctx is cancelled. A failing cycle never ends the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infof("monitor started: target %d%% every %s via %s backend", m.cfg.TargetVolume, m.cfg.PollingInterval, m.backend.Name())
	for ctx.Err() == nil {
		report := m.Cycle(ctx)
		if err := m.sleep(ctx, report.Sleep); err != nil {
			break
		}
	}
	m.log.Infof("monitor stopped")
	return nil
}

// Cycle runs exactly one pass and returns its report. Panics inside the pass
// are recovered and counted as a failure followed by a normal-interval sleep.
func (m *Monitor) Cycle(ctx context.Context) domain.CycleReport {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	report := domain.CycleReport{
		StartedAt: m.now(),
		Target:    m.cfg.TargetVolume,
		Before:    domain.VolumeUnknown,
	}

	panicked := false
	func() {
		defer func() {
			if p := recover(); p != nil {
				panicked = true
				state = m.policy.Failed(state)
				report.Outcome = domain.OutcomeCycleError
				report.Err = fmt.Errorf("monitor cycle: %v", p)
				m.log.Errorf("monitor cycle failed (failure %d): %v", state.ConsecutiveFailures, p)
			}
		}()
		state = m.step(ctx, state, &report)
	}()

	report.Failures = state.ConsecutiveFailures
	if panicked {
		report.Sleep = m.cfg.PollingInterval
	} else {
		var cooled bool
		report.Sleep, state, cooled = m.policy.NextSleep(state)
		if cooled {
			report.Cooldown = true
			report.Phases = append(report.Phases, domain.PhaseDegraded)
			m.log.Warnf("%d consecutive failures; cooling down for %s", report.Failures, report.Sleep)
		}
	}

	m.mu.Lock()
	m.state = state
	last := report
	m.last = &last
	m.mu.Unlock()

	m.notify(ctx, report)
	return report
}

func (m *Monitor) step(ctx context.Context, state domain.MonitorState, report *domain.CycleReport) domain.MonitorState {
	state.LastPollTime = report.StartedAt
	target := m.cfg.TargetVolume

	if m.policy.NeedsResolve(state) {
		report.Phases = append(report.Phases, domain.PhaseResolving)
		dev, err := m.resolver.Resolve(ctx, m.cfg.TargetDeviceID)
		if err != nil {
			state = m.policy.ResolveFailed(state)
			report.Outcome = domain.OutcomeDeviceNotFound
			report.Err = err
			m.log.Warnf("capture device not resolved (failure %d): %v", state.ConsecutiveFailures, err)
			return state
		}
		if state.CurrentDevice == nil || state.CurrentDevice.ID != dev.ID {
			m.log.Infof("guarding %s (%s)", dev, dev.Method)
		}
		state = m.policy.Resolved(state, dev)
		report.Resolved = true
	}

	dev := *state.CurrentDevice
	report.Device = &dev
	report.Phases = append(report.Phases, domain.PhasePolling)
	state.Phase = domain.PhasePolling

	current, readErr := m.backend.ReadVolume(ctx, dev)
	report.Before = current
	if ctx.Err() != nil {
		return state
	}

	switch m.policy.Decide(current) {
	case domain.ActionBlindCorrect:
		m.log.Warnf("volume of %s unknown (%v); setting %d%% anyway", dev, readErr, target)
		report.Phases = append(report.Phases, domain.PhaseCorrecting)
		if err := m.backend.SetVolume(ctx, dev, target); err != nil {
			state = m.policy.Failed(state)
			report.Outcome = domain.OutcomeSetFailed
			report.Err = err
			m.log.Errorf("volume set failed (failure %d): %v", state.ConsecutiveFailures, err)
		} else {
			report.Outcome = domain.OutcomeBlindCorrected
			m.log.Infof("volume of %s set to %d%%", dev, target)
		}
		report.Phases = append(report.Phases, domain.PhasePolling)

	case domain.ActionCorrect:
		m.log.Warnf("volume of %s is %d%%, below target %d%%; correcting", dev, int(current), target)
		report.Phases = append(report.Phases, domain.PhaseCorrecting)
		state.Phase = domain.PhaseCorrecting
		if err := m.backend.SetVolume(ctx, dev, target); err != nil {
			state = m.policy.Failed(state)
			report.Outcome = domain.OutcomeSetFailed
			report.Err = err
			m.log.Errorf("volume set failed (failure %d): %v", state.ConsecutiveFailures, err)
		} else {
			state = m.policy.Succeeded(state)
			report.Outcome = domain.OutcomeCorrected
			m.log.Infof("volume of %s restored from %d%% to %d%%", dev, int(current), target)
		}
		state.Phase = domain.PhasePolling
		report.Phases = append(report.Phases, domain.PhasePolling)

	default:
		state = m.policy.Succeeded(state)
		report.Outcome = domain.OutcomeOptimal
		m.log.Infof("volume of %s optimal at %d%%", dev, int(current))
	}
	return state
}

func (m *Monitor) notify(ctx context.Context, report domain.CycleReport) {
	for _, o := range m.observers {
		if err := o.ObserveCycle(ctx, report); err != nil {
			m.log.Warnf("cycle observer: %v", err)
		}
	}
}

// Snapshot returns a copy of the configuration, state and last cycle.
func (m *Monitor) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := domain.Snapshot{Config: m.cfg, State: m.state}
	if m.state.CurrentDevice != nil {
		dev := *m.state.CurrentDevice
		snap.State.CurrentDevice = &dev
	}
	if m.last != nil {
		last := *m.last
		last.Phases = append([]domain.Phase(nil), m.last.Phases...)
		snap.LastCycle = &last
	}
	return snap
}

// ReadNow resolves the configured device and reads its volume once.
func (m *Monitor) ReadNow(ctx context.Context) (domain.DeviceHandle, domain.Volume, error) {
	dev, err := m.resolver.Resolve(ctx, m.cfg.TargetDeviceID)
	if err != nil {
		return domain.DeviceHandle{}, domain.VolumeUnknown, err
	}
	v, err := m.backend.ReadVolume(ctx, dev)
	return dev, v, err
}

// ApplyNow resolves the configured device and sets it to percent
// (the configured target when percent < 0).
func (m *Monitor) ApplyNow(ctx context.Context, percent int) (domain.DeviceHandle, error) {
	if percent < 0 {
		percent = m.cfg.TargetVolume
	}
	if percent < 1 || percent > 100 {
		return domain.DeviceHandle{}, domain.ErrInvalidVolume
	}
	dev, err := m.resolver.Resolve(ctx, m.cfg.TargetDeviceID)
	if err != nil {
		return domain.DeviceHandle{}, err
	}
	if err := m.backend.SetVolume(ctx, dev, percent); err != nil {
		return dev, err
	}
	m.log.Infof("volume of %s set to %d%% on request", dev, percent)
	return dev, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
