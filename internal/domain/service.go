package domain

import "time"

// MonitorPolicy holds the pure decision logic of the monitor loop.
// It has no side effects and no dependencies on external concerns.
type MonitorPolicy struct {
	cfg MonitorConfig
}

// NewMonitorPolicy creates a policy bound to cfg.
func NewMonitorPolicy(cfg MonitorConfig) *MonitorPolicy {
	return &MonitorPolicy{cfg: cfg}
}

// Action is what the monitor should do after a read.
type Action int

const (
	ActionNone Action = iota
	ActionCorrect
	ActionBlindCorrect
)

// NeedsResolve reports whether the device must be (re)resolved before polling.
func (p *MonitorPolicy) NeedsResolve(state MonitorState) bool {
	return state.CurrentDevice == nil || state.ConsecutiveFailures > p.cfg.ResolveAfterFailures
}

// Decide maps a reading to an action. An unknown reading is never treated as fine.
func (p *MonitorPolicy) Decide(current Volume) Action {
	switch {
	case !current.Known():
		return ActionBlindCorrect
	case int(current) < p.cfg.TargetVolume:
		return ActionCorrect
	default:
		return ActionNone
	}
}

// ResolveFailed clears the device and counts a failure.
func (p *MonitorPolicy) ResolveFailed(state MonitorState) MonitorState {
	state.CurrentDevice = nil
	state.ConsecutiveFailures++
	state.Phase = PhaseResolving
	return state
}

// Resolved installs a fresh handle without touching the failure counter.
func (p *MonitorPolicy) Resolved(state MonitorState, device DeviceHandle) MonitorState {
	state.CurrentDevice = &device
	state.Phase = PhasePolling
	return state
}

// Succeeded resets the failure counter after a fully successful cycle.
func (p *MonitorPolicy) Succeeded(state MonitorState) MonitorState {
	state.ConsecutiveFailures = 0
	state.Phase = PhasePolling
	return state
}

// Failed counts one failure.
func (p *MonitorPolicy) Failed(state MonitorState) MonitorState {
	state.ConsecutiveFailures++
	return state
}

// NextSleep returns how long to wait before the next cycle and the state to carry.
// Crossing MaxFailures triggers a cooldown, resets the counter and drops the
// device so the next cycle starts from resolution.
func (p *MonitorPolicy) NextSleep(state MonitorState) (time.Duration, MonitorState, bool) {
	if state.ConsecutiveFailures > p.cfg.MaxFailures {
		state.ConsecutiveFailures = 0
		state.CurrentDevice = nil
		state.Phase = PhaseDegraded
		return p.cfg.CooldownInterval(), state, true
	}
	return p.cfg.PollingInterval, state, false
}
