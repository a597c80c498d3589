package domain

import (
	"fmt"
	"time"
)

// ResolutionMethod records how a capture device was selected.
type ResolutionMethod int

const (
	ResolvedExplicitID ResolutionMethod = iota
	ResolvedDefault
	ResolvedNameHeuristic
	ResolvedFirstAvailable
)

func (m ResolutionMethod) String() string {
	switch m {
	case ResolvedExplicitID:
		return "explicit-id"
	case ResolvedDefault:
		return "default-detected"
	case ResolvedNameHeuristic:
		return "name-heuristic"
	case ResolvedFirstAvailable:
		return "first-available"
	default:
		return "unknown"
	}
}

// Direction is the data flow of an audio endpoint.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionCapture
	DirectionRender
)

func (d Direction) String() string {
	switch d {
	case DirectionCapture:
		return "capture"
	case DirectionRender:
		return "render"
	default:
		return "unknown"
	}
}

// DeviceInfo is one entry of a platform audio device enumeration.
type DeviceInfo struct {
	ID             string
	Name           string
	Description    string
	Direction      Direction
	DefaultCapture bool
}

// DeviceHandle identifies a resolved capture device.
// It is a value type; a handle goes stale silently when the device disappears.
type DeviceHandle struct {
	ID          string
	DisplayName string
	Method      ResolutionMethod
}

func (h DeviceHandle) String() string {
	if h.DisplayName == "" {
		return h.ID
	}
	return fmt.Sprintf("%s (%s)", h.DisplayName, h.ID)
}

// Volume is an input level percentage in [0,100], or VolumeUnknown.
type Volume int

// VolumeUnknown is returned when a backend cannot determine the level.
const VolumeUnknown Volume = -1

// Known reports whether v carries a real reading.
func (v Volume) Known() bool {
	return v >= 0 && v <= 100
}

func (v Volume) String() string {
	if !v.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%d%%", int(v))
}

// MonitorConfig is the fully resolved configuration handed to the monitor at startup.
type MonitorConfig struct {
	TargetDeviceID  string
	TargetVolume    int
	PollingInterval time.Duration
	Verbose         bool

	// MaxFailures is the consecutive failure count above which the loop cools down.
	MaxFailures int
	// ResolveAfterFailures forces re-resolution of the device once exceeded.
	ResolveAfterFailures int
	// CooldownMultiplier scales PollingInterval for the cooldown sleep.
	CooldownMultiplier int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SettleDelay  time.Duration
}

// CooldownInterval is the sleep applied after the failure threshold is crossed.
func (c MonitorConfig) CooldownInterval() time.Duration {
	return time.Duration(c.CooldownMultiplier) * c.PollingInterval
}

// Validate checks if the configuration values are valid.
func (c MonitorConfig) Validate() error {
	if c.TargetVolume < 1 || c.TargetVolume > 100 {
		return fmt.Errorf("%w (got %d)", ErrInvalidVolume, c.TargetVolume)
	}
	if c.PollingInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.MaxFailures < 0 || c.ResolveAfterFailures < 0 || c.CooldownMultiplier < 1 {
		return ErrInvalidPolicy
	}
	return nil
}

// DefaultMonitorConfig returns the built-in defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TargetVolume:         100,
		PollingInterval:      5 * time.Second,
		MaxFailures:          10,
		ResolveAfterFailures: 5,
		CooldownMultiplier:   5,
		ReadTimeout:          8 * time.Second,
		WriteTimeout:         10 * time.Second,
		SettleDelay:          250 * time.Millisecond,
	}
}

// Phase is the monitor state machine position.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseResolving
	PhasePolling
	PhaseCorrecting
	PhaseDegraded
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseResolving:
		return "resolving"
	case PhasePolling:
		return "polling"
	case PhaseCorrecting:
		return "correcting"
	case PhaseDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MonitorState is the in-memory state owned by the monitor loop.
type MonitorState struct {
	CurrentDevice       *DeviceHandle
	ConsecutiveFailures int
	LastPollTime        time.Time
	Phase               Phase
}

// Outcome summarizes what a single cycle did.
type Outcome int

const (
	OutcomeOptimal Outcome = iota
	OutcomeCorrected
	OutcomeBlindCorrected
	OutcomeSetFailed
	OutcomeDeviceNotFound
	OutcomeCycleError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOptimal:
		return "optimal"
	case OutcomeCorrected:
		return "corrected"
	case OutcomeBlindCorrected:
		return "blind-corrected"
	case OutcomeSetFailed:
		return "set-failed"
	case OutcomeDeviceNotFound:
		return "device-not-found"
	case OutcomeCycleError:
		return "cycle-error"
	default:
		return "unknown"
	}
}

// CycleReport describes one pass of the monitor loop.
type CycleReport struct {
	StartedAt time.Time
	Device    *DeviceHandle
	Resolved  bool
	Phases    []Phase
	Before    Volume
	Target    int
	Outcome   Outcome
	Err       error
	Failures  int
	Cooldown  bool
	Sleep     time.Duration
}

// Snapshot represents a complete view of the monitor for status reporting.
type Snapshot struct {
	Config    MonitorConfig
	State     MonitorState
	LastCycle *CycleReport
}
