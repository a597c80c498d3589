package domain

import "errors"

var (
	// ErrInvalidVolume indicates that the target volume is out of range.
	ErrInvalidVolume = errors.New("target volume must be between 1 and 100")

	// ErrInvalidInterval indicates a non-positive polling interval.
	ErrInvalidInterval = errors.New("polling interval must be positive")

	// ErrInvalidPolicy indicates negative failure thresholds or a zero cooldown multiplier.
	ErrInvalidPolicy = errors.New("failure thresholds must be >= 0 and cooldown multiplier >= 1")

	// ErrDeviceNotFound indicates that no capture device could be resolved.
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrVolumeUnknown indicates an indeterminate volume read.
	ErrVolumeUnknown = errors.New("volume unknown")

	// ErrVolumeSetFailed indicates the backend rejected or timed out a volume write.
	ErrVolumeSetFailed = errors.New("volume set failed")

	// ErrBackendUnavailable indicates the helper tool or platform API is missing.
	ErrBackendUnavailable = errors.New("volume backend unavailable")

	// ErrHelperTimeout indicates a helper process ran past its timeout and was killed.
	ErrHelperTimeout = errors.New("helper timed out")

	// ErrLoggingFailure is reported when no log destination accepts a record.
	ErrLoggingFailure = errors.New("log sink unavailable")

	// ErrInstanceGuard indicates the single-instance machinery itself failed.
	ErrInstanceGuard = errors.New("instance guard failure")

	// ErrAlreadyRunning indicates another monitor holds the instance lock.
	ErrAlreadyRunning = errors.New("another monitor instance is running")
)
