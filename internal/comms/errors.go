package comms

import "errors"

// Package-level errors for command dispatch and log streaming.
// Use errors.Is to check for specific conditions.
var (
	// ErrCommandTimeout indicates a reply-awaiting command expired before
	// the device responded.
	ErrCommandTimeout = errors.New("comms: command reply timed out")

	// ErrDeviceNotInTeam indicates the requested device exists but belongs
	// to a different team than the caller claimed.
	ErrDeviceNotInTeam = errors.New("comms: device does not belong to team")
)
