package fleet

import "errors"

// Domain errors for the fleet package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fleet.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrTeamNotFound is returned when a team ID does not exist.
	ErrTeamNotFound = errors.New("fleet: team not found")

	// ErrProjectNotFound is returned when a project ID does not exist.
	ErrProjectNotFound = errors.New("fleet: project not found")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrSnapshotNotFound is returned when a snapshot ID does not exist.
	ErrSnapshotNotFound = errors.New("fleet: snapshot not found")

	// ErrExists is returned when creating an entity with an ID that already exists.
	ErrExists = errors.New("fleet: already exists")
)
