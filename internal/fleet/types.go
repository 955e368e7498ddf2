package fleet

import (
	"time"

	"github.com/google/uuid"
)

// Team is the tenant boundary. Every topic on the broker is rooted under
// exactly one team, and every identity carries its team id.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a runtime that devices can be assigned to.
type Project struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`
	Name   string `json:"name"`

	// TargetSnapshotID is the snapshot assigned devices should be running.
	TargetSnapshotID *string `json:"target_snapshot_id,omitempty"`

	// SettingsHash fingerprints the project-level device settings.
	SettingsHash string `json:"settings_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Device is a remote agent managed by the platform.
//
// The target fields (ProjectID, TargetSnapshotID, SettingsHash, Mode,
// Licensed) describe what the device should be running; the runtime
// fields (State, AgentVersion, LastSeenAt, ActiveSnapshotID) describe
// what it last reported. The status reconciler compares the two and
// issues corrective commands on drift.
type Device struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`
	Name   string `json:"name"`

	// Assignment and targets
	ProjectID        *string `json:"project_id,omitempty"`
	TargetSnapshotID *string `json:"target_snapshot_id,omitempty"`
	SettingsHash     string  `json:"settings_hash"`
	Mode             Mode    `json:"mode"`
	Licensed         bool    `json:"licensed"`

	// Runtime state, reported by the device
	State            string     `json:"state"`
	AgentVersion     string     `json:"agent_version"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	ActiveSnapshotID *string    `json:"active_snapshot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a deployable point-in-time capture of a project.
type Snapshot struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Mode describes how a device executes its assigned project.
type Mode string

// Mode constants.
const (
	// ModeAutonomous runs the assigned snapshot without local edits.
	ModeAutonomous Mode = "autonomous"

	// ModeDeveloper allows a connected editor to modify the device runtime.
	ModeDeveloper Mode = "developer"
)

// StateUnknown is the sentinel runtime state a device reports when it
// cannot determine what it is running. It always triggers a corrective
// update command.
const StateUnknown = "unknown"

// RuntimePatch is a partial update to a device's runtime fields.
// Only non-nil fields are written; the reconciler never touches fields
// the device did not report.
type RuntimePatch struct {
	State        *string
	AgentVersion *string
	LastSeenAt   *time.Time

	// ActiveSnapshotID sets the active snapshot when non-nil.
	ActiveSnapshotID *string

	// ClearActiveSnapshot nulls the active snapshot. Takes precedence
	// over ActiveSnapshotID.
	ClearActiveSnapshot bool
}

// GenerateID creates a new unique identifier for a fleet entity.
func GenerateID() string {
	return uuid.NewString()
}
