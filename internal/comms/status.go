package comms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgefleet/forge-core/internal/fleet"
	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

// statusReport is the structured body of a device status message.
// Every field is optional; devices report what they know.
type statusReport struct {
	State        *string `json:"state"`
	AgentVersion *string `json:"agentVersion"`
	Snapshot     *string `json:"snapshot"`
	Project      *string `json:"project"`
	Settings     *string `json:"settings"`
}

// updatePayload is the authoritative target state pushed to a drifted
// device with the "update" command.
type updatePayload struct {
	Project  *string    `json:"project"`
	Snapshot *string    `json:"snapshot"`
	Settings string     `json:"settings"`
	Mode     fleet.Mode `json:"mode"`
	Licensed bool       `json:"licensed"`
}

// Reconciler applies device status reports and corrects drift.
//
// Status events are not serialized per device; concurrent reports for
// the same device resolve last-applied-wins on the runtime fields.
// Correction is idempotent: a drifted device gets the same authoritative
// update no matter how many reconciler instances observe the drift.
type Reconciler struct {
	repo       fleet.Repository
	dispatcher *Dispatcher
	recorder   Recorder
	logger     *logging.Logger
	now        func() time.Time
}

// NewReconciler creates a status reconciler.
func NewReconciler(repo fleet.Repository, dispatcher *Dispatcher, recorder Recorder, logger *logging.Logger) *Reconciler {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Reconciler{
		repo:       repo,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger.With("component", "reconciler"),
		now:        time.Now,
	}
}

// HandleStatus processes an inbound device status report.
//
// Unknown devices are dropped. Last-seen is stamped for every report
// from a known device, even ones whose body fails to parse (devices may
// send non-structured heartbeats). Structured reports additionally
// update the runtime fields, reconcile the active snapshot, and trigger
// a corrective "update" command when the report disagrees with the
// device's assigned targets.
func (r *Reconciler) HandleStatus(ctx context.Context, ev mqtt.DeviceStatusEvent) error {
	device, err := r.repo.DeviceByID(ctx, ev.DeviceID)
	if err != nil {
		if errors.Is(err, fleet.ErrDeviceNotFound) {
			r.logger.Debug("dropping status for unknown device", "device_id", ev.DeviceID)
			return nil
		}
		return fmt.Errorf("looking up device %s: %w", ev.DeviceID, err)
	}

	now := r.now().UTC()
	patch := fleet.RuntimePatch{LastSeenAt: &now}

	var report statusReport
	if err := json.Unmarshal(ev.Payload, &report); err != nil {
		// Heartbeat without a structured body still counts as contact.
		if err := r.repo.UpdateDeviceRuntime(ctx, device.ID, patch); err != nil {
			return fmt.Errorf("stamping last seen for device %s: %w", device.ID, err)
		}
		return nil
	}

	patch.State = report.State
	patch.AgentVersion = report.AgentVersion

	if err := r.reconcileSnapshot(ctx, device, report.Snapshot, &patch); err != nil {
		return err
	}

	if err := r.repo.UpdateDeviceRuntime(ctx, device.ID, patch); err != nil {
		return fmt.Errorf("updating runtime for device %s: %w", device.ID, err)
	}

	if reason, drifted := r.detectDrift(device, report); drifted {
		return r.pushUpdate(ctx, device, reason)
	}
	return nil
}

// reconcileSnapshot folds the reported active snapshot into the patch.
//
// No reported snapshot clears a stale active snapshot. A reported
// snapshot becomes active only if it still exists; a reference to a
// vanished snapshot leaves the current active snapshot unchanged.
func (r *Reconciler) reconcileSnapshot(ctx context.Context, device *fleet.Device, reported *string, patch *fleet.RuntimePatch) error {
	if reported == nil {
		if device.ActiveSnapshotID != nil {
			patch.ClearActiveSnapshot = true
		}
		return nil
	}

	if device.ActiveSnapshotID != nil && *device.ActiveSnapshotID == *reported {
		return nil
	}

	exists, err := r.repo.SnapshotExists(ctx, *reported)
	if err != nil {
		return fmt.Errorf("checking snapshot %s: %w", *reported, err)
	}
	if exists {
		patch.ActiveSnapshotID = reported
	}
	return nil
}

// detectDrift compares the report against the device's assigned targets.
// Returns the first trigger that fired, for telemetry.
func (r *Reconciler) detectDrift(device *fleet.Device, report statusReport) (string, bool) {
	if report.State != nil && *report.State == fleet.StateUnknown {
		return "state_unknown", true
	}
	if report.Project != nil && !equalOptional(report.Project, device.ProjectID) {
		return "project_mismatch", true
	}
	if report.Snapshot != nil && !equalOptional(report.Snapshot, device.TargetSnapshotID) {
		return "snapshot_mismatch", true
	}
	if report.Settings != nil && *report.Settings != device.SettingsHash {
		return "settings_mismatch", true
	}
	return "", false
}

// pushUpdate dispatches exactly one authoritative update command.
func (r *Reconciler) pushUpdate(ctx context.Context, device *fleet.Device, reason string) error {
	body, err := json.Marshal(updatePayload{
		Project:  device.ProjectID,
		Snapshot: device.TargetSnapshotID,
		Settings: device.SettingsHash,
		Mode:     device.Mode,
		Licensed: device.Licensed,
	})
	if err != nil {
		return fmt.Errorf("encoding update for device %s: %w", device.ID, err)
	}

	r.recorder.DriftDetected(device.TeamID, device.ID, reason)
	r.logger.Info("device drift detected",
		"team_id", device.TeamID, "device_id", device.ID, "reason", reason)

	return r.dispatcher.SendCommand(ctx, device.TeamID, device.ID, "update", body)
}

// equalOptional compares a reported value against a nullable target.
func equalOptional(reported, target *string) bool {
	if target == nil {
		return false
	}
	return *reported == *target
}
