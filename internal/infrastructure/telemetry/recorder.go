package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names for comms metering.
const (
	measurementCommands  = "commands"
	measurementResponses = "responses"
	measurementDrift     = "drift"
)

// CommandSent records an outbound device command.
func (c *Client) CommandSent(teamID, deviceID, command string) {
	c.writeCommandPoint(teamID, deviceID, command, "sent")
}

// CommandResolved records a reply-awaiting command completed by a
// correlated device response.
func (c *Client) CommandResolved(teamID, deviceID, command string) {
	c.writeCommandPoint(teamID, deviceID, command, "resolved")
}

// CommandTimedOut records a reply-awaiting command that expired before
// the device responded.
func (c *Client) CommandTimedOut(teamID, deviceID, command string) {
	c.writeCommandPoint(teamID, deviceID, command, "timed_out")
}

// DuplicateResponse records a device response that matched no in-flight
// command. Stale replies after a timeout land here too; a rising rate
// usually means the reply timeout is too tight for the fleet.
func (c *Client) DuplicateResponse(teamID, deviceID string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementResponses,
		map[string]string{
			"team_id":   teamID,
			"device_id": deviceID,
			"outcome":   "unmatched",
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// DriftDetected records a device status report that triggered a
// corrective update command.
func (c *Client) DriftDetected(teamID, deviceID, reason string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementDrift,
		map[string]string{
			"team_id":   teamID,
			"device_id": deviceID,
			"reason":    reason,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// writeCommandPoint writes one command lifecycle event.
func (c *Client) writeCommandPoint(teamID, deviceID, command, outcome string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementCommands,
		map[string]string{
			"team_id":   teamID,
			"device_id": deviceID,
			"command":   command,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
