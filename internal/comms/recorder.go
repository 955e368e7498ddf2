package comms

// Recorder receives operational events from the messaging core for
// telemetry. Implementations must be safe for concurrent use and must
// never block the caller for long; recording is best-effort.
type Recorder interface {
	// CommandSent records an outbound device command.
	CommandSent(teamID, deviceID, command string)

	// CommandResolved records a reply-awaiting command completed by a
	// correlated device response.
	CommandResolved(teamID, deviceID, command string)

	// CommandTimedOut records a reply-awaiting command that expired
	// before the device responded.
	CommandTimedOut(teamID, deviceID, command string)

	// DuplicateResponse records a device response whose correlation token
	// matched no in-flight command. Stale and duplicate replies both land
	// here.
	DuplicateResponse(teamID, deviceID string)

	// DriftDetected records a device status report that triggered a
	// corrective update command.
	DriftDetected(teamID, deviceID, reason string)
}

// NopRecorder discards all events. Used when telemetry is disabled.
type NopRecorder struct{}

func (NopRecorder) CommandSent(string, string, string)     {}
func (NopRecorder) CommandResolved(string, string, string) {}
func (NopRecorder) CommandTimedOut(string, string, string) {}
func (NopRecorder) DuplicateResponse(string, string)       {}
func (NopRecorder) DriftDetected(string, string, string)   {}
