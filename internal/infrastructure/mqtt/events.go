package mqtt

// Inbound events, demultiplexed from raw broker messages by topic shape.
//
// Exactly one consumer exists per event kind: the status reconciler for
// status events, the command dispatcher for response events, and the log
// relay for log events. Messages whose topic does not map to an event
// kind are dropped silently.

// Event is a typed inbound broker message.
type Event interface {
	// event is a marker restricting implementations to this package.
	event()
}

// ProjectStatusEvent is a status report from a project runtime.
type ProjectStatusEvent struct {
	TeamID    string
	ProjectID string
	Payload   []byte
}

// DeviceStatusEvent is a status report from a device.
type DeviceStatusEvent struct {
	TeamID   string
	DeviceID string
	Payload  []byte
}

// DeviceLogEvent is a single log line from a device.
type DeviceLogEvent struct {
	TeamID   string
	DeviceID string
	Payload  []byte
}

// DeviceResponseEvent is a command reply from a device.
type DeviceResponseEvent struct {
	TeamID   string
	DeviceID string
	Payload  []byte
}

func (ProjectStatusEvent) event()  {}
func (DeviceStatusEvent) event()   {}
func (DeviceLogEvent) event()      {}
func (DeviceResponseEvent) event() {}

// ParseEvent routes an inbound message into a typed event by topic shape.
//
// Returns false for unrecognised shapes: malformed topics, broadcast
// topics (the platform never consumes those), and owner/kind combinations
// with no consumer.
func ParseEvent(topic string, payload []byte) (Event, bool) {
	addr, ok := ParseAddress(topic)
	if !ok {
		return nil, false
	}

	switch {
	case addr.Owner == OwnerProject && addr.Kind == KindStatus:
		return ProjectStatusEvent{TeamID: addr.TeamID, ProjectID: addr.OwnerID, Payload: payload}, true
	case addr.Owner == OwnerDevice && addr.Kind == KindStatus:
		return DeviceStatusEvent{TeamID: addr.TeamID, DeviceID: addr.OwnerID, Payload: payload}, true
	case addr.Owner == OwnerDevice && addr.Kind == KindLogs:
		return DeviceLogEvent{TeamID: addr.TeamID, DeviceID: addr.OwnerID, Payload: payload}, true
	case addr.Owner == OwnerDevice && addr.Kind == KindResponse:
		return DeviceResponseEvent{TeamID: addr.TeamID, DeviceID: addr.OwnerID, Payload: payload}, true
	default:
		return nil, false
	}
}
