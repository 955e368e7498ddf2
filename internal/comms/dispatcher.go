package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

// DefaultReplyTimeout is how long a reply-awaiting command waits for the
// device before failing with ErrCommandTimeout.
const DefaultReplyTimeout = 5 * time.Second

// Publisher is the broker surface the dispatcher needs.
// mqtt.Client satisfies this interface.
type Publisher interface {
	// PublishDefault publishes with the configured default QoS, not retained.
	// A nil return confirms the local publish handshake, never device receipt.
	PublishDefault(topic string, payload []byte) error
}

// CommandMessage is the wire payload for an outbound device command.
//
// Fire-and-forget commands omit the correlation fields. Reply-awaiting
// commands carry a correlation token, an expiry, and the response topic
// the device must publish its reply to. Constructed fresh per send,
// never mutated after construction.
type CommandMessage struct {
	Command         string          `json:"command"`
	DeviceID        string          `json:"deviceId,omitempty"`
	TeamID          string          `json:"teamId"`
	CorrelationData string          `json:"correlationData,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       *time.Time      `json:"expiresAt,omitempty"`
	ResponseTopic   string          `json:"responseTopic,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// ResponseMessage is the wire payload of a device's command reply.
type ResponseMessage struct {
	Command         string          `json:"command"`
	CorrelationData string          `json:"correlationData"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// Dispatcher sends commands to devices and correlates their replies.
//
// Three send modes, increasing in strength of guarantee: fire-and-forget
// to one device, fire-and-forget broadcast to a project's devices, and
// request/reply with a correlation token and per-command timeout. None of
// them confirm device execution; the strongest guarantee is a correlated
// reply.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Dispatcher struct {
	publisher Publisher
	monitor   *ResponseMonitor
	recorder  Recorder
	logger    *logging.Logger
	topics    mqtt.Topics

	replyTimeout time.Duration
	now          func() time.Time
}

// NewDispatcher creates a command dispatcher.
// A zero replyTimeout selects DefaultReplyTimeout.
func NewDispatcher(publisher Publisher, recorder Recorder, logger *logging.Logger, replyTimeout time.Duration) *Dispatcher {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Dispatcher{
		publisher:    publisher,
		monitor:      NewResponseMonitor(),
		recorder:     recorder,
		logger:       logger.With("component", "dispatcher"),
		replyTimeout: replyTimeout,
		now:          time.Now,
	}
}

// SendCommand publishes a fire-and-forget command to a device.
//
// A nil return reflects only the local publish handshake; the device may
// never receive or execute the command.
func (d *Dispatcher) SendCommand(_ context.Context, teamID, deviceID, command string, payload json.RawMessage) error {
	msg := CommandMessage{
		Command:   command,
		DeviceID:  deviceID,
		TeamID:    teamID,
		CreatedAt: d.now().UTC(),
		Payload:   payload,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding command %q: %w", command, err)
	}

	if err := d.publisher.PublishDefault(d.topics.DeviceCommand(teamID, deviceID), body); err != nil {
		return fmt.Errorf("publishing command %q to device %s: %w", command, deviceID, err)
	}

	d.recorder.CommandSent(teamID, deviceID, command)
	d.logger.Debug("command sent",
		"team_id", teamID, "device_id", deviceID, "command", command)
	return nil
}

// SendCommandAwaitReply publishes a command and blocks until the device's
// correlated reply arrives, the timeout expires, or ctx is cancelled.
//
// The reply is matched by a freshly generated correlation token and the
// command name; the returned payload is the device's raw reply payload.
func (d *Dispatcher) SendCommandAwaitReply(ctx context.Context, teamID, deviceID, command string, payload json.RawMessage) (json.RawMessage, error) {
	token := uuid.NewString()
	createdAt := d.now().UTC()
	expiresAt := createdAt.Add(d.replyTimeout)

	msg := CommandMessage{
		Command:         command,
		DeviceID:        deviceID,
		TeamID:          teamID,
		CorrelationData: token,
		CreatedAt:       createdAt,
		ExpiresAt:       &expiresAt,
		ResponseTopic:   d.topics.DeviceResponse(teamID, deviceID),
		Payload:         payload,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding command %q: %w", command, err)
	}

	pending := d.monitor.Track(token, command, d.replyTimeout, func() {
		d.recorder.CommandTimedOut(teamID, deviceID, command)
		d.logger.Warn("command reply timed out",
			"team_id", teamID, "device_id", deviceID, "command", command)
	})

	if err := d.publisher.PublishDefault(d.topics.DeviceCommand(teamID, deviceID), body); err != nil {
		d.monitor.Cancel(token, err)
		return nil, fmt.Errorf("publishing command %q to device %s: %w", command, deviceID, err)
	}

	d.recorder.CommandSent(teamID, deviceID, command)

	reply, err := pending.wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			d.monitor.Cancel(token, ctx.Err())
		}
		return nil, err
	}

	d.recorder.CommandResolved(teamID, deviceID, command)
	return reply, nil
}

// SendCommandToProjectDevices publishes a fire-and-forget command to the
// project's broadcast topic. The broker fans it out to every device
// currently assigned to the project; deliveries are not tracked
// individually.
func (d *Dispatcher) SendCommandToProjectDevices(_ context.Context, teamID, projectID, command string, payload json.RawMessage) error {
	msg := CommandMessage{
		Command:   command,
		TeamID:    teamID,
		CreatedAt: d.now().UTC(),
		Payload:   payload,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding command %q: %w", command, err)
	}

	if err := d.publisher.PublishDefault(d.topics.BroadcastCommand(teamID, projectID), body); err != nil {
		return fmt.Errorf("broadcasting command %q to project %s: %w", command, projectID, err)
	}

	d.logger.Debug("command broadcast",
		"team_id", teamID, "project_id", projectID, "command", command)
	return nil
}

// EnableEditor asks the device to open a developer editor tunnel and
// waits for its acknowledgement. The payload carries the tunnel
// parameters; the reply carries the device's connection details.
func (d *Dispatcher) EnableEditor(ctx context.Context, teamID, deviceID string, payload json.RawMessage) (json.RawMessage, error) {
	return d.SendCommandAwaitReply(ctx, teamID, deviceID, "startEditor", payload)
}

// DisableEditor asks the device to close its editor tunnel.
// Fire-and-forget: the device stops on its own time.
func (d *Dispatcher) DisableEditor(ctx context.Context, teamID, deviceID string) error {
	return d.SendCommand(ctx, teamID, deviceID, "stopEditor", nil)
}

// HandleResponse processes an inbound device reply.
//
// Malformed payloads and replies missing a correlation token are dropped
// silently. Tokens that match no in-flight command are stale or duplicate
// replies; they are metered, never treated as errors.
func (d *Dispatcher) HandleResponse(ev mqtt.DeviceResponseEvent) {
	var msg ResponseMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		d.logger.Debug("dropping malformed response",
			"team_id", ev.TeamID, "device_id", ev.DeviceID, "error", err)
		return
	}
	if msg.Command == "" || msg.CorrelationData == "" {
		d.logger.Debug("dropping response without correlation fields",
			"team_id", ev.TeamID, "device_id", ev.DeviceID)
		return
	}

	if !d.monitor.Resolve(msg.CorrelationData, msg.Command, msg.Payload) {
		d.recorder.DuplicateResponse(ev.TeamID, ev.DeviceID)
		d.logger.Debug("dropping stale or duplicate response",
			"team_id", ev.TeamID, "device_id", ev.DeviceID, "command", msg.Command)
	}
}
