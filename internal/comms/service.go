package comms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

// Broker is the transport surface the comms service needs.
// mqtt.Client satisfies this interface.
type Broker interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Service wires the dispatcher, reconciler, and log relay to the broker.
//
// It owns the platform-side wildcard subscriptions and demultiplexes
// inbound traffic into typed events, handing each kind to its single
// consumer: device status to the reconciler, device responses to the
// dispatcher, device logs to the relay. Messages with unrecognised
// topic shapes are dropped silently.
type Service struct {
	broker     Broker
	dispatcher *Dispatcher
	reconciler *Reconciler
	relay      *LogRelay
	logger     *logging.Logger
	qos        byte

	// ctx bounds the lookups done by inbound handlers; set on Start.
	ctx context.Context
}

// NewService creates the comms service around an existing dispatcher,
// reconciler, and relay.
func NewService(broker Broker, dispatcher *Dispatcher, reconciler *Reconciler, relay *LogRelay, logger *logging.Logger, qos byte) *Service {
	return &Service{
		broker:     broker,
		dispatcher: dispatcher,
		reconciler: reconciler,
		relay:      relay,
		logger:     logger.With("component", "comms"),
		qos:        qos,
		ctx:        context.Background(),
	}
}

// Dispatcher returns the command dispatcher for direct use by callers
// outside the broker path (the HTTP API).
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Relay returns the log fan-out relay.
func (s *Service) Relay() *LogRelay {
	return s.relay
}

// Start subscribes to the platform's fixed wildcard topic set.
//
// ctx bounds the storage lookups performed by inbound message handlers;
// cancel it during shutdown to fail pending lookups fast. Subscriptions
// are restored by the transport on reconnect.
func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx

	topics := mqtt.Topics{}
	patterns := []string{
		topics.AllDeviceStatus(),
		topics.AllDeviceLogs(),
		topics.AllDeviceResponses(),
		topics.AllProjectStatus(),
	}

	for _, pattern := range patterns {
		if err := s.broker.Subscribe(pattern, s.qos, s.handleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}

	s.logger.Info("comms service started", "subscriptions", len(patterns))
	return nil
}

// handleMessage routes one inbound broker message.
func (s *Service) handleMessage(topic string, payload []byte) error {
	event, ok := mqtt.ParseEvent(topic, payload)
	if !ok {
		s.logger.Debug("dropping message with unrecognised topic", "topic", topic)
		return nil
	}

	switch ev := event.(type) {
	case mqtt.DeviceStatusEvent:
		return s.reconciler.HandleStatus(s.ctx, ev)
	case mqtt.DeviceResponseEvent:
		s.dispatcher.HandleResponse(ev)
	case mqtt.DeviceLogEvent:
		s.relay.HandleLog(s.ctx, ev)
	case mqtt.ProjectStatusEvent:
		s.handleProjectStatus(ev)
	}
	return nil
}

// handleProjectStatus records a project runtime's liveness report.
// Project runtimes have no persisted runtime state to reconcile; the
// report is surfaced through logging only.
func (s *Service) handleProjectStatus(ev mqtt.ProjectStatusEvent) {
	var report struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(ev.Payload, &report); err != nil {
		s.logger.Debug("dropping malformed project status",
			"team_id", ev.TeamID, "project_id", ev.ProjectID)
		return
	}
	s.logger.Debug("project status",
		"team_id", ev.TeamID, "project_id", ev.ProjectID, "state", report.State)
}
