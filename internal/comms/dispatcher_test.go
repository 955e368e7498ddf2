package comms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

func newTestDispatcher(pub *fakePublisher, rec Recorder, timeout time.Duration) *Dispatcher {
	return NewDispatcher(pub, rec, testLogger(), timeout)
}

func decodeCommand(t *testing.T, payload []byte) CommandMessage {
	t.Helper()
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decoding command envelope: %v", err)
	}
	return msg
}

func TestSendCommand(t *testing.T) {
	pub := &fakePublisher{}
	d := newTestDispatcher(pub, nil, 0)

	payload := json.RawMessage(`{"restart":true}`)
	if err := d.SendCommand(context.Background(), "team-a", "dev-1", "restart", payload); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	pubs := pub.published()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	if pubs[0].topic != "ff/v1/team-a/d/dev-1/command" {
		t.Errorf("topic = %q, want ff/v1/team-a/d/dev-1/command", pubs[0].topic)
	}

	msg := decodeCommand(t, pubs[0].payload)
	if msg.Command != "restart" || msg.DeviceID != "dev-1" || msg.TeamID != "team-a" {
		t.Errorf("envelope = %+v, want restart/dev-1/team-a", msg)
	}
	if msg.CorrelationData != "" || msg.ResponseTopic != "" || msg.ExpiresAt != nil {
		t.Error("fire-and-forget command carries correlation fields")
	}
}

func TestSendCommand_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	d := newTestDispatcher(pub, nil, 0)

	if err := d.SendCommand(context.Background(), "team-a", "dev-1", "restart", nil); err == nil {
		t.Error("SendCommand() error = nil, want transport error")
	}
}

func TestSendCommandToProjectDevices(t *testing.T) {
	pub := &fakePublisher{}
	d := newTestDispatcher(pub, nil, 0)

	if err := d.SendCommandToProjectDevices(context.Background(), "team-a", "proj-1", "restart", nil); err != nil {
		t.Fatalf("SendCommandToProjectDevices() error = %v", err)
	}

	pubs := pub.published()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	if pubs[0].topic != "ff/v1/team-a/p/proj-1/command" {
		t.Errorf("topic = %q, want ff/v1/team-a/p/proj-1/command", pubs[0].topic)
	}

	msg := decodeCommand(t, pubs[0].payload)
	if msg.DeviceID != "" {
		t.Errorf("broadcast envelope names device %q, want none", msg.DeviceID)
	}
}

func TestSendCommandAwaitReply_RoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	rec := &countingRecorder{}
	d := newTestDispatcher(pub, rec, time.Minute)

	type result struct {
		reply json.RawMessage
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := d.SendCommandAwaitReply(context.Background(), "team-a", "dev-1", "capabilities", nil)
		done <- result{reply, err}
	}()

	// Wait for the command to hit the wire, then answer it.
	var sent CommandMessage
	deadline := time.After(time.Second)
	for {
		if pubs := pub.published(); len(pubs) == 1 {
			sent = decodeCommand(t, pubs[0].payload)
			break
		}
		select {
		case <-deadline:
			t.Fatal("command never published")
		case <-time.After(time.Millisecond):
		}
	}

	if sent.CorrelationData == "" {
		t.Fatal("reply-awaiting command has no correlation token")
	}
	if sent.ResponseTopic != "ff/v1/team-a/d/dev-1/response" {
		t.Errorf("response topic = %q, want ff/v1/team-a/d/dev-1/response", sent.ResponseTopic)
	}
	if sent.ExpiresAt == nil {
		t.Error("reply-awaiting command has no expiry")
	}

	response, _ := json.Marshal(ResponseMessage{
		Command:         "capabilities",
		CorrelationData: sent.CorrelationData,
		Payload:         json.RawMessage(`{"editor":true}`),
	})
	d.HandleResponse(mqtt.DeviceResponseEvent{TeamID: "team-a", DeviceID: "dev-1", Payload: response})

	res := <-done
	if res.err != nil {
		t.Fatalf("SendCommandAwaitReply() error = %v", res.err)
	}
	if string(res.reply) != `{"editor":true}` {
		t.Errorf("reply = %s, want {\"editor\":true}", res.reply)
	}

	// The monitor entry is consumed; a duplicate reply is metered, not
	// re-resolved.
	d.HandleResponse(mqtt.DeviceResponseEvent{TeamID: "team-a", DeviceID: "dev-1", Payload: response})
	if got := rec.duplicateCount(); got != 1 {
		t.Errorf("duplicate responses metered = %d, want 1", got)
	}
	if n := d.monitor.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0", n)
	}
}

func TestSendCommandAwaitReply_Timeout(t *testing.T) {
	pub := &fakePublisher{}
	rec := &countingRecorder{}
	d := newTestDispatcher(pub, rec, 20*time.Millisecond)

	_, err := d.SendCommandAwaitReply(context.Background(), "team-a", "dev-1", "capabilities", nil)
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("SendCommandAwaitReply() error = %v, want ErrCommandTimeout", err)
	}
	if got := rec.timeoutCount(); got != 1 {
		t.Errorf("timeouts metered = %d, want 1", got)
	}

	// A reply arriving after the timeout finds no monitor and is dropped.
	sent := decodeCommand(t, pub.published()[0].payload)
	late, _ := json.Marshal(ResponseMessage{
		Command:         "capabilities",
		CorrelationData: sent.CorrelationData,
		Payload:         json.RawMessage(`{}`),
	})
	d.HandleResponse(mqtt.DeviceResponseEvent{TeamID: "team-a", DeviceID: "dev-1", Payload: late})
	if got := rec.duplicateCount(); got != 1 {
		t.Errorf("duplicate responses metered = %d, want 1", got)
	}
}

func TestSendCommandAwaitReply_PublishErrorCleansUp(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	d := newTestDispatcher(pub, nil, time.Minute)

	if _, err := d.SendCommandAwaitReply(context.Background(), "team-a", "dev-1", "ping", nil); err == nil {
		t.Fatal("SendCommandAwaitReply() error = nil, want transport error")
	}
	if n := d.monitor.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0 after failed publish", n)
	}
}

func TestSendCommandAwaitReply_ContextCancel(t *testing.T) {
	pub := &fakePublisher{}
	d := newTestDispatcher(pub, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.SendCommandAwaitReply(ctx, "team-a", "dev-1", "ping", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SendCommandAwaitReply() error = %v, want context.Canceled", err)
	}
	if n := d.monitor.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0 after cancellation", n)
	}
}

func TestHandleResponse_Malformed(t *testing.T) {
	rec := &countingRecorder{}
	d := newTestDispatcher(&fakePublisher{}, rec, 0)

	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"command":"ping"}`),
		[]byte(`{"correlationData":"tok-1"}`),
	}
	for _, payload := range cases {
		d.HandleResponse(mqtt.DeviceResponseEvent{TeamID: "team-a", DeviceID: "dev-1", Payload: payload})
	}

	// Malformed replies are dropped before correlation lookup.
	if got := rec.duplicateCount(); got != 0 {
		t.Errorf("duplicate responses metered = %d, want 0 for malformed replies", got)
	}
}

func TestEditorCommands(t *testing.T) {
	pub := &fakePublisher{}
	d := newTestDispatcher(pub, nil, 30*time.Millisecond)

	if err := d.DisableEditor(context.Background(), "team-a", "dev-1"); err != nil {
		t.Fatalf("DisableEditor() error = %v", err)
	}
	msg := decodeCommand(t, pub.published()[0].payload)
	if msg.Command != "stopEditor" {
		t.Errorf("command = %q, want stopEditor", msg.Command)
	}

	// EnableEditor awaits a reply; with no device it times out.
	if _, err := d.EnableEditor(context.Background(), "team-a", "dev-1", nil); !errors.Is(err, ErrCommandTimeout) {
		t.Errorf("EnableEditor() error = %v, want ErrCommandTimeout", err)
	}
	msg = decodeCommand(t, pub.published()[1].payload)
	if msg.Command != "startEditor" {
		t.Errorf("command = %q, want startEditor", msg.Command)
	}
}
