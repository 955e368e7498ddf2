package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/forgefleet/forge-core/internal/fleet"
	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
	"github.com/forgefleet/forge-core/internal/infrastructure/mqtt"
)

// logCacheSize bounds the per-device cache of recent log lines.
// A newly attached viewer replays at most this many lines.
const logCacheSize = 10

// Viewer is one consumer of a device's log stream.
// Send failures detach the viewer; the relay never retries a line.
type Viewer interface {
	Send(line []byte) error
}

// logSession aggregates the viewers and recent lines for one device.
// Owned exclusively by the relay; viewers are membership only, their
// lifecycle belongs to the caller.
type logSession struct {
	teamID  string
	cache   [][]byte
	viewers map[Viewer]struct{}
}

// append adds a line, evicting the oldest past capacity.
func (s *logSession) append(line []byte) {
	if len(s.cache) == logCacheSize {
		s.cache = append(s.cache[1:], line)
		return
	}
	s.cache = append(s.cache, line)
}

// LogRelay fans device log lines out to attached viewers.
//
// A device streams logs only while at least one viewer is attached: the
// first attach sends the device a startLog command, the last detach
// sends stopLog and destroys the session. Log traffic for a device with
// no session is orphaned; the relay answers it with a best-effort
// stopLog so the device stops publishing.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type LogRelay struct {
	repo       fleet.Repository
	dispatcher *Dispatcher
	logger     *logging.Logger

	mu       sync.Mutex
	sessions map[string]*logSession // deviceID -> session
}

// NewLogRelay creates a log relay with no active sessions.
func NewLogRelay(repo fleet.Repository, dispatcher *Dispatcher, logger *logging.Logger) *LogRelay {
	return &LogRelay{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.With("component", "log_relay"),
		sessions:   make(map[string]*logSession),
	}
}

// StreamLogs attaches a viewer to a device's log stream.
//
// The first viewer for a device creates its session and commands the
// device to start publishing logs. Every attach immediately replays the
// session's cached lines, in arrival order, to the new viewer only.
// The caller must pair each successful attach with a Detach.
func (r *LogRelay) StreamLogs(ctx context.Context, teamID, deviceID string, v Viewer) error {
	device, err := r.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("looking up device %s: %w", deviceID, err)
	}
	if device.TeamID != teamID {
		return ErrDeviceNotInTeam
	}

	r.mu.Lock()
	session, ok := r.sessions[deviceID]
	if !ok {
		session = &logSession{
			teamID:  teamID,
			viewers: make(map[Viewer]struct{}),
		}
		r.sessions[deviceID] = session
	}
	session.viewers[v] = struct{}{}
	replay := make([][]byte, len(session.cache))
	copy(replay, session.cache)
	r.mu.Unlock()

	if !ok {
		if err := r.dispatcher.SendCommand(ctx, teamID, deviceID, "startLog", nil); err != nil {
			r.logger.Warn("failed to start device log stream",
				"team_id", teamID, "device_id", deviceID, "error", err)
		}
	}

	for _, line := range replay {
		if err := v.Send(line); err != nil {
			r.Detach(ctx, deviceID, v)
			return fmt.Errorf("replaying cached logs to viewer: %w", err)
		}
	}

	r.logger.Debug("viewer attached",
		"team_id", teamID, "device_id", deviceID, "replayed", len(replay))
	return nil
}

// Detach removes a viewer from a device's log stream.
//
// When the last viewer leaves, the session is destroyed and the device
// is told to stop publishing logs.
func (r *LogRelay) Detach(ctx context.Context, deviceID string, v Viewer) {
	r.mu.Lock()
	session, ok := r.sessions[deviceID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(session.viewers, v)
	last := len(session.viewers) == 0
	if last {
		delete(r.sessions, deviceID)
	}
	teamID := session.teamID
	r.mu.Unlock()

	if last {
		if err := r.dispatcher.SendCommand(ctx, teamID, deviceID, "stopLog", nil); err != nil {
			r.logger.Warn("failed to stop device log stream",
				"team_id", teamID, "device_id", deviceID, "error", err)
		}
		r.logger.Debug("log session destroyed", "team_id", teamID, "device_id", deviceID)
	}
}

// HandleLog processes an inbound device log line.
//
// Lines for an active session are cached and broadcast to every current
// viewer; a viewer whose Send fails is detached. Lines for a device with
// no session are orphaned traffic: the device is told to stop, errors
// swallowed.
func (r *LogRelay) HandleLog(ctx context.Context, ev mqtt.DeviceLogEvent) {
	r.mu.Lock()
	session, ok := r.sessions[ev.DeviceID]
	if !ok {
		r.mu.Unlock()
		r.stopOrphan(ctx, ev.DeviceID)
		return
	}
	session.append(ev.Payload)
	viewers := make([]Viewer, 0, len(session.viewers))
	for v := range session.viewers {
		viewers = append(viewers, v)
	}
	r.mu.Unlock()

	for _, v := range viewers {
		if err := v.Send(ev.Payload); err != nil {
			r.logger.Debug("detaching viewer after send failure",
				"device_id", ev.DeviceID, "error", err)
			r.Detach(ctx, ev.DeviceID, v)
		}
	}
}

// SessionCount returns the number of active log sessions.
func (r *LogRelay) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// stopOrphan tells a device with no session to stop publishing logs.
func (r *LogRelay) stopOrphan(ctx context.Context, deviceID string) {
	device, err := r.repo.DeviceByID(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, fleet.ErrDeviceNotFound) {
			r.logger.Debug("orphan log lookup failed", "device_id", deviceID, "error", err)
		}
		return
	}

	if err := r.dispatcher.SendCommand(ctx, device.TeamID, device.ID, "stopLog", nil); err != nil {
		r.logger.Debug("failed to stop orphaned log stream",
			"device_id", deviceID, "error", err)
	}
}
