package comms

import (
	"context"
	"sync"

	"github.com/forgefleet/forge-core/internal/fleet"
	"github.com/forgefleet/forge-core/internal/infrastructure/config"
	"github.com/forgefleet/forge-core/internal/infrastructure/logging"
)

// Shared test fakes for the comms package.

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}

type publishedMessage struct {
	topic   string
	payload []byte
}

// fakePublisher records publishes and can simulate transport failure.
type fakePublisher struct {
	mu   sync.Mutex
	pubs []publishedMessage
	err  error
}

func (f *fakePublisher) PublishDefault(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pubs = append(f.pubs, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.pubs))
	copy(out, f.pubs)
	return out
}

// countingRecorder tallies telemetry events.
type countingRecorder struct {
	mu         sync.Mutex
	sent       int
	resolved   int
	timedOut   int
	duplicates int
	drift      []string
}

func (r *countingRecorder) CommandSent(string, string, string) {
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
}

func (r *countingRecorder) CommandResolved(string, string, string) {
	r.mu.Lock()
	r.resolved++
	r.mu.Unlock()
}

func (r *countingRecorder) CommandTimedOut(string, string, string) {
	r.mu.Lock()
	r.timedOut++
	r.mu.Unlock()
}

func (r *countingRecorder) DuplicateResponse(string, string) {
	r.mu.Lock()
	r.duplicates++
	r.mu.Unlock()
}

func (r *countingRecorder) DriftDetected(_, _, reason string) {
	r.mu.Lock()
	r.drift = append(r.drift, reason)
	r.mu.Unlock()
}

func (r *countingRecorder) duplicateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duplicates
}

func (r *countingRecorder) timeoutCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedOut
}

type appliedPatch struct {
	deviceID string
	patch    fleet.RuntimePatch
}

// fakeRepo is an in-memory fleet.Repository recording runtime patches.
type fakeRepo struct {
	mu        sync.Mutex
	devices   map[string]*fleet.Device
	snapshots map[string]bool
	patches   []appliedPatch
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		devices:   make(map[string]*fleet.Device),
		snapshots: make(map[string]bool),
	}
}

func (r *fakeRepo) DeviceByID(_ context.Context, id string) (*fleet.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[id]
	if !ok {
		return nil, fleet.ErrDeviceNotFound
	}
	clone := *device
	return &clone, nil
}

func (r *fakeRepo) SnapshotExists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[id], nil
}

func (r *fakeRepo) UpdateDeviceRuntime(_ context.Context, id string, patch fleet.RuntimePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return fleet.ErrDeviceNotFound
	}
	r.patches = append(r.patches, appliedPatch{deviceID: id, patch: patch})
	return nil
}

func (r *fakeRepo) appliedPatches() []appliedPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]appliedPatch, len(r.patches))
	copy(out, r.patches)
	return out
}

func (r *fakeRepo) TeamByID(context.Context, string) (*fleet.Team, error) {
	return nil, fleet.ErrTeamNotFound
}

func (r *fakeRepo) ProjectByID(context.Context, string) (*fleet.Project, error) {
	return nil, fleet.ErrProjectNotFound
}

func (r *fakeRepo) SnapshotByID(context.Context, string) (*fleet.Snapshot, error) {
	return nil, fleet.ErrSnapshotNotFound
}

func (r *fakeRepo) DevicesByProject(context.Context, string) ([]fleet.Device, error) {
	return nil, nil
}

func (r *fakeRepo) CreateTeam(context.Context, *fleet.Team) error         { return nil }
func (r *fakeRepo) CreateProject(context.Context, *fleet.Project) error   { return nil }
func (r *fakeRepo) CreateDevice(context.Context, *fleet.Device) error     { return nil }
func (r *fakeRepo) CreateSnapshot(context.Context, *fleet.Snapshot) error { return nil }

func (r *fakeRepo) DeviceAssignedToProject(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r *fakeRepo) DeviceSharesTeamWithProject(context.Context, string, string) (bool, error) {
	return false, nil
}
