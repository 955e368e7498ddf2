package acl

import (
	"context"
	"regexp"
	"testing"
)

// fakeChecker answers relation queries from fixed maps.
type fakeChecker struct {
	assigned map[string]string // deviceID -> projectID
	sameTeam map[string]bool   // deviceID+"/"+projectID -> related
	err      error
}

func (f *fakeChecker) DeviceAssignedToProject(_ context.Context, deviceID, projectID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.assigned[deviceID] == projectID, nil
}

func (f *fakeChecker) DeviceSharesTeamWithProject(_ context.Context, deviceID, projectID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.assigned[deviceID] == projectID {
		return true, nil
	}
	return f.sameTeam[deviceID+"/"+projectID], nil
}

func defaultTestRegistry() *Registry {
	return NewDefaultRegistry(&fakeChecker{
		assigned: map[string]string{"dev-1": "proj-1"},
		sameTeam: map[string]bool{"dev-2/proj-1": true},
	})
}

func TestVerify_Platform(t *testing.T) {
	r := defaultTestRegistry()
	ctx := context.Background()

	topics := []string{
		"ff/v1/team-a/d/dev-1/command",
		"ff/v1/team-b/l/proj-9/status",
		"ff/v1/anything/p/at/all",
	}
	for _, topic := range topics {
		if !r.Verify(ctx, "forge_platform", topic, DirectionPublish) {
			t.Errorf("platform publish to %q denied, want allowed", topic)
		}
		if !r.Verify(ctx, "forge_platform", topic, DirectionSubscribe) {
			t.Errorf("platform subscribe to %q denied, want allowed", topic)
		}
	}

	// Shared envelopes require the group to equal the credential's third
	// segment, which the platform literal does not have.
	if r.Verify(ctx, "forge_platform", "$share/g/ff/v1/team-a/d/dev-1/status", DirectionSubscribe) {
		t.Error("platform shared subscribe allowed, want denied")
	}
}

func TestVerify_Device(t *testing.T) {
	r := defaultTestRegistry()
	ctx := context.Background()

	tests := []struct {
		name       string
		credential string
		topic      string
		direction  Direction
		want       bool
	}{
		{
			name:       "publish own status",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-1/status",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "publish own logs",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-1/logs",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "publish own response",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-1/response",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "publish another device's status",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-2/status",
			direction:  DirectionPublish,
			want:       false,
		},
		{
			name:       "publish own status under wrong team",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-b/d/dev-1/status",
			direction:  DirectionPublish,
			want:       false,
		},
		{
			name:       "publish a command",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-1/command",
			direction:  DirectionPublish,
			want:       false,
		},
		{
			name:       "subscribe own command topic",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-1/command",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "subscribe another device's command topic",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/d/dev-2/command",
			direction:  DirectionSubscribe,
			want:       false,
		},
		{
			name:       "shared subscribe to assigned project broadcast",
			credential: "device:team-a:dev-1",
			topic:      "$share/dev-1/ff/v1/team-a/p/proj-1/command",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "plain subscribe to assigned project broadcast",
			credential: "device:team-a:dev-1",
			topic:      "ff/v1/team-a/p/proj-1/command",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "shared subscribe to unassigned project broadcast",
			credential: "device:team-a:dev-2",
			topic:      "$share/dev-2/ff/v1/team-a/p/proj-1/command",
			direction:  DirectionSubscribe,
			want:       false,
		},
		{
			name:       "shared group mismatch",
			credential: "device:team-a:dev-1",
			topic:      "$share/other/ff/v1/team-a/p/proj-1/command",
			direction:  DirectionSubscribe,
			want:       false,
		},
		{
			name:       "shared subscribe to own command topic",
			credential: "device:team-a:dev-1",
			topic:      "$share/dev-1/ff/v1/team-a/d/dev-1/command",
			direction:  DirectionSubscribe,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Verify(ctx, tt.credential, tt.topic, tt.direction)
			if got != tt.want {
				t.Errorf("Verify(%q, %q, %s) = %v, want %v",
					tt.credential, tt.topic, tt.direction, got, tt.want)
			}
		})
	}
}

func TestVerify_Project(t *testing.T) {
	r := defaultTestRegistry()
	ctx := context.Background()

	tests := []struct {
		name       string
		credential string
		topic      string
		direction  Direction
		want       bool
	}{
		{
			name:       "publish own status",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/l/proj-1/status",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "publish another project's status",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/l/proj-2/status",
			direction:  DirectionPublish,
			want:       false,
		},
		{
			name:       "command an assigned device",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/d/dev-1/command",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "command a same-team device",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/d/dev-2/command",
			direction:  DirectionPublish,
			want:       true,
		},
		{
			name:       "command an unrelated device",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/d/dev-9/command",
			direction:  DirectionPublish,
			want:       false,
		},
		{
			name:       "subscribe own command topic",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/l/proj-1/command",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "subscribe team device status",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/d/dev-2/status",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "subscribe team device response",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-a/d/dev-2/response",
			direction:  DirectionSubscribe,
			want:       true,
		},
		{
			name:       "subscribe another team's device status",
			credential: "project:team-a:proj-1",
			topic:      "ff/v1/team-b/d/dev-2/status",
			direction:  DirectionSubscribe,
			want:       false,
		},
		{
			name:       "shared subscribe to device traffic",
			credential: "project:team-a:proj-1",
			topic:      "$share/proj-1/ff/v1/team-a/d/dev-2/status",
			direction:  DirectionSubscribe,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Verify(ctx, tt.credential, tt.topic, tt.direction)
			if got != tt.want {
				t.Errorf("Verify(%q, %q, %s) = %v, want %v",
					tt.credential, tt.topic, tt.direction, got, tt.want)
			}
		})
	}
}

func TestVerify_UnknownIdentityAlwaysDenied(t *testing.T) {
	r := defaultTestRegistry()
	ctx := context.Background()

	credentials := []string{"", "nobody", "operator:team-a:op-1", "device:team-a"}
	for _, cred := range credentials {
		if r.Verify(ctx, cred, "ff/v1/team-a/d/dev-1/status", DirectionPublish) {
			t.Errorf("Verify(%q) publish = true, want denied", cred)
		}
		if r.Verify(ctx, cred, "ff/v1/team-a/d/dev-1/command", DirectionSubscribe) {
			t.Errorf("Verify(%q) subscribe = true, want denied", cred)
		}
	}
}

func TestVerify_EmptyRegistryDeniesAll(t *testing.T) {
	r := NewRegistry()
	if r.Verify(context.Background(), "forge_platform", "ff/v1/team-a/d/dev-1/status", DirectionPublish) {
		t.Error("empty registry allowed platform publish, want denied")
	}
}

func TestVerify_FirstMatchWins(t *testing.T) {
	// A deny-by-predicate first rule shadows a would-grant second rule
	// for the same topic.
	r := NewRegistry()
	pattern := regexp.MustCompile(`^ff/v1/([^/]+)/d/([^/]+)/status$`)
	r.AddRule(ClassDevice, DirectionPublish, Rule{
		Pattern: pattern,
		Verify: func(context.Context, []string, Identity) bool {
			return false
		},
	})
	r.AddRule(ClassDevice, DirectionPublish, Rule{Pattern: pattern})

	if r.Verify(context.Background(), "device:team-a:dev-1", "ff/v1/team-a/d/dev-1/status", DirectionPublish) {
		t.Error("second rule applied after first match denied, want first-match-wins")
	}
}

func TestVerify_AddRuleExtension(t *testing.T) {
	// An extension module appends a rule granting devices a new topic.
	r := defaultTestRegistry()
	r.AddRule(ClassDevice, DirectionPublish, Rule{
		Pattern: regexp.MustCompile(`^ff/v1/([^/]+)/d/([^/]+)/metrics$`),
		Verify:  verifyTeamAndObject,
	})

	ctx := context.Background()
	if !r.Verify(ctx, "device:team-a:dev-1", "ff/v1/team-a/d/dev-1/metrics", DirectionPublish) {
		t.Error("extension rule not applied, want allowed")
	}
	if r.Verify(ctx, "device:team-a:dev-1", "ff/v1/team-a/d/dev-2/metrics", DirectionPublish) {
		t.Error("extension rule granted another device's topic, want denied")
	}
}

func TestVerify_CheckerErrorDenies(t *testing.T) {
	r := NewDefaultRegistry(&fakeChecker{err: context.DeadlineExceeded})
	ctx := context.Background()

	if r.Verify(ctx, "project:team-a:proj-1", "ff/v1/team-a/d/dev-1/command", DirectionPublish) {
		t.Error("relation lookup error granted access, want denied")
	}
	if r.Verify(ctx, "device:team-a:dev-1", "$share/dev-1/ff/v1/team-a/p/proj-1/command", DirectionSubscribe) {
		t.Error("relation lookup error granted shared subscribe, want denied")
	}
}
