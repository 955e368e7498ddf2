package acl

import (
	"context"
	"regexp"
)

// AssignmentChecker resolves device/project relations for rule predicates.
// fleet.Repository satisfies this interface.
type AssignmentChecker interface {
	// DeviceAssignedToProject reports whether the device is currently
	// assigned to the project.
	DeviceAssignedToProject(ctx context.Context, deviceID, projectID string) (bool, error)

	// DeviceSharesTeamWithProject reports whether the device is assigned
	// to the project, or the project belongs to the device's own team.
	DeviceSharesTeamWithProject(ctx context.Context, deviceID, projectID string) (bool, error)
}

// Topic patterns for the built-in rule sets. Capture group 1 is always
// the team id, group 2 the owner id.
var (
	patternAll            = regexp.MustCompile(`^ff/v1/.+$`)
	patternDeviceReports  = regexp.MustCompile(`^ff/v1/([^/]+)/d/([^/]+)/(?:status|logs|response)$`)
	patternDeviceCommand  = regexp.MustCompile(`^ff/v1/([^/]+)/d/([^/]+)/command$`)
	patternBroadcast      = regexp.MustCompile(`^ff/v1/([^/]+)/p/([^/]+)/command$`)
	patternProjectStatus  = regexp.MustCompile(`^ff/v1/([^/]+)/l/([^/]+)/status$`)
	patternProjectCommand = regexp.MustCompile(`^ff/v1/([^/]+)/l/([^/]+)/command$`)
)

// NewDefaultRegistry creates a registry with the built-in rule sets for
// the three identity classes installed.
//
// Rule order matters: evaluation is first-match-wins, so the exact-topic
// rules precede the relation-checked ones.
func NewDefaultRegistry(checker AssignmentChecker) *Registry {
	r := NewRegistry()

	// Platform: full access in both directions. Shared subscriptions are
	// unavailable to the platform regardless of rule flags: the identity
	// literal has no group segment, so the envelope check denies them
	// before any rule is consulted.
	r.AddRule(ClassPlatform, DirectionPublish, Rule{Pattern: patternAll})
	r.AddRule(ClassPlatform, DirectionSubscribe, Rule{Pattern: patternAll})

	// Devices publish their own status, logs and command responses.
	r.AddRule(ClassDevice, DirectionPublish, Rule{
		Pattern: patternDeviceReports,
		Verify:  verifyTeamAndObject,
	})

	// Devices subscribe to their own command topic. Never through a
	// shared subscription: each device must see every command addressed
	// to it.
	r.AddRule(ClassDevice, DirectionSubscribe, Rule{
		Pattern: patternDeviceCommand,
		Verify:  verifyTeamAndObject,
	})

	// Devices subscribe to the broadcast command topic of the project
	// they are assigned to, via the broker's shared-subscription fan-out.
	r.AddRule(ClassDevice, DirectionSubscribe, Rule{
		Pattern:        patternBroadcast,
		SharedEligible: true,
		Verify:         verifyAssigned(checker),
	})

	// Project runtimes publish their own status, and may command devices
	// they are related to (assigned, or same team).
	r.AddRule(ClassProject, DirectionPublish, Rule{
		Pattern: patternProjectStatus,
		Verify:  verifyTeamAndObject,
	})
	r.AddRule(ClassProject, DirectionPublish, Rule{
		Pattern: patternDeviceCommand,
		Verify:  verifyAssignedOrSameTeam(checker),
	})

	// Project runtimes subscribe to their own command topic and to the
	// reported traffic of devices within their team.
	r.AddRule(ClassProject, DirectionSubscribe, Rule{
		Pattern: patternProjectCommand,
		Verify:  verifyTeamAndObject,
	})
	r.AddRule(ClassProject, DirectionSubscribe, Rule{
		Pattern: patternDeviceReports,
		Verify:  verifyTeam,
	})

	return r
}

// verifyTeamAndObject requires the topic's team and owner segments to
// equal the identity's own team and object ids.
func verifyTeamAndObject(_ context.Context, captures []string, id Identity) bool {
	return captures[1] == id.TeamID && captures[2] == id.ObjectID
}

// verifyTeam requires only the topic's team segment to equal the
// identity's team id.
func verifyTeam(_ context.Context, captures []string, id Identity) bool {
	return captures[1] == id.TeamID
}

// verifyAssigned requires the identity's object to be currently assigned
// to the project named in the topic, within the identity's own team.
func verifyAssigned(checker AssignmentChecker) VerifyFunc {
	return func(ctx context.Context, captures []string, id Identity) bool {
		if captures[1] != id.TeamID {
			return false
		}
		assigned, err := checker.DeviceAssignedToProject(ctx, id.ObjectID, captures[2])
		if err != nil {
			return false
		}
		return assigned
	}
}

// verifyAssignedOrSameTeam accepts the assignment relation or, failing
// that, a project in the same team as the device (two-hop check).
func verifyAssignedOrSameTeam(checker AssignmentChecker) VerifyFunc {
	return func(ctx context.Context, captures []string, id Identity) bool {
		if captures[1] != id.TeamID {
			return false
		}
		related, err := checker.DeviceSharesTeamWithProject(ctx, captures[2], id.ObjectID)
		if err != nil {
			return false
		}
		return related
	}
}
