package mqtt

import (
	"fmt"
	"strings"
)

// TopicRoot is the prefix of every Forge Fleet broker topic.
//
// Full topic shape: ff/v1/<teamId>/<ownerKind>/<ownerId>/<messageKind>
const TopicRoot = "ff/v1"

// topicSegments is the number of slash-delimited segments in a well-formed topic.
const topicSegments = 6

// SharedPrefix marks a shared-subscription envelope:
// $share/<group>/<topic>. The broker fans each message out to exactly one
// member of the group.
const SharedPrefix = "$share/"

// OwnerKind identifies the entity a topic belongs to.
type OwnerKind string

// OwnerKind constants.
const (
	// OwnerProject is a project runtime (launcher) topic.
	OwnerProject OwnerKind = "l"

	// OwnerDevice is a device topic.
	OwnerDevice OwnerKind = "d"

	// OwnerBroadcast is a project-broadcast topic delivered to every
	// device assigned to the project.
	OwnerBroadcast OwnerKind = "p"
)

// MessageKind identifies the purpose of a topic.
type MessageKind string

// MessageKind constants.
const (
	KindCommand  MessageKind = "command"
	KindStatus   MessageKind = "status"
	KindLogs     MessageKind = "logs"
	KindResponse MessageKind = "response"
)

// Topics provides builders for Forge Fleet broker topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("team-a", "dev-1")
//	// Returns: "ff/v1/team-a/d/dev-1/command"
type Topics struct{}

// DeviceCommand returns the topic for commands to a device.
//
// Example: ff/v1/team-a/d/dev-1/command
func (Topics) DeviceCommand(teamID, deviceID string) string {
	return fmt.Sprintf("%s/%s/d/%s/command", TopicRoot, teamID, deviceID)
}

// DeviceStatus returns the topic a device reports status on.
//
// Example: ff/v1/team-a/d/dev-1/status
func (Topics) DeviceStatus(teamID, deviceID string) string {
	return fmt.Sprintf("%s/%s/d/%s/status", TopicRoot, teamID, deviceID)
}

// DeviceLogs returns the topic a device streams log lines on.
//
// Example: ff/v1/team-a/d/dev-1/logs
func (Topics) DeviceLogs(teamID, deviceID string) string {
	return fmt.Sprintf("%s/%s/d/%s/logs", TopicRoot, teamID, deviceID)
}

// DeviceResponse returns the topic a device publishes command replies on.
//
// Example: ff/v1/team-a/d/dev-1/response
func (Topics) DeviceResponse(teamID, deviceID string) string {
	return fmt.Sprintf("%s/%s/d/%s/response", TopicRoot, teamID, deviceID)
}

// ProjectCommand returns the topic for commands to a project runtime.
//
// Example: ff/v1/team-a/l/proj-1/command
func (Topics) ProjectCommand(teamID, projectID string) string {
	return fmt.Sprintf("%s/%s/l/%s/command", TopicRoot, teamID, projectID)
}

// ProjectStatus returns the topic a project runtime reports status on.
//
// Example: ff/v1/team-a/l/proj-1/status
func (Topics) ProjectStatus(teamID, projectID string) string {
	return fmt.Sprintf("%s/%s/l/%s/status", TopicRoot, teamID, projectID)
}

// BroadcastCommand returns the topic for commands fanned out to every
// device assigned to a project.
//
// Example: ff/v1/team-a/p/proj-1/command
func (Topics) BroadcastCommand(teamID, projectID string) string {
	return fmt.Sprintf("%s/%s/p/%s/command", TopicRoot, teamID, projectID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllProjectStatus returns a pattern matching every project status topic.
//
// Pattern: ff/v1/+/l/+/status
func (Topics) AllProjectStatus() string {
	return TopicRoot + "/+/l/+/status"
}

// AllDeviceStatus returns a pattern matching every device status topic.
//
// Pattern: ff/v1/+/d/+/status
func (Topics) AllDeviceStatus() string {
	return TopicRoot + "/+/d/+/status"
}

// AllDeviceLogs returns a pattern matching every device log topic.
//
// Pattern: ff/v1/+/d/+/logs
func (Topics) AllDeviceLogs() string {
	return TopicRoot + "/+/d/+/logs"
}

// AllDeviceResponses returns a pattern matching every device response topic.
//
// Pattern: ff/v1/+/d/+/response
func (Topics) AllDeviceResponses() string {
	return TopicRoot + "/+/d/+/response"
}

// =============================================================================
// Parsing
// =============================================================================

// Address is a parsed topic.
type Address struct {
	TeamID  string
	Owner   OwnerKind
	OwnerID string
	Kind    MessageKind
}

// ParseAddress splits a topic into its components.
//
// Returns false for any topic that does not match the fixed shape
// ff/v1/<teamId>/<ownerKind>/<ownerId>/<messageKind>; callers drop such
// messages silently.
func ParseAddress(topic string) (Address, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicSegments {
		return Address{}, false
	}
	if parts[0] != "ff" || parts[1] != "v1" {
		return Address{}, false
	}
	if parts[2] == "" || parts[4] == "" {
		return Address{}, false
	}

	owner := OwnerKind(parts[3])
	switch owner {
	case OwnerProject, OwnerDevice, OwnerBroadcast:
	default:
		return Address{}, false
	}

	kind := MessageKind(parts[5])
	switch kind {
	case KindCommand, KindStatus, KindLogs, KindResponse:
	default:
		return Address{}, false
	}

	return Address{
		TeamID:  parts[2],
		Owner:   owner,
		OwnerID: parts[4],
		Kind:    kind,
	}, true
}

// SplitShared unwraps a shared-subscription envelope.
//
// For "$share/<group>/<topic>" it returns the group name and the inner
// topic. Returns ok=false if the topic is not a shared subscription or
// the envelope is malformed.
func SplitShared(topic string) (group, inner string, ok bool) {
	if !strings.HasPrefix(topic, SharedPrefix) {
		return "", "", false
	}
	rest := topic[len(SharedPrefix):]
	idx := strings.Index(rest, "/")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
