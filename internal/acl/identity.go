package acl

import "strings"

// Class identifies which kind of principal a broker credential belongs to.
type Class string

// Identity classes. The class is the credential prefix before the first colon.
const (
	// ClassPlatform is the platform singleton. The credential is the
	// exact literal with no colon suffix; it has full broker access.
	ClassPlatform Class = "forge_platform"

	// ClassProject is a project runtime: "project:<teamId>:<projectId>".
	ClassProject Class = "project"

	// ClassDevice is a device agent: "device:<teamId>:<deviceId>".
	ClassDevice Class = "device"
)

// identityParts is the number of colon-delimited parts in project and
// device credentials.
const identityParts = 3

// Identity is a parsed broker credential.
type Identity struct {
	Class    Class
	TeamID   string
	ObjectID string

	// parts are the raw colon-delimited segments of the credential,
	// passed to rule verification predicates.
	parts []string
}

// Parts returns the raw colon-delimited segments of the credential.
func (id Identity) Parts() []string {
	return id.parts
}

// ParseIdentity parses a broker credential string.
//
// Grammar: <class>[:<teamId>:<objectId>]. The platform class takes no
// suffix; project and device classes require exactly two non-empty
// suffix segments. Malformed credentials yield no identity, which
// callers treat as access denied.
func ParseIdentity(credential string) (Identity, bool) {
	if credential == string(ClassPlatform) {
		return Identity{
			Class: ClassPlatform,
			parts: []string{credential},
		}, true
	}

	parts := strings.Split(credential, ":")
	if len(parts) != identityParts {
		return Identity{}, false
	}

	class := Class(parts[0])
	switch class {
	case ClassProject, ClassDevice:
	default:
		return Identity{}, false
	}

	if parts[1] == "" || parts[2] == "" {
		return Identity{}, false
	}

	return Identity{
		Class:    class,
		TeamID:   parts[1],
		ObjectID: parts[2],
		parts:    parts,
	}, true
}
