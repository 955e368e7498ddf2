// Package acl evaluates topic-level authorization for broker operations.
//
// The broker calls the platform's auth hook for every publish and
// subscribe attempt; this package answers with a plain allow/deny.
// Evaluation maps (credential, topic, direction) to a verdict using
// per-identity-class rule lists: ordered patterns with optional
// structural verification predicates.
//
// # Identity classes
//
//   - forge_platform      — the platform singleton, full access
//   - project:<t>:<p>     — a project runtime
//   - device:<t>:<d>      — a device agent
//
// # Shared subscriptions
//
// Subscribe topics may arrive wrapped as "$share/<group>/<topic>". The
// group must equal the subscriber's object id, and the first matching
// rule must be flagged shared-eligible, otherwise the subscription is
// denied.
//
// # Extension
//
// The registry is an explicit object passed by reference; optional
// platform modules append their own rules with AddRule during
// initialization rather than mutating ambient state.
package acl
