// Package comms implements the device command-and-control messaging core.
//
// It layers three collaborators over the broker transport:
//
//   - Dispatcher sends device commands: fire-and-forget, project
//     broadcast, and request/reply correlated by token with a
//     per-command timeout.
//   - Reconciler applies device status reports to persisted runtime
//     state and pushes an authoritative "update" command when a report
//     disagrees with the device's assigned targets.
//   - LogRelay fans device log lines out to attached viewers, keeping a
//     bounded cache of recent lines per device for replay on attach.
//
// The transport provides at-most-once, unordered delivery. Nothing here
// assumes a message arrives, arrives once, or arrives in order; lost
// replies surface as timeouts and state divergence is corrected by
// idempotent update commands rather than by locking.
package comms
