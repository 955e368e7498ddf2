// Package fleet provides persistence for the entities the comms core
// consults: teams, projects, devices, and snapshots.
//
// The comms core treats this package as an external collaborator: it only
// performs lookups by id, narrow runtime-field updates, and the assignment
// checks backing the broker ACL predicates. Records are shared across all
// platform instances; read-then-write is not atomic, and the comms core
// compensates with idempotent corrective commands rather than locking.
package fleet
