// Package database provides SQLite connection management for Forge Fleet Core.
//
// This package handles:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Idempotent schema bootstrap on startup
//   - Connection lifecycle and health checks
//
// The fleet records it stores (teams, projects, devices, snapshots) are
// shared across all platform instances; the comms core treats
// read-then-write on them as non-atomic and favours idempotent corrective
// commands over locking.
package database
