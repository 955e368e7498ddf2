// Package telemetry meters the messaging core into InfluxDB v2.
//
// It records command lifecycle events (sent, resolved, timed out),
// unmatched device responses, and drift corrections. Writes are batched
// and non-blocking; the hot path never waits on the metrics backend.
//
// When telemetry is disabled in config, Connect returns ErrDisabled and
// callers use the comms package's no-op recorder instead.
package telemetry
