// Package api provides the HTTP server for Forge Fleet Core.
//
// It exposes three surfaces:
//
//   - the broker authorization hook, called by the MQTT broker for every
//     publish and subscribe attempt
//   - fleet command endpoints for operators (send a device command, wait
//     for its reply, toggle the device editor, list the team's command
//     audit trail)
//   - a WebSocket log-stream endpoint that attaches the caller as a
//     viewer on a device's log relay session
//
// Operator endpoints require a JWT bearer token signed with the
// configured secret; tokens are minted out-of-band. The broker hook is
// unauthenticated and must only be reachable from the broker's network.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
