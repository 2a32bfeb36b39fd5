// Package connection implements the session layer for the Deriv WebSocket API.
//
// The session layer:
//   - Owns a single WebSocket transport to the venue
//   - Runs the authorize handshake and tracks session state
//   - Serializes all outbound traffic through one dispatcher lock
//   - Probes liveness with a background heartbeat
//   - Reconnects with jittered exponential backoff, single-flight
package connection
