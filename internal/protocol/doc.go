// Package protocol defines the Deriv WebSocket API wire shapes.
//
// Endpoint:
//   - wss://ws.binaryws.com/websockets/v3?app_id=<app_id>
//
// Every outbound message is a flat JSON object carrying a client-assigned
// req_id. Every response may instead carry an error object {code, message}.
// Subscription pushes (tick, ohlc) arrive interleaved with request replies.
package protocol
