// Package connection implements the persistent channel to the backend.
//
// A Client is one raw WebSocket transport with heartbeat and stale
// detection. The Manager owns at most one live Client at a time and
// drives the session state machine: Disconnected, Connecting,
// Connected, Reconnecting, Failed. Reconnection uses exponential
// backoff with a single pending timer; after the configured attempt
// limit the Manager parks in Failed until an explicit Connect call.
package connection
