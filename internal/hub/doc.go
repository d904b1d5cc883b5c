// ABOUTME: Package hub owns the name-to-connection registry, the message router, and the WebSocket server.
// ABOUTME: The registry is the single writable source of truth for who is currently connected.

// Package hub routes envelopes between named agents.
//
// Agents connect over a persistent WebSocket and claim a name with a register
// envelope; the hub binds the name to the connection (last writer wins) and
// forwards directed envelopes to whoever currently holds the target name.
// Untargeted envelopes are handled by the hub itself (the workflow engine) or
// broadcast. Delivery is at-most-once: unknown targets and slow consumers
// drop, with a log line and nothing else.
package hub
