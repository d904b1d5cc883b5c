// ABOUTME: Package agentconn is the agent-side hub connection with reconnect and backoff.
// ABOUTME: Dials, registers a name, hands inbound envelopes to a handler, and redials on failure.

// Package agentconn connects a worker or UI agent to the hub.
//
// Reconnection is agent-initiated: on any transport failure the client
// redials with exponential backoff bounded by a maximum delay, and either
// retries forever or gives up after a configured attempt cap. Task state
// lives in the hub's durable store, so a reconnecting agent resumes exactly
// where it left off by re-registering the same name.
package agentconn
