// ABOUTME: Package protocol defines the JSON envelope exchanged between agents and the hub.
// ABOUTME: Typed constants for message types and response subtypes, plus envelope constructors.

// Package protocol defines the wire format for forge-hub.
//
// Every message on a WebSocket connection is a single JSON envelope. The
// envelope Type says what the message is (registration, directed command,
// task answer, ...); for hub-to-UI traffic the Subtype tells the client how
// to render it (system notice, question awaiting an answer, progress update,
// downloadable artifact, ...).
package protocol
