// ABOUTME: Package dedupe suppresses redelivered envelopes after agent reconnects.
// ABOUTME: TTL-bounded, size-capped set of recently seen envelope IDs.

// Package dedupe tracks recently seen envelope IDs.
//
// Agents resend their last unacknowledged envelope after a reconnect, so the
// hub runs every inbound envelope ID through this cache and drops ones it has
// already processed. At-most-once routing semantics are unchanged; this only
// prevents double-processing on the hub side.
package dedupe
