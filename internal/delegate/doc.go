// ABOUTME: Package delegate issues build/edit requests to a worker agent and awaits the result.
// ABOUTME: Router-based correlation by task ID, or a blocking HTTP call; bounded timeout, no retry.

// Package delegate implements the engine's outbound worker calls.
//
// A delegation is fire-one-await-one: the request goes out, and either a
// correlated response arrives, the worker reports failure, or the bounded
// timeout fires. There is no automatic retry at this layer; the workflow
// engine decides what a failure means (terminal for builds, retryable for
// edits).
package delegate
