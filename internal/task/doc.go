// ABOUTME: Package task holds the durable task record, its step state machine, and the workflow engine.
// ABOUTME: The engine serializes per-task transitions and delegates build/edit work to a worker agent.

// Package task implements the multi-step build workflow.
//
// A Task is a durable record driven through a fixed set of Steps: collect a
// project name, a content type, an optional network, and a feature
// description, then build, review, and optionally edit. The persisted record
// is the sole source of truth; the engine re-reads it on every transition and
// never keeps divergent in-memory state, so a reconnecting client can resume
// a pending question mid-flow.
package task
