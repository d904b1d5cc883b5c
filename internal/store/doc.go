// ABOUTME: Package store persists task records and user profiles in SQLite.
// ABOUTME: Implements the task.Store key-value contract; records are JSON blobs keyed by ID.

// Package store is the durable key-value layer under the workflow engine.
//
// Task records are stored as JSON blobs under their task ID, profiles under
// the client-origin identity. The contract is plain get/set/delete with no
// transactions; callers treat a failed write as an aborted operation.
package store
