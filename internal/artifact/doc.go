// ABOUTME: Package artifact holds the single-slot cache of the most recent build output.
// ABOUTME: Last-writer-wins across tasks; serves the redownload command; not persisted.

// Package artifact caches the last generated build output.
//
// The cache is one global mutable slot: every successful build or edit
// overwrites it, whichever task produced it. It exists to answer a
// "redownload" request cheaply and is deliberately not a per-user or
// per-task store.
package artifact
