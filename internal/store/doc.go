// Package store owns the SQLite engine for a configuration scope: one
// database file per config document, created on first open, versioned
// through schema_version, and scrubbed by interval-gated cleanup.
//
// The database holds task state (config fingerprints and the modified
// flag), run history, and a small key/value persistence table shared
// with collaborators. Test runs operate on an isolated copy of the
// production file; teardown refuses to delete any file whose name lacks
// the test marker.
//
// Treat this package as the single source of truth for storage
// semantics; schema changes go into schema.sql and bump schemaVersion.
package store
