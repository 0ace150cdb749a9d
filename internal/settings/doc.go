// Package settings loads, normalizes, and validates flume process
// settings.
//
// Settings cover the knobs that belong to the process rather than to
// the task document: log format and rotation, daemon IPC binding, the
// database override, and scheduler timing. They are read from TOML,
// with tilde shortcuts expanded and defaults supplied for anything
// omitted. The task document itself (tasks, schedules) is handled by
// the configfile package.
//
// Always obtain settings through this package so downstream code
// receives sanitized paths and canonical values.
package settings
