// Package main hosts the flume CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// manager operations, IPC calls against the daemon, database
// maintenance, log tailing, and configuration scaffolding. It
// centralizes configuration resolution, lock scope discovery, and
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the
// internal packages first, then surface it through dedicated commands
// or flags here.
package main
