// Package ipc carries delegated task submissions and daemon control
// over JSON-RPC on a loopback TCP port. The port is advertised in the
// lock file, so any process that can read the lock file can reach the
// daemon holding it.
//
// It owns listener lifecycle and the request/response DTOs. The server
// wraps a Backend implemented by the daemon runtime; the client
// decorates calls with dial timeouts so CLI commands fail fast when
// the daemon is gone.
package ipc
