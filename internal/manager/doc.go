// Package manager is the process coordinator: it sequences startup,
// decides between running tasks locally and delegating them to a
// running daemon, owns the lock and store for the configuration scope,
// and drives the scheduler through execute runs and teardown.
package manager
