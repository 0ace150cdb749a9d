// Package preflight provides readiness checks for the filesystem paths
// and helper binaries a configuration scope depends on.
//
// These checks run in two contexts:
//   - The CLI "flume config check" command runs RunAll to report scope
//     health before the operator starts a daemon or kicks off an
//     execution.
//   - The "flume deps" command uses CheckHelpers to display helper
//     binary availability.
package preflight
