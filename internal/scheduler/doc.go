// Package scheduler is the control surface over task execution: start,
// enqueue by priority, graceful or forced shutdown, and a blocking wait
// for quiescence. Execution itself is delegated to the injected runner;
// this package only guarantees ordering and the drain/abort contract.
package scheduler
