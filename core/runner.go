package core

import "context"

// Runner defines the orchestration contract for executing a root agent
// within a conversational session.
//
// Semantics:
//   - Event Ordering: events of one run are delivered in the order produced.
//   - Channel Lifecycle: the events channel is closed after the run completes
//     and after-agent callbacks have finished. The error channel carries at
//     most one terminal error then closes.
//   - Cancellation: context cancellation or Cancel(runID) stops the run.
type Runner interface {
	// Run starts an asynchronous run bound to sessionID using userContent as input.
	// The immediate error covers startup failures (e.g. session load).
	Run(ctx context.Context, sessionID string, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests cooperative termination of an in-flight run.
	Cancel(runID string) error
}
