// Package runner executes a tree of visual-regression states across a set
// of remote browsers.
//
// The main components are:
//   - Runner: the run orchestrator; fans out one browserRunner per
//     configured browser, owns the event bus, aggregates outcomes and
//     exposes cooperative cancellation
//   - browserRunner: drives one browser's walk of the suite tree against
//     sessions obtained from the shared pool
//   - StateProcessor: the external collaborator that prepares the run and
//     captures/compares individual states
//   - ProgressTracker: observes suite lifecycle events for periodic
//     progress reporting
//
// These components work together so that browsers execute concurrently
// while the run's lifecycle events keep a fixed total order and failures
// aggregate deterministically.
package runner
