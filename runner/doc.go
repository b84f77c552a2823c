// Package runner executes discovered test trees.
//
// The main components are:
//   - ExecutionStore: per-node failure ledger shared by every tree of a run
//   - TreeExecutor: walks a tree, running hooks, actions and children and applying bypass modes
//   - ParallelExecutor: schedules independent roots over a pool of workers
//   - Runner: executes a set of roots as one run and summarises the outcome
//   - StatisticsPublisher: event subscriber counting executed test cases and steps
//
// Lifecycle notifications flow out through an events.Publisher; test failures
// never surface as Go errors, only broken execution contracts do.
package runner
