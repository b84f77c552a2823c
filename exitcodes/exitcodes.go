// Package exitcodes defines the exit codes of op-treerunner.
package exitcodes

// Exit codes returned by op-treerunner:
//
// * Success (0): every executed node passed, or there was nothing to run
// * TestFailure (1): at least one node of the run failed
// * RuntimeErr (2): plans could not be loaded, the execution contract was
// violated or the process panicked
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
