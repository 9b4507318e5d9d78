// Package exitcodes defines the standard exit codes used by gemini.
package exitcodes

// Exit code constants used by gemini
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all states pass successfully
// * TestFailure (1): Used when one or more states fail
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or other failures
const (
	Success     = 0 // All states pass
	TestFailure = 1 // State failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
