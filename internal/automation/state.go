// File: internal/automation/state.go
package automation

// State carries the session bookkeeping for one automation run. It is owned
// by the runner, passed explicitly into each loop step, and discarded when
// the loop ends. Nothing here survives a process restart.
type State struct {
	// Iteration counts loop passes, bounded by the configured maximum.
	Iteration int
	// ConsecutiveIdle counts iterations that made no progress. It resets to
	// zero on any successful click, answer, scroll or read-escalation, and
	// increments by one on wait, failed click, failed answer or failed read.
	ConsecutiveIdle int
	// InCourse is recomputed every iteration from the page markers: true when
	// inside the course player, false on the course selection page.
	InCourse bool
}
