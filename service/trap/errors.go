package trap

import "errors"

var (
	// ErrBadPointer is returned when the argument block itself lies outside
	// the caller's memory; no status can be written.
	ErrBadPointer = errors.New("trap: argument block outside process memory")
	// ErrNotRunning is returned for traps issued while no process runs.
	ErrNotRunning = errors.New("trap: no user process running")
)
