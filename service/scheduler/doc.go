// Package scheduler owns the process table and the only code path that
// changes the current process. Trap and timer entry hand it the interrupted
// register context; it saves that context into the current descriptor,
// picks the next runnable process from the ready queue and rewrites the
// context in place, which is how control returns to a different process.
//
// Slot 0 is the idle task. It is never spawned, waited on or torn down, and
// runs whenever nothing else can.
package scheduler
