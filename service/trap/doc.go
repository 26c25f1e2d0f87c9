// Package trap is the kernel entry point for system calls and timer
// interrupts.
//
// A process places a four word argument block {call, buffer, size, status}
// in its own memory and traps with the block's process relative address.
// The dispatcher translates and bounds-checks the block and any buffer it
// references against the caller's base and limit registers, performs the
// call and writes the status back before control returns. Calls that block
// on a device leave RESULT_PENDING; the scheduler resolves the status when
// the request completes.
package trap
