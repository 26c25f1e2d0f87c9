// Package stackos simulates a small multitasking kernel on a flat,
// byte-addressable machine.
//
// The kernel manages user processes with a first/next-fit block allocator,
// a bounded ready queue and a process table, and serves them through a trap
// dispatcher implementing a fixed syscall ABI. Program images are loaded
// asynchronously by a simulated loader device from any afs location; a
// simulated console device provides output and line input.
//
// A typical host boots programs and drives the machine clock:
//
//	srv, _ := stackos.New(stackos.WithConfig(config))
//	rt := srv.Runtime()
//	pids, _ := rt.Boot(ctx, "init")
//	_, err := rt.Run(ctx, 1000)
//
// Syscall issues calls on behalf of the running process, which is how the
// monitor in cmd/stackos and the tests drive user code.
package stackos
