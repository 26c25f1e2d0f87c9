// Package script drives a stackos runtime from monitor commands, one per
// line. The monitor issues system calls on behalf of whichever process is
// running, advances the machine clock and prints kernel state.
package script

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/viant/stackos"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/abi"
	"github.com/viant/stackos/service/allocator"
	"github.com/viant/stackos/service/loader"
	"github.com/viant/stackos/service/scheduler"
)

// ErrUnknownCommand is returned for a command the monitor does not know.
var ErrUnknownCommand = errors.New("script: unknown command")

// DefaultImageSize is used by the image command when no size is given.
const DefaultImageSize = 64

type pendingRead struct {
	pid    int
	call   abi.Call
	buffer int
}

// Runner executes monitor commands.
type Runner struct {
	runtime *stackos.Runtime
	out     io.Writer
	heap    string
	pending []pendingRead
}

// New creates a runner printing to out.
func New(runtime *stackos.Runtime, out io.Writer) *Runner {
	return &Runner{runtime: runtime, out: out}
}

// Run executes commands in order, stopping at the first error or once the
// machine halted.
func (r *Runner) Run(ctx context.Context, commands []*Command) error {
	for _, command := range commands {
		if err := r.Execute(ctx, command); err != nil {
			return fmt.Errorf("line %d: %w", command.Line, err)
		}
		if r.runtime.Halted() {
			return nil
		}
	}
	return nil
}

// Execute runs a single command.
func (r *Runner) Execute(ctx context.Context, command *Command) error {
	err := r.execute(ctx, command)
	if errors.Is(err, scheduler.ErrHalted) {
		r.printf("machine halted at %d\n", r.runtime.Now())
		return nil
	}
	return err
}

func (r *Runner) execute(ctx context.Context, command *Command) error {
	switch command.Name {
	case "image":
		return r.image(ctx, command)
	case "boot":
		pids, err := r.runtime.Boot(ctx, command.Args...)
		for i, pid := range pids {
			r.printf("booted %s as %d\n", command.Args[i], pid)
		}
		return err
	case "spawn":
		if len(command.Args) == 0 {
			return fmt.Errorf("spawn: missing program name")
		}
		pid, err := r.runtime.Spawn(ctx, command.Args[0])
		if err != nil {
			return err
		}
		r.printf("spawned %s as %d\n", command.Args[0], pid)
		return nil
	case "tick", "run":
		n, err := command.IntOr(0, 1)
		if err != nil {
			return err
		}
		_, err = r.runtime.Run(ctx, n)
		r.report()
		return err
	case "until":
		pid, err := command.Int(0)
		if err != nil {
			return err
		}
		max, err := command.IntOr(1, 1000)
		if err != nil {
			return err
		}
		err = r.runtime.RunUntil(ctx, pid, max)
		r.report()
		return err
	case "input":
		r.runtime.Input(command.Text(0))
		return nil
	case "prints":
		text := command.Text(0) + "\x00"
		return r.call(ctx, abi.Args{Call: abi.CallPrints, Size: len(text)}, []byte(text))
	case "gets":
		return r.call(ctx, abi.Args{Call: abi.CallGetS, Size: abi.GetsScratch}, make([]byte, abi.GetsScratch))
	case "geti":
		return r.call(ctx, abi.Args{Call: abi.CallGetI, Size: arena.WordSize}, make([]byte, arena.WordSize))
	case "exec":
		if len(command.Args) == 0 {
			return fmt.Errorf("exec: missing program name")
		}
		name := command.Args[0] + "\x00"
		return r.call(ctx, abi.Args{Call: abi.CallExec, Size: len(name)}, []byte(name))
	case "sleep", "wait":
		value, err := command.Int(0)
		if err != nil {
			return err
		}
		call := abi.CallSleep
		if command.Name == "wait" {
			call = abi.CallWait
		}
		return r.call(ctx, abi.Args{Call: call, Size: value}, nil)
	case "yield":
		return r.call(ctx, abi.Args{Call: abi.CallYield}, nil)
	case "exit":
		return r.call(ctx, abi.Args{Call: abi.CallExit}, nil)
	case "halt":
		return r.call(ctx, abi.Args{Call: abi.CallHalt}, nil)
	case "time":
		return r.call(ctx, abi.Args{Call: abi.CallGetTime}, nil)
	case "pid":
		return r.call(ctx, abi.Args{Call: abi.CallGetPID}, nil)
	case "ppid":
		return r.call(ctx, abi.Args{Call: abi.CallGetPPID}, nil)
	case "ps":
		r.printf("%s", r.runtime.ProcessDump())
		return nil
	case "heap":
		r.heap = r.runtime.HeapDump()
		r.printf("%s", r.heap)
		return nil
	case "heapdiff":
		current := r.runtime.HeapDump()
		diff, err := allocator.Diff(r.heap, current)
		if err != nil {
			return err
		}
		r.heap = current
		if diff == "" {
			r.printf("heap unchanged\n")
			return nil
		}
		r.printf("%s", diff)
		return nil
	case "validate":
		if err := r.runtime.Validate(); err != nil {
			return err
		}
		r.printf("heap ok\n")
		return nil
	case "stats":
		snapshot := r.runtime.Stats()
		heap := r.runtime.HeapStats()
		r.printf("spawned=%d loaded=%d load_failed=%d exited=%d reaped=%d switches=%d traps=%d timer=%d rejected=%d\n",
			snapshot.Spawned, snapshot.Loaded, snapshot.LoadFailed, snapshot.Exited, snapshot.Reaped,
			snapshot.Switches, snapshot.Traps, snapshot.Timer, snapshot.Rejected)
		r.printf("heap free=%d/%d busy=%d/%d largest=%d\n", heap.FreeBytes, heap.FreeBlocks, heap.BusyBytes, heap.BusyBlocks, heap.Largest)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, command.Name)
}

// image stores a synthetic program image: image NAME [SIZE] [STACK].
func (r *Runner) image(ctx context.Context, command *Command) error {
	if len(command.Args) == 0 {
		return fmt.Errorf("image: missing program name")
	}
	size, err := command.IntOr(1, DefaultImageSize)
	if err != nil {
		return err
	}
	stack, err := command.IntOr(2, 0)
	if err != nil {
		return err
	}
	var manifest *loader.Manifest
	if stack > 0 {
		manifest = &loader.Manifest{Stack: stack}
	}
	return r.runtime.Loader().Store().Save(ctx, command.Args[0], bytes.Repeat([]byte{0}, size), manifest)
}

// call issues a system call for the running process and prints its result.
func (r *Runner) call(ctx context.Context, args abi.Args, data []byte) error {
	pid := r.runtime.CurrentPid()
	result, err := r.runtime.Syscall(ctx, args, data)
	if err != nil {
		return err
	}
	switch {
	case result.Status == abi.StatusResultPending:
		r.pending = append(r.pending, pendingRead{pid: pid, call: args.Call, buffer: result.Buffer})
		r.printf("%d: %s pending\n", pid, args.Call)
	case result.Status != abi.StatusOK:
		r.printf("%d: %s %s\n", pid, args.Call, result.Status)
	case args.Call == abi.CallExec || args.Call == abi.CallGetTime || args.Call == abi.CallGetPID || args.Call == abi.CallGetPPID:
		r.printf("%d: %s = %d\n", pid, args.Call, result.Size)
	case args.Call == abi.CallGetS || args.Call == abi.CallGetI:
		r.printRead(pendingRead{pid: pid, call: args.Call, buffer: result.Buffer})
	default:
		r.printf("%d: %s OK\n", pid, args.Call)
	}
	return nil
}

// report prints reads that completed since they were issued.
func (r *Runner) report() {
	var remaining []pendingRead
	for _, read := range r.pending {
		processes := r.runtime.Processes()
		if read.pid < len(processes) && processes[read.pid].State == scheduler.StateDoingIO {
			remaining = append(remaining, read)
			continue
		}
		r.printRead(read)
	}
	r.pending = remaining
}

func (r *Runner) printRead(read pendingRead) {
	status, err := r.runtime.Read(read.pid, read.buffer-abi.BlockSize+abi.OffsetStatus, arena.WordSize)
	if err != nil {
		r.printf("%d: %s lost: %v\n", read.pid, read.call, err)
		return
	}
	if code := abi.Status(binary.LittleEndian.Uint32(status)); code != abi.StatusOK {
		r.printf("%d: %s %s\n", read.pid, read.call, code)
		return
	}
	size := abi.GetsScratch
	if read.call == abi.CallGetI {
		size = arena.WordSize
	}
	data, err := r.runtime.Read(read.pid, read.buffer, size)
	if err != nil {
		r.printf("%d: %s lost: %v\n", read.pid, read.call, err)
		return
	}
	if read.call == abi.CallGetI {
		r.printf("%d: %s = %d\n", read.pid, read.call, int32(binary.LittleEndian.Uint32(data)))
		return
	}
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	r.printf("%d: %s = %q\n", read.pid, read.call, string(data))
}

func (r *Runner) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}
