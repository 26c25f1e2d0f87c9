package stackos

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/abi"
	"github.com/viant/stackos/service/allocator"
	"github.com/viant/stackos/service/console"
	"github.com/viant/stackos/service/device"
	"github.com/viant/stackos/service/event"
	"github.com/viant/stackos/service/loader"
	"github.com/viant/stackos/service/scheduler"
	"github.com/viant/stackos/service/trap"
	"github.com/viant/stackos/stats"
)

// Runtime is the running machine: memory, devices and the kernel. Every
// entry point takes the runtime lock, which stands in for the processor
// disabling interrupts while the kernel runs.
type Runtime struct {
	mem     *arena.Arena
	alloc   *allocator.Service
	sched   *scheduler.Service
	loader  *loader.Service
	console *console.Service
	trap    *trap.Service
	clock   *clock.Counter
	stats   *stats.Stats
	events  *event.Service
	devices []device.Ticker
	regs    scheduler.Registers
	mux     sync.Mutex
}

// Spawn starts loading name on behalf of the running process, or of the
// kernel when the machine is idle.
func (r *Runtime) Spawn(ctx context.Context, name string) (int, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.sched.Halted() {
		return 0, scheduler.ErrHalted
	}
	return r.sched.Spawn(ctx, name)
}

// Boot spawns the initial programs in order. Each program claims the
// largest free region until its image is in place, so the machine is ticked
// until one load settles before the next program is spawned.
func (r *Runtime) Boot(ctx context.Context, names ...string) ([]int, error) {
	var pids []int
	for _, name := range names {
		pid, err := r.Spawn(ctx, name)
		if err != nil {
			return pids, fmt.Errorf("failed to boot %s: %w", name, err)
		}
		pids = append(pids, pid)
		if err = r.settle(ctx, pid); err != nil {
			return pids, fmt.Errorf("failed to boot %s: %w", name, err)
		}
	}
	return pids, nil
}

// bootTicks bounds the wait for a single boot load.
const bootTicks = 10000

func (r *Runtime) settle(ctx context.Context, pid int) error {
	for i := 0; i < bootTicks; i++ {
		if !r.loading(pid) {
			return nil
		}
		if err := r.Tick(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("process %d still loading after %d ticks", pid, bootTicks)
}

func (r *Runtime) loading(pid int) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	p, _ := r.sched.Process(pid)
	return p.State == scheduler.StateLoading
}

// Trap enters the kernel from the running process with the argument block
// at the process relative address argPtr.
func (r *Runtime) Trap(ctx context.Context, argPtr int) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.trap.Handle(ctx, &r.regs, argPtr)
}

// Syscall issues a call on behalf of the running process. The argument
// block is placed at the bottom of the process stack; data, when given, is
// copied right after it and becomes the call buffer. The returned block is
// read back after the trap; for blocking calls its status may still be
// RESULT_PENDING.
func (r *Runtime) Syscall(ctx context.Context, args abi.Args, data []byte) (*abi.Args, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.sched.Halted() {
		return nil, scheduler.ErrHalted
	}
	if r.sched.CurrentPid() == scheduler.IdleSlot {
		return nil, trap.ErrNotRunning
	}
	regs := r.regs
	block := regs.SP
	if rem := block % arena.WordSize; rem != 0 {
		block += arena.WordSize - rem
	}
	if data != nil {
		args.Buffer = block + abi.BlockSize
		if block+abi.BlockSize+len(data) > regs.LP-regs.BP {
			return nil, fmt.Errorf("%w: %d bytes do not fit the stack of %d", trap.ErrBadPointer, len(data), r.sched.CurrentPid())
		}
		if err := r.mem.Write(regs.BP+args.Buffer, data); err != nil {
			return nil, err
		}
	}
	addr := regs.BP + block
	if err := abi.WriteArgs(r.mem, addr, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", trap.ErrBadPointer, err)
	}
	err := r.trap.Handle(ctx, &r.regs, block)
	result, rErr := abi.ReadArgs(r.mem, addr)
	if rErr != nil {
		return nil, rErr
	}
	return result, err
}

// Read copies length bytes at a process relative address of pid.
func (r *Runtime) Read(pid, relative, length int) ([]byte, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	p, ok := r.sched.Process(pid)
	if !ok || p.State == scheduler.StateFree {
		return nil, fmt.Errorf("no process %d", pid)
	}
	if relative < 0 || p.Base+relative+length > p.Limit {
		return nil, fmt.Errorf("%w: %d+%d outside process %d", arena.ErrOutOfBounds, relative, length, pid)
	}
	view, err := r.mem.Slice(p.Base+relative, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), view...), nil
}

// Tick advances the instruction counter by one, lets the devices work and
// raises the timer interrupt once the running quantum is used up, or on
// every tick while the machine is idle.
func (r *Runtime) Tick(ctx context.Context) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.sched.Halted() {
		return scheduler.ErrHalted
	}
	now := r.clock.Advance(1)
	for _, ticker := range r.devices {
		ticker.Tick(now)
	}
	if r.sched.CurrentPid() == scheduler.IdleSlot || r.trap.Expired() {
		return r.trap.Timer(ctx, &r.regs)
	}
	return nil
}

// Run ticks up to n times, stopping early when the machine halts or ctx is
// done. It returns the number of ticks performed.
func (r *Runtime) Run(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := r.Tick(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

// RunUntil ticks until pid is running, up to max ticks.
func (r *Runtime) RunUntil(ctx context.Context, pid int, max int) error {
	for i := 0; i < max; i++ {
		if r.CurrentPid() == pid {
			return nil
		}
		if err := r.Tick(ctx); err != nil {
			return err
		}
	}
	if r.CurrentPid() == pid {
		return nil
	}
	return fmt.Errorf("process %d not running after %d ticks", pid, max)
}

// Input feeds one console line.
func (r *Runtime) Input(line string) {
	r.console.Feed(line)
}

// Listen feeds console lines from reader in the background until it is
// exhausted or ctx is done.
func (r *Runtime) Listen(ctx context.Context, reader io.Reader) {
	go r.console.ReadFrom(ctx, reader)
}

// Halted reports whether the machine stopped.
func (r *Runtime) Halted() bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.sched.Halted()
}

// CurrentPid returns the running process.
func (r *Runtime) CurrentPid() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.sched.CurrentPid()
}

// Registers returns the context of the running process.
func (r *Runtime) Registers() scheduler.Registers {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.regs
}

// Now returns the instruction counter.
func (r *Runtime) Now() int64 {
	return r.clock.Now()
}

// Processes returns a copy of the process table.
func (r *Runtime) Processes() []scheduler.Process {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.sched.Processes()
}

// ProcessDump renders the process table.
func (r *Runtime) ProcessDump() string {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.sched.DumpString()
}

// HeapDump renders the allocator blocks.
func (r *Runtime) HeapDump() string {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.alloc.DumpString()
}

// HeapStats totals the allocator blocks.
func (r *Runtime) HeapStats() allocator.Stats {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.alloc.Stats()
}

// Validate checks heap integrity.
func (r *Runtime) Validate() error {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.alloc.Validate()
}

// Stats returns a snapshot of the kernel counters.
func (r *Runtime) Stats() stats.Stats {
	return r.stats.Snapshot()
}

// Loader returns the image loading device.
func (r *Runtime) Loader() *loader.Service {
	return r.loader
}

// Console returns the console device.
func (r *Runtime) Console() *console.Service {
	return r.console
}

// Shutdown stops background event delivery.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r.events != nil {
		r.events.Close()
	}
	return nil
}
