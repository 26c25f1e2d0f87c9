package trap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/abi"
	"github.com/viant/stackos/service/device"
	"github.com/viant/stackos/service/scheduler"
	"github.com/viant/stackos/stats"
	"github.com/viant/stackos/tracing"
)

// Console is the terminal device used by PRINTS, GETI and GETS.
type Console interface {
	device.Device
	Write(text string) error
}

// Service dispatches system calls and timer interrupts.
type Service struct {
	config     Config
	sched      *scheduler.Service
	mem        *arena.Arena
	console    Console
	clock      clock.Clock
	policy     *policy.Policy
	stats      *stats.Stats
	sliceStart int64
}

// New creates a dispatcher over sched and console.
func New(sched *scheduler.Service, mem *arena.Arena, console Console, clk clock.Clock, options ...Option) *Service {
	ret := &Service{sched: sched, mem: mem, console: console, clock: clk, config: DefaultConfig()}
	for _, opt := range options {
		opt(ret)
	}
	ret.sliceStart = clk.Now()
	return ret
}

// Handle performs the call described by the argument block at the process
// relative address argPtr. regs is the trapping context; on return it holds
// the context to resume, which belongs to another process when the call
// blocked or exited. scheduler.ErrHalted reports that the machine stopped.
func (s *Service) Handle(ctx context.Context, regs *scheduler.Registers, argPtr int) (err error) {
	if s.sched.Halted() {
		return scheduler.ErrHalted
	}
	pid := s.sched.CurrentPid()
	if pid == scheduler.IdleSlot {
		return ErrNotRunning
	}
	addr := regs.BP + argPtr
	if argPtr <= abi.Null || addr+abi.BlockSize > regs.LP {
		return fmt.Errorf("%w: pid %d block %08x", ErrBadPointer, pid, argPtr)
	}
	args, err := abi.ReadArgs(s.mem, addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPointer, err)
	}
	s.count(ctx, stats.Delta{Traps: 1})
	if s.config.Tracing {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "trap."+args.Call.String(), "INTERNAL")
		process, _ := s.sched.Process(pid)
		span.WithAttributes(map[string]string{"syscall": args.Call.String(), "process": process.Name}).WithInt("pid", pid)
		defer func() { s.endSpan(span, args.Call, addr, err) }()
	}
	if !args.Call.Known() {
		return s.status(addr, abi.StatusNoSuchCall)
	}
	if !s.filter(ctx).Admit(ctx, args.Call.String(), pid) {
		s.count(ctx, stats.Delta{Rejected: 1})
		return s.status(addr, abi.StatusGeneralError)
	}
	err = s.dispatch(ctx, regs, args, addr, pid)
	if s.sched.CurrentPid() != pid {
		s.resetSlice()
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, regs *scheduler.Registers, args *abi.Args, addr, pid int) error {
	switch args.Call {
	case abi.CallPrints:
		buffer, ok := s.buffer(regs, args)
		if !ok {
			return s.status(addr, abi.StatusBadPointer)
		}
		text, terminated, err := s.mem.CString(buffer, args.Size)
		if err != nil {
			return s.status(addr, abi.StatusBadPointer)
		}
		if !terminated {
			return s.status(addr, abi.StatusInvalidArgument)
		}
		if err = s.console.Write(text); err != nil {
			log.Printf("trap: console write for %d failed: %v", pid, err)
			return s.status(addr, abi.StatusGeneralError)
		}
		return s.status(addr, abi.StatusOK)
	case abi.CallGetI:
		return s.read(ctx, regs, args, addr, device.OpGetI, arena.WordSize)
	case abi.CallGetS:
		return s.read(ctx, regs, args, addr, device.OpGetS, abi.GetsScratch)
	case abi.CallHalt:
		if err := s.status(addr, abi.StatusOK); err != nil {
			return err
		}
		return s.shutdown(s.sched.Halt(regs))
	case abi.CallExit:
		return s.shutdown(s.sched.Exit(regs))
	case abi.CallExec:
		buffer, ok := s.buffer(regs, args)
		if !ok {
			return s.status(addr, abi.StatusBadPointer)
		}
		name, terminated, err := s.mem.CString(buffer, args.Size)
		if err != nil {
			return s.status(addr, abi.StatusBadPointer)
		}
		if !terminated || name == "" {
			return s.status(addr, abi.StatusInvalidArgument)
		}
		if span, ok := tracing.SpanFromContext(ctx); ok {
			span.WithAttributes(map[string]string{"exec.program": name})
		}
		child, err := s.sched.Spawn(ctx, name)
		if err != nil {
			log.Printf("trap: exec %s for %d failed: %v", name, pid, err)
			return s.status(addr, abi.StatusGeneralError)
		}
		return s.value(addr, child)
	case abi.CallYield:
		if err := s.status(addr, abi.StatusOK); err != nil {
			return err
		}
		s.sched.Reschedule(regs)
		s.resetSlice()
		return nil
	case abi.CallSleep:
		if args.Size < 0 {
			return s.status(addr, abi.StatusInvalidArgument)
		}
		if err := s.status(addr, abi.StatusOK); err != nil {
			return err
		}
		return s.sched.Sleep(regs, int64(args.Size))
	case abi.CallGetTime:
		return s.value(addr, int(s.clock.Now()))
	case abi.CallGetPID:
		return s.value(addr, pid)
	case abi.CallGetPPID:
		return s.value(addr, s.sched.CurrentParentPid())
	case abi.CallWait:
		target := args.Size
		if target < 1 || target >= s.sched.Config().MaxProcesses {
			return s.status(addr, abi.StatusInvalidArgument)
		}
		if err := s.status(addr, abi.StatusOK); err != nil {
			return err
		}
		if s.sched.WaitOn(regs, target, addr) != 0 {
			return s.status(addr, abi.StatusInvalidArgument)
		}
		return nil
	}
	return fmt.Errorf("trap: unhandled call %v", args.Call)
}

// filter returns the configured policy, falling back to one carried by ctx.
func (s *Service) filter(ctx context.Context) *policy.Policy {
	if s.policy != nil {
		return s.policy
	}
	return policy.FromContext(ctx)
}

// count updates the configured tracker, falling back to one carried by ctx.
func (s *Service) count(ctx context.Context, d stats.Delta) {
	if s.stats != nil {
		s.stats.Update(d)
		return
	}
	stats.UpdateCtx(ctx, d)
}

// read submits a console read into the caller's buffer and blocks the
// caller until it completes.
func (s *Service) read(ctx context.Context, regs *scheduler.Registers, args *abi.Args, addr int, op int32, minimum int) error {
	buffer, ok := s.buffer(regs, args)
	if !ok || args.Size < minimum {
		return s.status(addr, abi.StatusBadPointer)
	}
	request := device.NewRequest(op)
	request.Base, request.Limit = regs.BP, regs.LP
	request.Buffer, request.Size = buffer, args.Size
	if err := s.status(addr, abi.StatusResultPending); err != nil {
		return err
	}
	if err := s.console.Submit(ctx, request); err != nil {
		log.Printf("trap: console read failed: %v", err)
		return s.status(addr, abi.StatusGeneralError)
	}
	return s.sched.BeginIO(regs, request, addr)
}

// buffer translates the buffer of args and checks that buffer+size stays
// within the caller's limit.
func (s *Service) buffer(regs *scheduler.Registers, args *abi.Args) (int, bool) {
	if args.Buffer <= abi.Null || args.Size <= 0 {
		return 0, false
	}
	addr := regs.BP + args.Buffer
	if addr+args.Size > regs.LP || !s.mem.Contains(addr, args.Size) {
		return 0, false
	}
	return addr, true
}

func (s *Service) status(addr int, status abi.Status) error {
	return abi.WriteStatus(s.mem, addr, status)
}

func (s *Service) value(addr, value int) error {
	if err := abi.WriteValue(s.mem, addr, value); err != nil {
		return err
	}
	return s.status(addr, abi.StatusOK)
}

func (s *Service) shutdown(err error) error {
	if errors.Is(err, scheduler.ErrHalted) {
		if wErr := s.console.Write(ShutdownMessage); wErr != nil {
			log.Printf("trap: %v", wErr)
		}
	}
	return err
}

func (s *Service) endSpan(span *tracing.Span, call abi.Call, addr int, err error) {
	if err != nil || call == abi.CallExit || call == abi.CallHalt {
		tracing.EndSpan(span, err)
		return
	}
	status, wErr := s.mem.Word(addr + abi.OffsetStatus)
	if wErr != nil {
		tracing.EndSpan(span, wErr)
		return
	}
	span.SetCallStatus(int(status), abi.Status(status).String())
	span.End()
}

// Timer is the preemption interrupt: the current process goes to the back
// of the ready queue and a new slice starts.
func (s *Service) Timer(ctx context.Context, regs *scheduler.Registers) error {
	if s.sched.Halted() {
		return scheduler.ErrHalted
	}
	s.count(ctx, stats.Delta{Timer: 1})
	if s.config.Tracing {
		_, span := tracing.StartSpan(ctx, "timer", "INTERNAL")
		defer func() {
			span.WithInt("pid", s.sched.CurrentPid())
			tracing.EndSpan(span, nil)
		}()
	}
	s.sched.Reschedule(regs)
	s.resetSlice()
	return nil
}

// Expired reports whether the running process used up its quantum.
func (s *Service) Expired() bool {
	if s.config.Quantum <= 0 {
		return false
	}
	return s.clock.Now()-s.sliceStart >= s.config.Quantum
}

func (s *Service) resetSlice() {
	s.sliceStart = s.clock.Now()
}
