package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/abi"
	"github.com/viant/stackos/service/allocator"
	"github.com/viant/stackos/service/device"
	"github.com/viant/stackos/service/event"
	"github.com/viant/stackos/service/messaging/ring"
	"github.com/viant/stackos/stats"
)

// IdleSlot is the permanent kernel task.
const IdleSlot = 0

var (
	// ErrNoSlotsAvailable is returned by Spawn when the table is full.
	ErrNoSlotsAvailable = errors.New("scheduler: no slots available")
	// ErrOutOfMemory is returned by Spawn when no memory is left for an image.
	ErrOutOfMemory = errors.New("scheduler: out of memory")
	// ErrHalted is returned by Exit when the last live process is gone.
	ErrHalted = errors.New("scheduler: halted")
	// ErrNotInitialized is returned when the table is used before Init.
	ErrNotInitialized = errors.New("scheduler: not initialized")
	// ErrIdle is returned for process operations invoked from the idle task.
	ErrIdle = errors.New("scheduler: no current process")
)

// Service is the process table and scheduler.
type Service struct {
	config    Config
	alloc     *allocator.Service
	mem       *arena.Arena
	loader    device.Device
	clock     clock.Clock
	publisher Publisher
	stats     *stats.Stats
	table     []*Process
	ready     *ring.Ring[int]
	current   int
	halted    bool
}

// New creates a scheduler; Init must be called before use.
func New(alloc *allocator.Service, loader device.Device, clk clock.Clock, options ...Option) *Service {
	ret := &Service{alloc: alloc, mem: alloc.Arena(), loader: loader, clock: clk, config: DefaultConfig()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.config.MaxProcesses < 2 {
		ret.config.MaxProcesses = DefaultConfig().MaxProcesses
	}
	return ret
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.config }

// Init resets every slot to free and makes the idle task current.
func (s *Service) Init() {
	s.table = make([]*Process, s.config.MaxProcesses)
	for i := range s.table {
		s.table[i] = &Process{ID: i}
		s.table[i].reset()
	}
	if s.ready == nil || s.ready.Cap() != s.config.MaxProcesses {
		s.ready = ring.New[int](s.config.MaxProcesses)
	} else {
		s.ready.Reset()
	}
	idle := s.table[IdleSlot]
	idle.State = StateRunning
	idle.Name = "kernel"
	s.current = IdleSlot
	s.halted = false
}

// Halted reports whether the last live process has exited.
func (s *Service) Halted() bool { return s.halted }

// CurrentPid returns the slot of the running process.
func (s *Service) CurrentPid() int { return s.current }

// CurrentParentPid returns the parent of the running process.
func (s *Service) CurrentParentPid() int {
	if s.table == nil {
		return 0
	}
	return s.table[s.current].ParentID
}

// Process returns a copy of the descriptor in slot pid.
func (s *Service) Process(pid int) (Process, bool) {
	if pid < 0 || pid >= len(s.table) {
		return Process{}, false
	}
	return *s.table[pid], true
}

// Processes returns a copy of the whole table.
func (s *Service) Processes() []Process {
	result := make([]Process, len(s.table))
	for i, p := range s.table {
		result[i] = *p
	}
	return result
}

// ReadyQueue returns the queued slots in FIFO order.
func (s *Service) ReadyQueue() []int {
	if s.ready == nil {
		return nil
	}
	return s.ready.Items()
}

// FindSlot scans for a slot matching predicate, starting right after start
// and wrapping around. Slot 0 is never returned. It returns -1 when nothing
// matches.
func (s *Service) FindSlot(start int, predicate Predicate) int {
	count := len(s.table)
	if count < 2 {
		return -1
	}
	if start < 0 || start >= count {
		start = 0
	}
	for i := 1; i < count; i++ {
		candidate := (start + i) % count
		if candidate == IdleSlot {
			continue
		}
		if predicate(s.table[candidate]) {
			return candidate
		}
	}
	if start != IdleSlot && predicate(s.table[start]) {
		return start
	}
	return -1
}

// LiveCount returns the number of slots holding a live process.
func (s *Service) LiveCount() int {
	count := 0
	for _, p := range s.table[1:] {
		if p.State.Live() {
			count++
		}
	}
	return count
}

// Spawn claims a slot and the largest free memory block for name, submits
// the load request and queues the slot. It returns without waiting for the
// load.
func (s *Service) Spawn(ctx context.Context, name string) (int, error) {
	if s.table == nil {
		return 0, ErrNotInitialized
	}
	slot := s.FindSlot(s.current, StateIs(StateFree))
	if slot == -1 {
		return 0, ErrNoSlotsAvailable
	}
	base, capacity, err := s.alloc.LargestFree()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	p := s.table[slot]
	p.reset()
	p.Name = name
	p.State = StateLoading
	p.Base, p.Limit = base, base+capacity
	p.Context = Registers{Flags: FlagUserMode, BP: base, LP: base + capacity}
	p.ParentID = s.current
	p.memory = true

	request := device.NewRequest(device.OpExec)
	request.Name = name
	request.Base, request.Limit = p.Base, p.Limit
	p.Load = request
	if err = s.loader.Submit(ctx, request); err != nil {
		s.releaseMemory(p)
		p.reset()
		return 0, fmt.Errorf("failed to submit load of %s: %w", name, err)
	}
	s.enqueue(slot)
	s.stats.Update(stats.Delta{Spawned: 1})
	s.publish(event.TypeSpawned, p)
	return slot, nil
}

// Reschedule is the yield and preemption path: the current process goes to
// the back of the ready queue and the next runnable one takes over regs.
func (s *Service) Reschedule(regs *Registers) {
	if s.current != IdleSlot {
		s.enqueue(s.current)
	}
	s.switchTo(regs, StateReady)
}

// switchTo saves regs into the current process with state old, selects the
// next runnable process and loads its context into regs.
func (s *Service) switchTo(regs *Registers, old State) {
	current := s.table[s.current]
	if old != StateFree {
		current.Context = *regs
	}
	current.State = old
	s.WakeCompletedIO()
	next := s.nextReady()
	s.table[next].State = StateRunning
	if next != s.current {
		s.stats.Update(stats.Delta{Switches: 1})
	}
	s.current = next
	*regs = s.table[next].Context
}

// nextReady dequeues candidates until one can run now. Candidates that are
// not ready yet are requeued behind the rest, so each entry is examined at
// most once per call.
func (s *Service) nextReady() int {
	for remaining := s.ready.Count(); remaining > 0; remaining-- {
		slot, ok := s.ready.Dequeue()
		if !ok {
			break
		}
		p := s.table[slot]
		switch p.State {
		case StateLoading:
			switch s.finalizeLoading(p) {
			case loadPending:
				s.enqueue(slot)
			case loadReady:
				return slot
			}
		case StateSleeping:
			if s.clock.Now() < p.WakeAt {
				s.enqueue(slot)
				continue
			}
			return slot
		case StateReady:
			return slot
		}
	}
	return IdleSlot
}

type loadResult int

const (
	loadPending loadResult = iota
	loadReady
	loadFailed
)

// finalizeLoading sets up the registers of a process whose image arrived
// and trims its memory block to image, stack word and stack.
func (s *Service) finalizeLoading(p *Process) loadResult {
	request := p.Load
	if request == nil || request.Pending() {
		return loadPending
	}
	if request.Failed() {
		log.Printf("scheduler: load of %s failed: %v", p.Name, request.Err())
		s.teardown(p)
		return loadFailed
	}
	size := request.Result()
	stack, err := s.mem.Word(p.Base + size)
	if err != nil || stack < 0 {
		s.teardown(p)
		return loadFailed
	}
	limit := p.Base + size + arena.WordSize + int(stack)
	if _, err = s.alloc.Shrink(p.Base, limit); err != nil {
		log.Printf("scheduler: trimming %s failed: %v", p.Name, err)
		s.teardown(p)
		return loadFailed
	}
	entry := request.Entry
	if entry == 0 {
		entry = 8
	}
	p.Limit = limit
	p.Context.BP = p.Base
	p.Context.LP = limit
	p.Context.SP = size + arena.WordSize
	p.Context.FP = p.Context.SP
	p.Context.IP = entry
	p.Load = nil
	p.State = StateReady
	s.stats.Update(stats.Delta{Loaded: 1})
	s.publish(event.TypeLoaded, p)
	return loadReady
}

// teardown frees a process whose load failed and fails the wait of any
// process blocked on it.
func (s *Service) teardown(p *Process) {
	s.releaseMemory(p)
	s.stats.Update(stats.Delta{LoadFailed: 1})
	s.publish(event.TypeLoadFailed, p)
	if waiter := p.WaitedOnBy; waiter != 0 {
		s.resume(s.table[waiter], abi.StatusGeneralError)
	}
	p.reset()
}

// resume makes a waiting process ready, optionally overriding the status
// it already has in its argument block.
func (s *Service) resume(p *Process, status abi.Status) {
	if p.State != StateWaiting {
		return
	}
	if p.ArgBlock != arena.Nil {
		if err := abi.WriteStatus(s.mem, p.ArgBlock, status); err != nil {
			log.Printf("scheduler: failed to resolve wait of %d: %v", p.ID, err)
		}
		p.ArgBlock = arena.Nil
	}
	p.State = StateReady
	s.enqueue(p.ID)
}

func (s *Service) releaseMemory(p *Process) {
	if !p.memory {
		return
	}
	p.memory = false
	if err := s.alloc.Free(p.Base); err != nil {
		log.Printf("scheduler: failed to release memory of %d (%s): %v", p.ID, p.Name, err)
	}
}

// Exit terminates the current process. Its memory is released at once; the
// slot is freed unless a live parent may still wait for it, in which case it
// stays as a zombie. ErrHalted reports that no live process is left; the
// idle task is then current.
func (s *Service) Exit(regs *Registers) error {
	if s.table == nil {
		return ErrNotInitialized
	}
	if s.current == IdleSlot {
		return ErrIdle
	}
	p := s.table[s.current]
	s.releaseMemory(p)
	s.orphanChildren(p.ID)
	s.stats.Update(stats.Delta{Exited: 1})
	s.publish(event.TypeExited, p)

	old := StateFree
	switch {
	case p.WaitedOnBy != 0:
		s.resume(s.table[p.WaitedOnBy], abi.StatusOK)
	case p.ParentID != IdleSlot && s.table[p.ParentID].State.Live():
		old = StateZombie
		s.publish(event.TypeZombie, p)
	}
	if old == StateFree {
		p.reset()
	}
	p.State = old

	if s.LiveCount() == 0 {
		s.halted = true
		s.current = IdleSlot
		s.table[IdleSlot].State = StateRunning
		*regs = s.table[IdleSlot].Context
		s.publish(event.TypeHalted, s.table[IdleSlot])
		return ErrHalted
	}
	s.switchTo(regs, old)
	return nil
}

// Halt stops the machine on request of the current process. The table is
// left as is; the idle task becomes current.
func (s *Service) Halt(regs *Registers) error {
	if s.table == nil {
		return ErrNotInitialized
	}
	current := s.table[s.current]
	current.Context = *regs
	if s.current != IdleSlot {
		current.State = StateReady
	}
	s.halted = true
	s.current = IdleSlot
	s.table[IdleSlot].State = StateRunning
	*regs = s.table[IdleSlot].Context
	s.publish(event.TypeHalted, s.table[IdleSlot])
	return ErrHalted
}

// orphanChildren reaps zombie children of pid and hands live ones to the
// kernel so they are freed on exit instead of lingering as zombies.
func (s *Service) orphanChildren(pid int) {
	for _, child := range s.table[1:] {
		if child.ID == pid || child.ParentID != pid || child.State == StateFree {
			continue
		}
		if child.State == StateZombie {
			s.reap(child)
			continue
		}
		child.ParentID = IdleSlot
	}
}

func (s *Service) reap(p *Process) {
	s.stats.Update(stats.Delta{Reaped: 1})
	s.publish(event.TypeReaped, p)
	p.reset()
}

// Sleep blocks the current process until the clock reaches now+duration.
func (s *Service) Sleep(regs *Registers, duration int64) error {
	if s.current == IdleSlot {
		return ErrIdle
	}
	p := s.table[s.current]
	p.WakeAt = s.clock.Now() + duration
	s.enqueue(s.current)
	s.switchTo(regs, StateSleeping)
	return nil
}

// WaitOn blocks the current process until pid exits. It returns -1 for a
// pid outside the table, the caller itself, a free slot or a process that
// already has a waiter. A zombie target is reaped at once without blocking.
// argBlock is the absolute address of the caller's argument block, or
// arena.Nil; its status is overwritten when the wait fails later.
func (s *Service) WaitOn(regs *Registers, pid int, argBlock int) int {
	if pid < 1 || pid >= len(s.table) || pid == s.current || s.current == IdleSlot {
		return -1
	}
	target := s.table[pid]
	if target.State == StateFree || target.WaitedOnBy != 0 {
		return -1
	}
	if target.State == StateZombie {
		s.reap(target)
		return 0
	}
	target.WaitedOnBy = s.current
	s.table[s.current].ArgBlock = argBlock
	s.switchTo(regs, StateWaiting)
	return 0
}

// BeginIO records the pending device request and blocks the current process
// until the request completes. argBlock is the absolute address of the
// argument block whose status is resolved on completion.
func (s *Service) BeginIO(regs *Registers, request *device.Request, argBlock int) error {
	if s.current == IdleSlot {
		return ErrIdle
	}
	p := s.table[s.current]
	p.IO = request
	p.ArgBlock = argBlock
	s.switchTo(regs, StateDoingIO)
	return nil
}

// WakeCompletedIO readies every process whose device request completed and
// resolves its pending call status.
func (s *Service) WakeCompletedIO() {
	for _, p := range s.table[1:] {
		if p.State != StateDoingIO || p.IO == nil || p.IO.Pending() {
			continue
		}
		status := abi.StatusOK
		if p.IO.Failed() {
			status = abi.StatusGeneralError
		}
		if p.ArgBlock != arena.Nil {
			if err := abi.WriteStatus(s.mem, p.ArgBlock, status); err != nil {
				log.Printf("scheduler: failed to resolve i/o of %d: %v", p.ID, err)
			}
		}
		p.IO = nil
		p.ArgBlock = arena.Nil
		p.State = StateReady
		s.enqueue(p.ID)
	}
}

func (s *Service) enqueue(slot int) {
	if err := s.ready.Enqueue(slot); err != nil {
		log.Printf("scheduler: ready queue rejected %d: %v", slot, err)
	}
}

func (s *Service) publish(eventType event.Type, p *Process) {
	if s.publisher == nil {
		return
	}
	anEvent := event.NewEvent(eventType, &event.Context{PID: p.ID, ParentID: p.ParentID, Name: p.Name, Tick: s.clock.Now()})
	if err := s.publisher.Publish(context.Background(), anEvent); err != nil {
		log.Printf("scheduler: failed to publish %s event: %v", eventType, err)
	}
}
