package scheduler

import (
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/device"
)

// State is the lifecycle state of a process table slot.
type State int

const (
	StateFree State = iota
	StateLoading
	StateReady
	StateRunning
	StateSleeping
	StateWaiting
	StateDoingIO
	StateZombie
)

var stateNames = [...]string{"free", "loading", "ready", "running", "sleeping", "waiting", "doing_io", "zombie"}

func (s State) String() string {
	if int(s) < len(stateNames) && s >= 0 {
		return stateNames[s]
	}
	return "unknown"
}

// In reports whether s is one of states.
func (s State) In(states ...State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}

// Live reports whether a process in state s still counts as running code.
func (s State) Live() bool {
	return !s.In(StateFree, StateZombie)
}

// FlagUserMode is set in the flags register of every user process.
const FlagUserMode = 0x1

// Registers is the saved CPU context. BP and LP are absolute arena offsets
// bounding the process; SP, FP and IP are relative to BP.
type Registers struct {
	SP    int
	Flags int
	BP    int
	LP    int
	IP    int
	FP    int
}

// Process is a process table entry.
type Process struct {
	ID         int
	State      State
	Context    Registers
	Base       int
	Limit      int
	WakeAt     int64
	IO         *device.Request
	ArgBlock   int
	ParentID   int
	WaitedOnBy int
	Name       string
	Load       *device.Request
	// memory is set while the process owns an allocator block.
	memory bool
}

func (p *Process) reset() {
	*p = Process{ID: p.ID, State: StateFree, ArgBlock: arena.Nil}
}

// Predicate selects process table slots.
type Predicate func(p *Process) bool

// StateIs matches slots in any of states.
func StateIs(states ...State) Predicate {
	return func(p *Process) bool { return p.State.In(states...) }
}
