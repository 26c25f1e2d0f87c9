// Package abi describes the user/kernel calling convention: call numbers,
// status codes and the layout of the four word argument block a process
// places in its own memory before trapping.
//
// Addresses are relative to the caller's base register. Relative address 0
// is the null pointer: it holds the first word of the program image and is
// never a valid argument block or buffer, so a zero pointer is rejected
// with BAD_POINTER like any address outside [base, limit].
package abi

import (
	"fmt"

	"github.com/viant/stackos/runtime/arena"
)

// Null is the relative null pointer.
const Null = 0

// Call identifies a system call.
type Call int32

const (
	CallPrints  = Call(0)
	CallGetI    = Call(1)
	CallGetS    = Call(2)
	CallHalt    = Call(3)
	CallExit    = Call(4)
	CallExec    = Call(5)
	CallYield   = Call(6)
	CallSleep   = Call(7)
	CallGetTime = Call(8)
	CallGetPID  = Call(9)
	CallGetPPID = Call(10)
	CallWait    = Call(11)
)

var callNames = map[Call]string{
	CallPrints:  "prints",
	CallGetI:    "geti",
	CallGetS:    "gets",
	CallHalt:    "halt",
	CallExit:    "exit",
	CallExec:    "exec",
	CallYield:   "yield",
	CallSleep:   "sleep",
	CallGetTime: "get_time",
	CallGetPID:  "get_pid",
	CallGetPPID: "get_ppid",
	CallWait:    "wait",
}

func (c Call) String() string {
	if name, ok := callNames[c]; ok {
		return name
	}
	return fmt.Sprintf("call(%d)", int32(c))
}

// Known reports whether c is a defined call.
func (c Call) Known() bool {
	_, ok := callNames[c]
	return ok
}

// Status is written back into the argument block.
type Status int32

const (
	StatusOK              = Status(0)
	StatusGeneralError    = Status(1)
	StatusNoSuchCall      = Status(2)
	StatusInvalidArgument = Status(4)
	StatusBadPointer      = Status(8)
	StatusResultPending   = Status(16)
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusGeneralError:
		return "GENERAL_ERROR"
	case StatusNoSuchCall:
		return "NO_SUCH_CALL"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusBadPointer:
		return "BAD_POINTER"
	case StatusResultPending:
		return "RESULT_PENDING"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Argument block layout, in bytes from the block start.
const (
	OffsetCall   = 0
	OffsetBuffer = 4
	OffsetSize   = 8
	OffsetStatus = 12
	BlockSize    = 16
)

// GetsScratch is the minimum buffer a GETS caller must provide.
const GetsScratch = 256

// Args is a decoded argument block. Buffer is process relative.
type Args struct {
	Call   Call
	Buffer int
	Size   int
	Status Status
}

// ReadArgs decodes the block at the absolute address addr.
func ReadArgs(mem *arena.Arena, addr int) (*Args, error) {
	if !mem.Contains(addr, BlockSize) {
		return nil, fmt.Errorf("%w: argument block at %08x", arena.ErrOutOfBounds, addr)
	}
	return &Args{
		Call:   Call(mem.Load32(addr + OffsetCall)),
		Buffer: int(mem.Load32(addr + OffsetBuffer)),
		Size:   int(mem.Load32(addr + OffsetSize)),
		Status: Status(mem.Load32(addr + OffsetStatus)),
	}, nil
}

// WriteStatus stores status into the block at addr.
func WriteStatus(mem *arena.Arena, addr int, status Status) error {
	return mem.SetWord(addr+OffsetStatus, int32(status))
}

// WriteValue stores a returned number into the size slot of the block.
func WriteValue(mem *arena.Arena, addr int, value int) error {
	return mem.SetWord(addr+OffsetSize, int32(value))
}

// WriteArgs encodes a block at addr; processes and tests use it to issue
// calls.
func WriteArgs(mem *arena.Arena, addr int, args *Args) error {
	if !mem.Contains(addr, BlockSize) {
		return fmt.Errorf("%w: argument block at %08x", arena.ErrOutOfBounds, addr)
	}
	mem.Store32(addr+OffsetCall, int32(args.Call))
	mem.Store32(addr+OffsetBuffer, int32(args.Buffer))
	mem.Store32(addr+OffsetSize, int32(args.Size))
	mem.Store32(addr+OffsetStatus, int32(args.Status))
	return nil
}
