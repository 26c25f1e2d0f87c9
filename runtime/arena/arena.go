// Package arena models the machine's physical memory as a flat byte array.
// Every "pointer" in the kernel is an offset into an Arena and every access
// goes through a bounds-checked accessor.
package arena

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WordSize is the width of a machine word in bytes.
const WordSize = 4

// Nil is the null arena offset used by in-band links.
const Nil = -1

// ErrOutOfBounds is returned when an access falls outside the arena.
var ErrOutOfBounds = errors.New("arena: address out of bounds")

// Arena is a byte-addressable memory region. Words are little-endian int32.
type Arena struct {
	mem []byte
}

// New allocates an arena of size bytes, zero filled.
func New(size int) *Arena {
	if size < 0 {
		size = 0
	}
	return &Arena{mem: make([]byte, size)}
}

// Size returns the arena size in bytes.
func (a *Arena) Size() int { return len(a.mem) }

// Contains reports whether [addr, addr+length) lies inside the arena.
func (a *Arena) Contains(addr, length int) bool {
	if addr < 0 || length < 0 {
		return false
	}
	return addr <= len(a.mem) && length <= len(a.mem)-addr
}

// Word reads the word at addr.
func (a *Arena) Word(addr int) (int32, error) {
	if !a.Contains(addr, WordSize) {
		return 0, fmt.Errorf("%w: word at %08x", ErrOutOfBounds, addr)
	}
	return int32(binary.LittleEndian.Uint32(a.mem[addr:])), nil
}

// SetWord writes value at addr.
func (a *Arena) SetWord(addr int, value int32) error {
	if !a.Contains(addr, WordSize) {
		return fmt.Errorf("%w: word at %08x", ErrOutOfBounds, addr)
	}
	binary.LittleEndian.PutUint32(a.mem[addr:], uint32(value))
	return nil
}

// Load32 reads a word the caller has already range checked; an illegal
// address is a kernel bug and panics.
func (a *Arena) Load32(addr int) int32 {
	if !a.Contains(addr, WordSize) {
		panic(fmt.Sprintf("illegal address %08x", addr))
	}
	return int32(binary.LittleEndian.Uint32(a.mem[addr:]))
}

// Store32 is the writing counterpart of Load32.
func (a *Arena) Store32(addr int, value int32) {
	if !a.Contains(addr, WordSize) {
		panic(fmt.Sprintf("illegal address %08x", addr))
	}
	binary.LittleEndian.PutUint32(a.mem[addr:], uint32(value))
}

// Byte reads one byte.
func (a *Arena) Byte(addr int) (byte, error) {
	if !a.Contains(addr, 1) {
		return 0, fmt.Errorf("%w: byte at %08x", ErrOutOfBounds, addr)
	}
	return a.mem[addr], nil
}

// SetByte writes one byte.
func (a *Arena) SetByte(addr int, value byte) error {
	if !a.Contains(addr, 1) {
		return fmt.Errorf("%w: byte at %08x", ErrOutOfBounds, addr)
	}
	a.mem[addr] = value
	return nil
}

// Slice returns a view of [addr, addr+length). Writes through the view
// modify the arena.
func (a *Arena) Slice(addr, length int) ([]byte, error) {
	if !a.Contains(addr, length) {
		return nil, fmt.Errorf("%w: %d bytes at %08x", ErrOutOfBounds, length, addr)
	}
	return a.mem[addr : addr+length : addr+length], nil
}

// Write copies data to addr.
func (a *Arena) Write(addr int, data []byte) error {
	if !a.Contains(addr, len(data)) {
		return fmt.Errorf("%w: %d bytes at %08x", ErrOutOfBounds, len(data), addr)
	}
	copy(a.mem[addr:], data)
	return nil
}

// Fill sets length bytes starting at addr to value.
func (a *Arena) Fill(addr, length int, value byte) error {
	view, err := a.Slice(addr, length)
	if err != nil {
		return err
	}
	for i := range view {
		view[i] = value
	}
	return nil
}

// CString scans at most max bytes from addr for a null terminator and
// returns the string before it. ok is false when no terminator was found
// within max bytes.
func (a *Arena) CString(addr, max int) (value string, ok bool, err error) {
	view, err := a.Slice(addr, max)
	if err != nil {
		return "", false, err
	}
	idx := bytes.IndexByte(view, 0)
	if idx < 0 {
		return "", false, nil
	}
	return string(view[:idx]), true, nil
}

// PutCString writes value followed by a terminator, truncating so the
// result including the terminator fits in max bytes. It returns the number
// of bytes written without the terminator.
func (a *Arena) PutCString(addr, max int, value string) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("%w: empty buffer at %08x", ErrOutOfBounds, addr)
	}
	view, err := a.Slice(addr, max)
	if err != nil {
		return 0, err
	}
	n := copy(view[:max-1], value)
	view[n] = 0
	return n, nil
}
