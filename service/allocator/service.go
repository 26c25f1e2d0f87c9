package allocator

import (
	"errors"
	"fmt"

	"github.com/viant/stackos/runtime/arena"
)

var (
	// ErrNotInitialized is returned when the heap is used before Init.
	ErrNotInitialized = errors.New("allocator: not initialized")
	// ErrOutOfMemory is returned when no block can satisfy a request.
	ErrOutOfMemory = errors.New("allocator: out of memory")
	// ErrInvalidPointer is returned for a pointer that does not address the
	// payload of a busy block.
	ErrInvalidPointer = errors.New("allocator: invalid pointer")
	// ErrCorrupted is returned by Validate when the heap walk fails.
	ErrCorrupted = errors.New("allocator: heap corrupted")
)

// Service is a first-class heap over a region of the arena.
type Service struct {
	mem    *arena.Arena
	base   int
	end    int
	head   int
	cursor int
	ready  bool
}

// New creates an allocator over mem. Init must be called before use.
func New(mem *arena.Arena) *Service {
	return &Service{mem: mem, head: arena.Nil, cursor: arena.Nil}
}

// Arena returns the backing memory.
func (s *Service) Arena() *arena.Arena { return s.mem }

// Region returns the managed [base, end) range.
func (s *Service) Region() (int, int) { return s.base, s.end }

// Init establishes a single free block spanning [base, base+size). size is
// truncated down to the block alignment.
func (s *Service) Init(base, size int) error {
	size -= size % alignment
	if size < MinBlock {
		return fmt.Errorf("%w: region of %d bytes is too small", ErrOutOfMemory, size)
	}
	if !s.mem.Contains(base, size) {
		return fmt.Errorf("allocator: region %08x+%d: %w", base, size, arena.ErrOutOfBounds)
	}
	s.base = base
	s.end = base + size
	s.head = base
	s.cursor = base
	s.writeFree(base, size, arena.Nil, arena.Nil)
	s.ready = true
	return nil
}

// Allocate returns the payload address of a block holding at least size
// bytes. The search starts at the free block following the last allocation.
func (s *Service) Allocate(size int) (int, error) {
	if !s.ready {
		return 0, ErrNotInitialized
	}
	if size < 0 || size > s.end-s.base {
		return 0, fmt.Errorf("%w: size %d", ErrOutOfMemory, size)
	}
	start := s.cursor
	if start == arena.Nil {
		start = s.head
	}
	if start == arena.Nil {
		return 0, ErrOutOfMemory
	}
	need := roundPayload(size) + BusyHeaderSize
	candidate := start
	for steps := s.maxBlocks(); steps > 0; steps-- {
		h := s.readHeader(candidate)
		if h.size >= need {
			if h.size > need+MinBlock {
				// carve the busy block off the end so the free block keeps its list position
				remaining := h.size - need
				s.writeFree(h.addr, remaining, h.next, h.prev)
				busy := h.addr + remaining
				s.writeBusy(busy, need)
				return busy + BusyHeaderSize, nil
			}
			s.unlink(h)
			s.cursor = h.next
			s.writeBusy(h.addr, h.size)
			return h.addr + BusyHeaderSize, nil
		}
		candidate = h.next
		if candidate == arena.Nil {
			candidate = s.head
		}
		if candidate == start {
			break
		}
	}
	return 0, ErrOutOfMemory
}

// busyBlock validates ptr as a payload address and returns its header.
func (s *Service) busyBlock(ptr int) (*header, error) {
	if !s.ready {
		return nil, ErrNotInitialized
	}
	addr := ptr - BusyHeaderSize
	if addr < s.base || addr+BusyHeaderSize > s.end {
		return nil, fmt.Errorf("%w: %08x outside heap", ErrInvalidPointer, ptr)
	}
	h := s.readHeader(addr)
	if h.tag != Magic|BusyBit {
		return nil, fmt.Errorf("%w: %08x is not an allocated block", ErrInvalidPointer, ptr)
	}
	if !s.inRegion(addr, h.size) {
		return nil, fmt.Errorf("%w: %08x has bad size %d", ErrInvalidPointer, ptr, h.size)
	}
	return h, nil
}

// Free returns the block owning ptr to the heap, merging it with free
// neighbours.
func (s *Service) Free(ptr int) error {
	block, err := s.busyBlock(ptr)
	if err != nil {
		return err
	}
	prev := s.prevFree(block.addr)
	next := s.nextFree(block.addr, block.size)
	switch {
	case prev != nil && next != nil:
		s.unlink(next)
		// unlinking next may have rewritten prev's links
		prev = s.readHeader(prev.addr)
		s.writeFree(prev.addr, prev.size+block.size+next.size, prev.next, prev.prev)
		s.scrub(block.addr)
		s.scrub(next.addr)
	case prev != nil:
		s.writeFree(prev.addr, prev.size+block.size, prev.next, prev.prev)
		s.scrub(block.addr)
	case next != nil:
		s.replace(next, block.addr, block.size+next.size)
		s.scrub(next.addr)
	default:
		s.pushFront(block.addr, block.size)
	}
	return nil
}

// LargestFree removes the largest free block from the list, marks it busy
// and returns its payload address and payload capacity.
func (s *Service) LargestFree() (int, int, error) {
	if !s.ready {
		return 0, 0, ErrNotInitialized
	}
	start := s.cursor
	if start == arena.Nil {
		start = s.head
	}
	if start == arena.Nil {
		return 0, 0, ErrOutOfMemory
	}
	largest := s.readHeader(start)
	steps := s.maxBlocks()
	for candidate := s.advance(start); candidate != start && steps > 0; candidate, steps = s.advance(candidate), steps-1 {
		h := s.readHeader(candidate)
		if h.size > largest.size {
			largest = h
		}
	}
	s.unlink(largest)
	s.cursor = largest.next
	s.writeBusy(largest.addr, largest.size)
	return largest.addr + BusyHeaderSize, largest.size - BusyHeaderSize, nil
}

func (s *Service) advance(addr int) int {
	next := int(s.mem.Load32(addr + offNext))
	if next == arena.Nil {
		return s.head
	}
	return next
}

// Shrink trims the busy block whose payload starts at base so that it ends
// at newLimit, returning the tail to the heap. The block is kept whole when
// the tail would be too small to stand as a free block.
func (s *Service) Shrink(base, newLimit int) (int, error) {
	block, err := s.busyBlock(base)
	if err != nil {
		return 0, err
	}
	if newLimit < base {
		return 0, fmt.Errorf("%w: limit %08x below base %08x", ErrOutOfMemory, newLimit, base)
	}
	if newLimit-base > block.size-BusyHeaderSize {
		return 0, fmt.Errorf("%w: limit %08x past block of %d", ErrOutOfMemory, newLimit, block.size)
	}
	need := roundPayload(newLimit-base) + BusyHeaderSize
	if need > block.size {
		return 0, fmt.Errorf("%w: %d bytes exceed block of %d", ErrOutOfMemory, need, block.size)
	}
	remainder := block.size - need
	if remainder < MinBlock {
		return base, nil
	}
	next := s.nextFree(block.addr, block.size)
	s.writeBusy(block.addr, need)
	tail := block.addr + need
	if next != nil {
		s.replace(next, tail, remainder+next.size)
		s.scrub(next.addr)
	} else {
		s.pushFront(tail, remainder)
	}
	return base, nil
}

// Size returns the payload capacity of the busy block at ptr.
func (s *Service) Size(ptr int) (int, error) {
	block, err := s.busyBlock(ptr)
	if err != nil {
		return 0, err
	}
	return block.size - BusyHeaderSize, nil
}
