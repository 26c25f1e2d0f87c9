package allocator

import (
	"fmt"

	"github.com/viant/stackos/runtime/arena"
)

// Stats summarises the heap.
type Stats struct {
	FreeBytes  int `json:"freeBytes" yaml:"freeBytes"`
	BusyBytes  int `json:"busyBytes" yaml:"busyBytes"`
	FreeBlocks int `json:"freeBlocks" yaml:"freeBlocks"`
	BusyBlocks int `json:"busyBlocks" yaml:"busyBlocks"`
	Largest    int `json:"largest" yaml:"largest"`
}

// Valid reports whether Validate succeeds.
func (s *Service) Valid() bool {
	return s.Validate() == nil
}

// Validate walks every block and the free list and reports the first
// inconsistency found.
func (s *Service) Validate() error {
	if !s.ready {
		return ErrNotInitialized
	}
	free := map[int]bool{}
	previousFree := false
	for addr := s.base; addr < s.end; {
		if addr+BusyHeaderSize > s.end {
			return fmt.Errorf("%w: truncated header at %08x", ErrCorrupted, addr)
		}
		h := s.readHeader(addr)
		if h.tag&TagMask != Magic {
			return fmt.Errorf("%w: invalid tag %08x at %08x", ErrCorrupted, uint32(h.tag), addr)
		}
		if h.size < MinBlock || h.size%alignment != 0 || addr+h.size > s.end {
			return fmt.Errorf("%w: invalid size %d at %08x", ErrCorrupted, h.size, addr)
		}
		if h.free() {
			if previousFree {
				return fmt.Errorf("%w: adjacent free blocks at %08x", ErrCorrupted, addr)
			}
			f := s.readFooter(h)
			if f.tag != h.tag || f.size != h.size || f.next != h.next || f.prev != h.prev {
				return fmt.Errorf("%w: footer mismatch at %08x", ErrCorrupted, addr)
			}
			free[addr] = true
		} else if h.tag != Magic|BusyBit {
			return fmt.Errorf("%w: invalid tag %08x at %08x", ErrCorrupted, uint32(h.tag), addr)
		}
		previousFree = h.free()
		addr += h.size
	}

	seen := map[int]bool{}
	prev := arena.Nil
	for addr := s.head; addr != arena.Nil; {
		if !free[addr] {
			return fmt.Errorf("%w: free list entry %08x is not a free block", ErrCorrupted, addr)
		}
		if seen[addr] {
			return fmt.Errorf("%w: free list cycle at %08x", ErrCorrupted, addr)
		}
		seen[addr] = true
		h := s.readHeader(addr)
		if h.prev != prev {
			return fmt.Errorf("%w: broken back link at %08x", ErrCorrupted, addr)
		}
		prev = addr
		addr = h.next
	}
	if len(seen) != len(free) {
		return fmt.Errorf("%w: %d free blocks but %d on the free list", ErrCorrupted, len(free), len(seen))
	}
	if s.cursor != arena.Nil && !free[s.cursor] {
		return fmt.Errorf("%w: next-fit cursor %08x is not a free block", ErrCorrupted, s.cursor)
	}
	return nil
}

// Stats walks the heap and totals free and busy blocks. Sizes include
// headers.
func (s *Service) Stats() Stats {
	var stats Stats
	if !s.ready {
		return stats
	}
	s.walk(func(h *header) bool {
		if h.free() {
			stats.FreeBytes += h.size
			stats.FreeBlocks++
			if h.size > stats.Largest {
				stats.Largest = h.size
			}
		} else {
			stats.BusyBytes += h.size
			stats.BusyBlocks++
		}
		return true
	})
	return stats
}

// walk visits blocks in address order, stopping at the first block whose
// header cannot be trusted.
func (s *Service) walk(visit func(h *header) bool) {
	for addr := s.base; addr+BusyHeaderSize <= s.end; {
		h := s.readHeader(addr)
		if h.tag&TagMask != Magic || h.size < MinBlock || addr+h.size > s.end {
			return
		}
		if !visit(h) {
			return
		}
		addr += h.size
	}
}
