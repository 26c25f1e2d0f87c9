package allocator

import "github.com/viant/stackos/runtime/arena"

const (
	// Magic tags every block header.
	Magic = int32(0x3BADEBAD)
	// BusyBit marks an allocated block.
	BusyBit = int32(0x40000000)
	// TagMask strips the busy bit from a tag.
	TagMask = int32(0x3FFFFFFF)

	// FreeHeaderSize is the size of a free header (and of its footer copy).
	FreeHeaderSize = 16
	// BusyHeaderSize is the size of a busy header.
	BusyHeaderSize = 8
	// MinPayload is the smallest payload handed out; a block this size can
	// always be turned back into a free block.
	MinPayload = 2*FreeHeaderSize - BusyHeaderSize
	// MinBlock is the smallest valid block.
	MinBlock = 2 * FreeHeaderSize

	alignment = 8
)

const (
	offTag  = 0
	offSize = 4
	offNext = 8
	offPrev = 12
)

// header is a decoded block header.
type header struct {
	addr int
	tag  int32
	size int
	next int
	prev int
}

func (h *header) busy() bool { return h.tag&BusyBit != 0 }

func (h *header) free() bool { return h.tag == Magic }

func (s *Service) readHeader(addr int) *header {
	h := &header{addr: addr,
		tag:  s.mem.Load32(addr + offTag),
		size: int(s.mem.Load32(addr + offSize)),
		next: arena.Nil,
		prev: arena.Nil,
	}
	if h.free() {
		h.next = int(s.mem.Load32(addr + offNext))
		h.prev = int(s.mem.Load32(addr + offPrev))
	}
	return h
}

func (s *Service) readFooter(h *header) *header {
	at := h.addr + h.size - FreeHeaderSize
	return &header{addr: at,
		tag:  s.mem.Load32(at + offTag),
		size: int(s.mem.Load32(at + offSize)),
		next: int(s.mem.Load32(at + offNext)),
		prev: int(s.mem.Load32(at + offPrev)),
	}
}

// writeFree stamps a free header and its footer.
func (s *Service) writeFree(addr, size, next, prev int) {
	for _, at := range []int{addr, addr + size - FreeHeaderSize} {
		s.mem.Store32(at+offTag, Magic)
		s.mem.Store32(at+offSize, int32(size))
		s.mem.Store32(at+offNext, int32(next))
		s.mem.Store32(at+offPrev, int32(prev))
	}
}

func (s *Service) writeBusy(addr, size int) {
	s.mem.Store32(addr+offTag, Magic|BusyBit)
	s.mem.Store32(addr+offSize, int32(size))
}

func (s *Service) setNext(addr, next int) {
	h := s.readHeader(addr)
	s.writeFree(addr, h.size, next, h.prev)
}

func (s *Service) setPrev(addr, prev int) {
	h := s.readHeader(addr)
	s.writeFree(addr, h.size, h.next, prev)
}

// inRegion reports whether a block of size bytes at addr lies in the heap.
func (s *Service) inRegion(addr, size int) bool {
	return addr >= s.base && size >= MinBlock && addr+size <= s.end && (addr-s.base)%alignment == 0
}

// trustedFree returns the free block at addr when every piece of in-band
// metadata agrees: tag, header/footer copy and free-list links.
func (s *Service) trustedFree(addr int) *header {
	if addr < s.base || addr+FreeHeaderSize > s.end {
		return nil
	}
	h := s.readHeader(addr)
	if !h.free() || !s.inRegion(addr, h.size) {
		return nil
	}
	f := s.readFooter(h)
	if f.tag != h.tag || f.size != h.size || f.next != h.next || f.prev != h.prev {
		return nil
	}
	if h.prev == arena.Nil {
		if s.head != addr {
			return nil
		}
	} else if !s.linkPoints(h.prev, offNext, addr) {
		return nil
	}
	if h.next != arena.Nil && !s.linkPoints(h.next, offPrev, addr) {
		return nil
	}
	return h
}

func (s *Service) linkPoints(from, offset, to int) bool {
	if from < s.base || from+FreeHeaderSize > s.end {
		return false
	}
	return int(s.mem.Load32(from+offset)) == to
}

// prevFree locates the free block ending right before addr via its footer.
func (s *Service) prevFree(addr int) *header {
	footer := addr - FreeHeaderSize
	if footer < s.base {
		return nil
	}
	if s.mem.Load32(footer+offTag) != Magic {
		return nil
	}
	size := int(s.mem.Load32(footer + offSize))
	if size < MinBlock || addr-size < s.base {
		return nil
	}
	h := s.trustedFree(addr - size)
	if h == nil || h.size != size {
		// a stale footer left in a payload can name a block that is not adjacent
		return nil
	}
	return h
}

// nextFree locates the free block starting right after the block at addr.
func (s *Service) nextFree(addr, size int) *header {
	next := addr + size
	if next >= s.end {
		return nil
	}
	return s.trustedFree(next)
}

// unlink removes a free block from the list, moving the cursor past it.
func (s *Service) unlink(h *header) {
	if h.prev != arena.Nil {
		s.setNext(h.prev, h.next)
	} else {
		s.head = h.next
	}
	if h.next != arena.Nil {
		s.setPrev(h.next, h.prev)
	}
	if s.cursor == h.addr {
		s.cursor = h.next
	}
}

// pushFront inserts a free block of size bytes at the list head.
func (s *Service) pushFront(addr, size int) {
	s.writeFree(addr, size, s.head, arena.Nil)
	if s.head != arena.Nil {
		s.setPrev(s.head, addr)
	}
	s.head = addr
}

// replace puts a new free block of size bytes at addr in the list position
// held by old.
func (s *Service) replace(old *header, addr, size int) {
	s.writeFree(addr, size, old.next, old.prev)
	if old.prev != arena.Nil {
		s.setNext(old.prev, addr)
	} else {
		s.head = addr
	}
	if old.next != arena.Nil {
		s.setPrev(old.next, addr)
	}
	if s.cursor == old.addr {
		s.cursor = addr
	}
}

// roundPayload applies the minimum payload and the 8 byte alignment.
func roundPayload(size int) int {
	if size < MinPayload {
		size = MinPayload
	}
	if rem := size % alignment; rem != 0 {
		size += alignment - rem
	}
	return size
}

// scrub erases the tag of a header absorbed into a larger free block so a
// stale pointer to it can no longer pass as a block.
func (s *Service) scrub(addr int) {
	s.mem.Store32(addr+offTag, 0)
}

// maxBlocks bounds any list traversal by the number of blocks that fit in
// the region.
func (s *Service) maxBlocks() int {
	return (s.end-s.base)/MinBlock + 1
}
