package allocator

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/stackos/runtime/arena"
)

// Dump writes the free list head, the next-fit cursor and one line per
// block. A heap that fails validation is reported but not walked.
func (s *Service) Dump(w io.Writer) error {
	if err := s.Validate(); err != nil {
		_, wErr := fmt.Fprintf(w, "heap invalid: %v\n", err)
		return wErr
	}
	if _, err := fmt.Fprintf(w, "Free List: %s\nNext Free: %s\n", link(s.head), link(s.cursor)); err != nil {
		return err
	}
	var err error
	s.walk(func(h *header) bool {
		if h.busy() {
			_, err = fmt.Fprintf(w, "busy: 0x%04X 0x%04X 0x%08X\n", h.addr, h.size, uint32(h.tag))
		} else {
			_, err = fmt.Fprintf(w, "free: 0x%04X 0x%04X 0x%08X: %s %s\n", h.addr, h.size, uint32(h.tag), link(h.next), link(h.prev))
		}
		return err == nil
	})
	return err
}

// DumpString returns Dump output as a string.
func (s *Service) DumpString() string {
	builder := &strings.Builder{}
	_ = s.Dump(builder)
	return builder.String()
}

// Diff returns a unified diff between two heap dumps, or an empty string
// when they are identical.
func Diff(before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "heap (before)",
		ToFile:   "heap (after)",
		Context:  1,
	}
	return difflib.GetUnifiedDiffString(ud)
}

func link(addr int) string {
	if addr == arena.Nil {
		return "0x----"
	}
	return fmt.Sprintf("0x%04X", addr)
}
