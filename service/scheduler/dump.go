package scheduler

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes the occupied process table slots, the ready queue and the
// current process.
func (s *Service) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%-4s %-9s %-6s %-16s %-8s %-8s %s\n", "PID", "STATE", "PARENT", "NAME", "BASE", "LIMIT", "DETAIL"); err != nil {
		return err
	}
	for _, p := range s.table {
		if p.State == StateFree && p.ID != IdleSlot {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-4d %-9s %-6d %-16s %08x %08x %s\n", p.ID, p.State, p.ParentID, p.Name, p.Base, p.Limit, s.detail(p)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "ready: %v\ncurrent: %d\n", s.ReadyQueue(), s.current)
	return err
}

// DumpString returns Dump output as a string.
func (s *Service) DumpString() string {
	builder := &strings.Builder{}
	_ = s.Dump(builder)
	return builder.String()
}

func (s *Service) detail(p *Process) string {
	switch p.State {
	case StateSleeping:
		return fmt.Sprintf("wakes at %d (now %d)", p.WakeAt, s.clock.Now())
	case StateDoingIO:
		if p.IO == nil {
			return "no request registered"
		}
		return fmt.Sprintf("op %#x", uint32(p.IO.Op()))
	case StateLoading:
		if p.Load != nil && !p.Load.Pending() {
			return "loaded, not finalized"
		}
		return "loading"
	case StateWaiting:
		for _, target := range s.table[1:] {
			if target.WaitedOnBy == p.ID && target.State != StateFree {
				return fmt.Sprintf("on %d", target.ID)
			}
		}
	case StateRunning, StateReady:
		return fmt.Sprintf("sp=%#x ip=%#x fp=%#x", p.Context.SP, p.Context.IP, p.Context.FP)
	}
	return ""
}
