// Package stats keeps aggregated kernel counters for one boot session. The
// tracker can travel in a context so the trap path can update it without a
// global registry.
package stats

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the scheduler
// or the trap dispatcher.
type Delta struct {
	Spawned    int
	Loaded     int
	LoadFailed int
	Exited     int
	Reaped     int
	Switches   int
	Traps      int
	Timer      int
	Rejected   int
}

// Stats keeps kernel counters. It is safe for concurrent use.
type Stats struct {
	Session  string
	BootedAt time.Time

	Spawned    int
	Loaded     int
	LoadFailed int
	Exited     int
	Reaped     int
	Switches   int
	Traps      int
	Timer      int
	// Rejected counts calls that failed validation or policy.
	Rejected int

	sync.Mutex
	onChange func(Stats)
}

// New creates a tracker for session.
func New(session string) *Stats {
	return &Stats{Session: session, BootedAt: time.Now()}
}

// Update applies d. The onChange callback, if any, receives a copy taken
// under the lock and runs outside it.
func (s *Stats) Update(d Delta) {
	if s == nil {
		return
	}
	s.Lock()
	s.Spawned += d.Spawned
	s.Loaded += d.Loaded
	s.LoadFailed += d.LoadFailed
	s.Exited += d.Exited
	s.Reaped += d.Reaped
	s.Switches += d.Switches
	s.Traps += d.Traps
	s.Timer += d.Timer
	s.Rejected += d.Rejected
	snapshot := s.copy()
	cb := s.onChange
	s.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

func (s *Stats) copy() Stats {
	return Stats{
		Session:    s.Session,
		BootedAt:   s.BootedAt,
		Spawned:    s.Spawned,
		Loaded:     s.Loaded,
		LoadFailed: s.LoadFailed,
		Exited:     s.Exited,
		Reaped:     s.Reaped,
		Switches:   s.Switches,
		Traps:      s.Traps,
		Timer:      s.Timer,
		Rejected:   s.Rejected,
	}
}

// Snapshot returns a copy for read-only inspection.
func (s *Stats) Snapshot() Stats {
	if s == nil {
		return Stats{}
	}
	s.Lock()
	defer s.Unlock()
	return s.copy()
}

// OnChange registers a callback invoked after every Update. nil disables it.
func (s *Stats) OnChange(cb func(Stats)) {
	if s == nil {
		return
	}
	s.Lock()
	s.onChange = cb
	s.Unlock()
}

type statsKeyT struct{}

var statsKey statsKeyT

// WithStats embeds s in ctx.
func WithStats(ctx context.Context, s *Stats) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, statsKey, s)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Stats, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(statsKey).(*Stats)
	return s, ok
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if s, ok := FromContext(ctx); ok {
		s.Update(d)
	}
}
