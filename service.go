package stackos

import (
	"fmt"
	"io"
	"os"

	"github.com/viant/afs"
	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/internal/idgen"
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/allocator"
	"github.com/viant/stackos/service/console"
	"github.com/viant/stackos/service/device"
	"github.com/viant/stackos/service/event"
	"github.com/viant/stackos/service/loader"
	"github.com/viant/stackos/service/messaging"
	"github.com/viant/stackos/service/messaging/fs"
	"github.com/viant/stackos/service/messaging/memory"
	"github.com/viant/stackos/service/scheduler"
	"github.com/viant/stackos/service/trap"
	"github.com/viant/stackos/stats"
)

// Service assembles a machine and its kernel.
type Service struct {
	config   *Config
	fs       afs.Service
	out      io.Writer
	clock    *clock.Counter
	session  string
	events   *event.Service
	listener event.Handler
	policy   *policy.Policy
	stats    *stats.Stats
	tracing  bool
	runtime  *Runtime

	statsListener func(stats.Stats)
}

// New creates a booted kernel with an empty process table.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.ensureBaseSetup(); err != nil {
		return err
	}
	mem := arena.New(s.config.Memory.Size)
	alloc := allocator.New(mem)
	base, size := s.config.Memory.Region()
	if err := alloc.Init(base, size); err != nil {
		return fmt.Errorf("failed to initialise memory: %w", err)
	}
	load := loader.New(s.config.Loader, loader.NewStore(s.fs, s.config.Loader.BaseURL), mem, s.clock)
	terminal := console.New(s.config.Console, s.out, mem)

	schedulerOptions := []scheduler.Option{scheduler.WithConfig(s.config.Scheduler), scheduler.WithStats(s.stats)}
	if s.events != nil {
		schedulerOptions = append(schedulerOptions, scheduler.WithPublisher(s.events.Publisher()))
		if s.listener != nil {
			s.events.SetListener(s.listener)
		}
	}
	sched := scheduler.New(alloc, load, s.clock, schedulerOptions...)
	sched.Init()
	dispatcher := trap.New(sched, mem, terminal, s.clock,
		trap.WithConfig(trap.Config{Quantum: s.config.Scheduler.Quantum, Tracing: s.config.Tracing || s.tracing}),
		trap.WithPolicy(s.policy),
		trap.WithStats(s.stats))

	s.runtime = &Runtime{
		mem:     mem,
		alloc:   alloc,
		sched:   sched,
		loader:  load,
		console: terminal,
		trap:    dispatcher,
		clock:   s.clock,
		stats:   s.stats,
		events:  s.events,
		devices: []device.Ticker{load, terminal},
	}
	return nil
}

func (s *Service) ensureBaseSetup() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.clock == nil {
		s.clock = clock.New(0)
	}
	if s.session == "" {
		s.session = idgen.New()
	}
	if s.stats == nil {
		s.stats = stats.New(s.session)
	}
	if s.statsListener != nil {
		s.stats.OnChange(s.statsListener)
	}
	if s.policy == nil {
		s.policy = policy.FromConfig(s.config.Policy)
	} else {
		s.config.Policy = policy.ToConfig(s.policy)
	}
	if s.events == nil && s.config.Events.Vendor != "" {
		events, err := s.newEventService()
		if err != nil {
			return fmt.Errorf("failed to create event service: %w", err)
		}
		s.events = events
	}
	return nil
}

func (s *Service) newEventService() (*event.Service, error) {
	options := []event.Option{event.WithSession(s.session), event.WithFs(s.fs)}
	switch s.config.Events.Vendor {
	case messaging.VendorFS:
		config := fs.DefaultConfig()
		if s.config.Events.BasePath != "" {
			config.BasePath = s.config.Events.BasePath
		}
		options = append(options, event.WithFsConfig(config))
	case messaging.VendorMemory:
		config := memory.DefaultConfig()
		if s.config.Events.Buffer > 0 {
			config.Buffer = s.config.Events.Buffer
		}
		options = append(options, event.WithMemoryConfig(config))
	}
	return event.New(s.config.Events.Vendor, options...)
}

// Runtime returns the running machine.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the effective configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Session returns the boot session id.
func (s *Service) Session() string {
	return s.session
}

// Stats returns the kernel counters.
func (s *Service) Stats() *stats.Stats {
	return s.stats
}

// Events returns the lifecycle event service, or nil when events are off.
func (s *Service) Events() *event.Service {
	return s.events
}
