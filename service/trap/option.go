package trap

import (
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/stats"
)

// ShutdownMessage is printed when the machine halts.
const ShutdownMessage = "OS Shutting Down\n"

// Config configures the dispatcher.
type Config struct {
	// Quantum is the number of ticks a process may run before preemption.
	Quantum int64 `json:"quantum" yaml:"quantum"`
	// Tracing emits a span per trap and timer interrupt.
	Tracing bool `json:"tracing" yaml:"tracing"`
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{Quantum: 100}
}

type Option func(s *Service)

// WithConfig sets the dispatcher configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithPolicy sets the syscall filter
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithStats sets the counters tracker
func WithStats(tracker *stats.Stats) Option {
	return func(s *Service) {
		s.stats = tracker
	}
}
