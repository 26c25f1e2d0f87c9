package scheduler

import (
	"context"

	"github.com/viant/stackos/service/event"
	"github.com/viant/stackos/stats"
)

// Config configures the process table.
type Config struct {
	MaxProcesses int   `json:"maxProcesses" yaml:"maxProcesses"`
	Quantum      int64 `json:"quantum" yaml:"quantum"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{MaxProcesses: 20, Quantum: 100}
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *event.Event) error
}

type Option func(s *Service)

// WithConfig sets the scheduler configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithPublisher sets the lifecycle event publisher
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithStats sets the counters tracker
func WithStats(tracker *stats.Stats) Option {
	return func(s *Service) {
		s.stats = tracker
	}
}
