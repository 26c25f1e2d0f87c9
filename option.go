package stackos

import (
	"io"

	"github.com/viant/afs"
	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/service/event"
	"github.com/viant/stackos/stats"
	"github.com/viant/stackos/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures a Service.
type Option func(s *Service)

// WithConfig sets the machine configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithFs sets the file system used for images and the fs event spool
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithOutput sets the console output
func WithOutput(w io.Writer) Option {
	return func(s *Service) {
		s.out = w
	}
}

// WithClock overrides the machine instruction counter
func WithClock(clk *clock.Counter) Option {
	return func(s *Service) {
		s.clock = clk
	}
}

// WithSession sets the boot session id
func WithSession(session string) Option {
	return func(s *Service) {
		s.session = session
	}
}

// WithEventService sets the lifecycle event service, overriding the events
// config section
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithEventListener registers a handler for lifecycle events; an event whose
// handler fails is retried.
func WithEventListener(handler event.Handler) Option {
	return func(s *Service) {
		s.listener = handler
	}
}

// WithStatsListener registers a callback receiving the counters after every
// change.
func WithStatsListener(listener func(stats.Stats)) Option {
	return func(s *Service) {
		s.statsListener = listener
	}
}

// WithPolicy sets the syscall policy, overriding the policy config section
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

// WithTracing configures OpenTelemetry tracing with the stdout exporter and
// enables trap spans. An empty outputFile writes to os.Stdout.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracing = tracing.Init(serviceName, serviceVersion, outputFile) == nil
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracing = tracing.InitWithExporter(serviceName, serviceVersion, exporter) == nil
	}
}
