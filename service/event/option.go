package event

import (
	"time"

	"github.com/viant/afs"
	"github.com/viant/stackos/service/messaging/fs"
	"github.com/viant/stackos/service/messaging/memory"
)

type Option func(s *Service)

// WithFsConfig sets the file system spool configuration
func WithFsConfig(config fs.Config) Option {
	return func(s *Service) {
		s.fsConfig = &config
	}
}

// WithMemoryConfig sets the memory queue configuration
func WithMemoryConfig(config memory.Config) Option {
	return func(s *Service) {
		s.memConfig = &config
	}
}

// WithFs sets the storage service used by the fs vendor
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithSession sets the boot session stamped on every event
func WithSession(session string) Option {
	return func(s *Service) {
		s.session = session
	}
}

// WithPollInterval sets how often a listener re-polls an empty spool
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.poll = interval
	}
}
