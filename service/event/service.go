package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/stackos/service/messaging"
	"github.com/viant/stackos/service/messaging/fs"
	"github.com/viant/stackos/service/messaging/memory"
)

type Service struct {
	vendor    messaging.Vendor
	publisher *Publisher
	listener  *Listener
	fs        afs.Service
	fsConfig  *fs.Config
	memConfig *memory.Config
	session   string
	poll      time.Duration
	mux       sync.Mutex
}

func New(vendor messaging.Vendor, opts ...Option) (*Service, error) {
	ret := &Service{vendor: vendor, poll: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(ret)
	}
	queue, err := ret.newQueue()
	if err != nil {
		return nil, err
	}
	ret.publisher = NewPublisher(queue, ret.session)
	return ret, nil
}

func (s *Service) newQueue() (messaging.Queue[Event], error) {
	switch s.vendor {
	case messaging.VendorFS:
		if s.fsConfig == nil {
			defaultConfig := fs.DefaultConfig()
			s.fsConfig = &defaultConfig
		}
		if s.fs == nil {
			s.fs = afs.New()
		}
		return fs.NewQueue[Event](s.fs, *s.fsConfig)
	case messaging.VendorMemory:
		if s.memConfig == nil {
			defaultConfig := memory.DefaultConfig()
			s.memConfig = &defaultConfig
		}
		return memory.NewQueue[Event](*s.memConfig), nil
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.vendor)
}

// Publisher returns the kernel event publisher
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// SetListener replaces the event handler, stopping the previous one.
func (s *Service) SetListener(handler Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener(s.publisher, handler, s.poll)
	s.listener.Start()
}

// Close stops the listener, if any.
func (s *Service) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
}
