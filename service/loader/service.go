// Package loader simulates the program loading device. A load request names
// an image and the arena region reserved for it; after a configurable number
// of machine ticks the device copies the image into the region, writes the
// stack size word right after it and completes the request with the image
// size.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/device"
)

// ErrImageTooLarge is reported when image, stack word and stack do not fit
// in the reserved region.
var ErrImageTooLarge = errors.New("loader: image does not fit")

// Config configures the loading device.
type Config struct {
	BaseURL      string `json:"baseURL" yaml:"baseURL"`
	Latency      int64  `json:"latency" yaml:"latency"`
	DefaultStack int    `json:"defaultStack" yaml:"defaultStack"`
	Entry        int    `json:"entry" yaml:"entry"`
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "mem://localhost/stackos/images",
		Latency:      2,
		DefaultStack: 1024,
		Entry:        8,
	}
}

type job struct {
	request *device.Request
	due     int64
}

// Service is the simulated loader device.
type Service struct {
	config Config
	store  *Store
	mem    *arena.Arena
	clock  clock.Clock
	jobs   []*job
	mux    sync.Mutex
}

// New creates a loader writing into mem and reading from store.
func New(config Config, store *Store, mem *arena.Arena, clk clock.Clock) *Service {
	return &Service{config: config, store: store, mem: mem, clock: clk}
}

// Store returns the image store.
func (s *Service) Store() *Store { return s.store }

// Submit queues a load request; it completes on the first Tick at or after
// now + latency.
func (s *Service) Submit(ctx context.Context, request *device.Request) error {
	if request.Op() != device.OpExec {
		return fmt.Errorf("loader: unsupported op %d", request.Op())
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.jobs = append(s.jobs, &job{request: request, due: s.clock.Now() + s.config.Latency})
	return nil
}

// Pending returns the number of requests not yet completed.
func (s *Service) Pending() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.jobs)
}

// Tick completes every request that is due.
func (s *Service) Tick(now int64) {
	s.mux.Lock()
	var due []*job
	remaining := s.jobs[:0]
	for _, candidate := range s.jobs {
		if candidate.due <= now {
			due = append(due, candidate)
		} else {
			remaining = append(remaining, candidate)
		}
	}
	s.jobs = remaining
	s.mux.Unlock()
	for _, item := range due {
		s.load(context.Background(), item.request)
	}
}

func (s *Service) load(ctx context.Context, request *device.Request) {
	image, err := s.store.Load(ctx, request.Name)
	if err != nil {
		request.Fail(err)
		return
	}
	stack := image.Manifest.Stack
	if stack <= 0 {
		stack = s.config.DefaultStack
	}
	entry := image.Manifest.Entry
	if entry <= 0 {
		entry = s.config.Entry
	}
	size := len(image.Code)
	if size+arena.WordSize+stack > request.Limit-request.Base {
		request.Fail(fmt.Errorf("%w: %s needs %d bytes, region has %d", ErrImageTooLarge, image.Name, size+arena.WordSize+stack, request.Limit-request.Base))
		return
	}
	if err = s.mem.Write(request.Base, image.Code); err != nil {
		request.Fail(err)
		return
	}
	if err = s.mem.SetWord(request.Base+size, int32(stack)); err != nil {
		request.Fail(err)
		return
	}
	request.Entry = entry
	request.Complete(size)
}

var _ device.Device = (*Service)(nil)
var _ device.Ticker = (*Service)(nil)
