// Package console simulates the terminal device. Output is synchronous;
// line and integer reads are asynchronous requests satisfied as input lines
// arrive through Feed or a reader goroutine.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/device"
	"github.com/viant/toolbox"
)

// ErrNotANumber is reported by an integer read whose line does not parse.
var ErrNotANumber = errors.New("console: not a number")

// Config configures the console.
type Config struct {
	// Echo copies every consumed input line to the output.
	Echo bool `json:"echo" yaml:"echo"`
}

// Service is the simulated console device.
type Service struct {
	config  Config
	out     io.Writer
	mem     *arena.Arena
	lines   []string
	pending []*device.Request
	written int
	mux     sync.Mutex
}

// New creates a console writing to out and completing reads into mem.
func New(config Config, out io.Writer, mem *arena.Arena) *Service {
	if out == nil {
		out = io.Discard
	}
	return &Service{config: config, out: out, mem: mem}
}

// Write prints text.
func (s *Service) Write(text string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	n, err := io.WriteString(s.out, text)
	s.written += n
	return err
}

// Written returns the number of bytes printed so far.
func (s *Service) Written() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.written
}

// Submit queues a GETS or GETI request; Buffer and Size describe an arena
// range already validated by the caller.
func (s *Service) Submit(ctx context.Context, request *device.Request) error {
	switch request.Op() {
	case device.OpGetS, device.OpGetI:
	default:
		return fmt.Errorf("console: unsupported op %d", request.Op())
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.pending = append(s.pending, request)
	s.drain()
	return nil
}

// Feed supplies one input line.
func (s *Service) Feed(line string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.lines = append(s.lines, strings.TrimRight(line, "\r\n"))
	s.drain()
}

// Waiting returns the number of reads still waiting for input.
func (s *Service) Waiting() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.pending)
}

// Tick lets the console satisfy reads on machine ticks.
func (s *Service) Tick(now int64) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.drain()
}

// ReadFrom feeds lines from r until it is exhausted or ctx is done.
func (s *Service) ReadFrom(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		s.Feed(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Printf("console: input closed: %v", err)
	}
}

// drain pairs pending reads with buffered lines in arrival order.
func (s *Service) drain() {
	for len(s.pending) > 0 && len(s.lines) > 0 {
		request, line := s.pending[0], s.lines[0]
		s.pending, s.lines = s.pending[1:], s.lines[1:]
		if s.config.Echo {
			n, _ := io.WriteString(s.out, line+"\n")
			s.written += n
		}
		s.complete(request, line)
	}
}

func (s *Service) complete(request *device.Request, line string) {
	switch request.Op() {
	case device.OpGetI:
		value, err := toolbox.ToInt(strings.TrimSpace(line))
		if err != nil {
			request.Fail(fmt.Errorf("%w: %q", ErrNotANumber, line))
			return
		}
		if err = s.mem.SetWord(request.Buffer, int32(value)); err != nil {
			request.Fail(err)
			return
		}
		request.Complete(value)
	case device.OpGetS:
		n, err := s.mem.PutCString(request.Buffer, request.Size, line)
		if err != nil {
			request.Fail(err)
			return
		}
		request.Complete(n)
	}
}

var _ device.Device = (*Service)(nil)
var _ device.Ticker = (*Service)(nil)
