// Package device defines the request block exchanged between the kernel and
// asynchronous devices. The kernel owns the request; a device reports
// completion only by flipping the Op sentinel, which the scheduler polls.
package device

import (
	"context"
	"sync/atomic"
)

// Op codes submitted to devices. A device marks completion by storing a
// negative Op; ErrorBit is additionally set on failure.
const (
	OpExec = int32(1)
	OpGetS = int32(2)
	OpGetI = int32(3)

	DoneBit  = int32(-1 << 31)
	ErrorBit = int32(0x40000000)
)

// Request is a device request block.
type Request struct {
	op     atomic.Int32
	Name   string
	Base   int
	Limit  int
	Buffer int
	Size   int
	// Entry is the initial instruction pointer reported by the loader.
	Entry  int
	result atomic.Int64
	err    atomic.Value
}

// NewRequest creates a pending request for op.
func NewRequest(op int32) *Request {
	ret := &Request{}
	ret.op.Store(op)
	return ret
}

// Op returns the raw sentinel value.
func (r *Request) Op() int32 { return r.op.Load() }

// Pending reports whether the device has not completed the request yet.
func (r *Request) Pending() bool { return r.op.Load() >= 0 }

// Failed reports whether the device completed the request with an error.
func (r *Request) Failed() bool {
	op := r.op.Load()
	return op < 0 && op&ErrorBit != 0
}

// Result returns the value the device reported (image size, byte count or
// parsed integer).
func (r *Request) Result() int { return int(r.result.Load()) }

// Err returns the device error of a failed request.
func (r *Request) Err() error {
	if value, ok := r.err.Load().(error); ok {
		return value
	}
	return nil
}

// Complete publishes result and flips the sentinel to done.
func (r *Request) Complete(result int) {
	r.result.Store(int64(result))
	r.op.Store(r.op.Load() | DoneBit)
}

// Fail records err and flips the sentinel to done with the error bit.
func (r *Request) Fail(err error) {
	if err != nil {
		r.err.Store(err)
	}
	r.op.Store(r.op.Load() | DoneBit | ErrorBit)
}

// Device accepts requests and completes them asynchronously.
type Device interface {
	Submit(ctx context.Context, request *Request) error
}

// Ticker is implemented by devices that make progress on machine ticks.
type Ticker interface {
	Tick(now int64)
}
