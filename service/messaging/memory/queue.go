package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/stackos/internal/idgen"
	"github.com/viant/stackos/service/messaging"
)

var (
	// ErrProcessed is returned when a message is acknowledged twice.
	ErrProcessed = errors.New("message already processed")
	// ErrDropped is returned by Nack once a message cannot be retried.
	ErrDropped = errors.New("message dropped")
)

// Config for memory queue implementation
type Config struct {
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
	Buffer     int `json:"buffer" yaml:"buffer"`
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Buffer:     256,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	createdAt  time.Time
}

// ID returns the message id
func (m *Message[T]) ID() string { return m.id }

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	return nil
}

// Nack puts the message back at the tail of the queue until the retry limit
// is reached. A message that cannot be requeued is dropped with ErrDropped.
func (m *Message[T]) Nack(cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.retryCount++
	if m.retryCount <= m.queue.config.MaxRetries {
		retry := &Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount,
			createdAt:  m.createdAt,
		}
		if m.queue.offer(retry) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrDropped, m.id, messaging.ErrQueueFull)
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrDropped, m.id, m.retryCount, cause)
}

// Queue implements a bounded in-memory messaging.Queue. Publish never
// blocks, so it is safe to call from the kernel path.
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.Buffer),
		config:   config,
	}
}

func (q *Queue[T]) offer(msg *Message[T]) bool {
	select {
	case q.messages <- msg:
		return true
	default:
		return false
	}
}

// Publish adds a new item to the queue or fails with messaging.ErrQueueFull
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: time.Now(),
	}
	if !q.offer(msg) {
		return messaging.ErrQueueFull
	}
	return nil
}

// Consume waits for a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
