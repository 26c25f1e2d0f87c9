package event

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/viant/stackos/service/messaging"
)

// Handler processes one event. A failed event is handed back to the queue
// for another attempt.
type Handler func(*Event) error

// Listener feeds queued events to a Handler on its own goroutine.
type Listener struct {
	publisher *Publisher
	handler   Handler
	poll      time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func NewListener(publisher *Publisher, handler Handler, poll time.Duration) *Listener {
	return &Listener{
		publisher: publisher,
		handler:   handler,
		poll:      poll,
		done:      make(chan struct{}),
	}
}

// Stop cancels the consume loop and waits for it to return.
func (l *Listener) Stop() {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
			<-l.done
		}
	})
}

func (l *Listener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		defer close(l.done)
		for {
			msg, err := l.publisher.Next(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("event: consume failed: %v", err)
			}
			if msg == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.poll):
				}
				continue
			}
			l.deliver(msg)
		}
	}()
}

func (l *Listener) deliver(msg messaging.Message[Event]) {
	if err := l.handler(msg.T()); err != nil {
		if nErr := msg.Nack(err); nErr != nil {
			log.Printf("event: %v", nErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Printf("event: ack failed: %v", err)
	}
}
