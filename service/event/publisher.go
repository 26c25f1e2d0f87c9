package event

import (
	"context"
	"time"

	"github.com/viant/stackos/internal/idgen"
	"github.com/viant/stackos/service/messaging"
)

type Publisher struct {
	queue   messaging.Queue[Event]
	session string
}

func NewPublisher(queue messaging.Queue[Event], session string) *Publisher {
	return &Publisher{queue: queue, session: session}
}

// Publish stamps the event with an id, the boot session and the wall clock
// and hands it to the queue.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = idgen.New()
	}
	event.Session = p.session
	event.CreatedAt = time.Now()
	return p.queue.Publish(ctx, event)
}

// Next returns the next queued message; the caller acknowledges it. A nil
// message with a nil error means the queue had nothing to deliver.
func (p *Publisher) Next(ctx context.Context) (messaging.Message[Event], error) {
	return p.queue.Consume(ctx)
}

// Consume returns the next event, acknowledging it.
func (p *Publisher) Consume(ctx context.Context) (*Event, error) {
	msg, err := p.Next(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
