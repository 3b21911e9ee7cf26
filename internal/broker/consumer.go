package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/moolen/ferry/internal/logging"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ConsumerName is the channel name of the Consumer.
const ConsumerName = "consumer"

// Consumer subscribes to a private inbox subject and counts the messages it
// receives. Only this process knows the subject, so nothing else consumes
// from it.
type Consumer struct {
	mu      sync.Mutex
	subject string
	sub     *nats.Subscription
	handler func(ctx context.Context, msg *nats.Msg)

	count  atomic.Int64
	logger *logging.Logger
}

var _ Channel = (*Consumer)(nil)

// NewConsumer returns a consumer. handler, if not nil, is called for every
// message after it was counted.
func NewConsumer(handler func(ctx context.Context, msg *nats.Msg)) *Consumer {
	return &Consumer{
		handler: handler,
		logger:  logging.GetLogger("broker.consumer"),
	}
}

// Name implements Channel.
func (c *Consumer) Name() string {
	return ConsumerName
}

// Start subscribes to a fresh inbox subject and flushes so the subscription
// is known to the server before Start returns.
func (c *Consumer) Start(ctx context.Context, t Transport) error {
	subject := t.NewRespInbox()
	sub, err := t.Subscribe(subject, c.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	if err := t.FlushWithContext(ctx); err != nil {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		return fmt.Errorf("flush subscription: %w", err)
	}

	c.mu.Lock()
	c.subject = subject
	c.sub = sub
	c.mu.Unlock()

	c.logger.Info("Consuming from %s", subject)
	return nil
}

func (c *Consumer) onMessage(msg *nats.Msg) {
	ctx := context.Background()
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	}

	n := c.count.Add(1)
	c.logger.WithContext(ctx).DebugWithFields("message received",
		logging.Field("subject", msg.Subject),
		logging.Field("bytes", len(msg.Data)),
		logging.Field("count", n),
	)

	if c.handler != nil {
		c.handler(ctx, msg)
	}
}

// Stop unsubscribes. The subject is kept for inspection.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// Subject returns the inbox subject, or "" before Start.
func (c *Consumer) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}

// MessageCount returns the number of messages received so far.
func (c *Consumer) MessageCount() int64 {
	return c.count.Load()
}
