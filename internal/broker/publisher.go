package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// PublisherName is the channel name of the Publisher.
	PublisherName = "publisher"

	// MessageIDHeader carries a unique id for every published message.
	MessageIDHeader = "Message-Id"
)

// ErrChannelNotStarted is returned when publishing on a stopped publisher.
var ErrChannelNotStarted = errors.New("broker channel is not started")

// Publisher sends messages over the connection's transport.
type Publisher struct {
	mu        sync.RWMutex
	transport Transport
}

var _ Channel = (*Publisher)(nil)

// NewPublisher returns a publisher channel.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Name implements Channel.
func (p *Publisher) Name() string {
	return PublisherName
}

// Start binds the publisher to t.
func (p *Publisher) Start(ctx context.Context, t Transport) error {
	p.mu.Lock()
	p.transport = t
	p.mu.Unlock()
	return nil
}

// PublishOption configures a single Publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	propagateTrace bool
	headers        map[string]string
}

// WithoutTracePropagation does not inject the caller's span into the headers.
func WithoutTracePropagation() PublishOption {
	return func(o *publishOptions) {
		o.propagateTrace = false
	}
}

// WithHeader sets an additional message header.
func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		o.headers[key] = value
	}
}

// Publish sends payload to subject and returns the generated message id.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte, opts ...PublishOption) (string, error) {
	p.mu.RLock()
	t := p.transport
	p.mu.RUnlock()
	if t == nil {
		return "", ErrChannelNotStarted
	}

	o := publishOptions{propagateTrace: true, headers: map[string]string{}}
	for _, opt := range opts {
		opt(&o)
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	id := uuid.NewString()
	msg.Header.Set(MessageIDHeader, id)
	for k, v := range o.headers {
		msg.Header.Set(k, v)
	}
	if o.propagateTrace {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))
	}

	if err := t.PublishMsg(msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", subject, err)
	}
	return id, nil
}

// Stop flushes buffered messages and unbinds the transport.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	t := p.transport
	p.transport = nil
	p.mu.Unlock()

	if t == nil || t.IsClosed() {
		return nil
	}
	if err := t.FlushWithContext(ctx); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
