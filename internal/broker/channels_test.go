package broker

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRequiresStart(t *testing.T) {
	pub := NewPublisher()
	_, err := pub.Publish(context.Background(), "subject", []byte("x"))
	assert.ErrorIs(t, err, ErrChannelNotStarted)
}

func TestPublisherSetsHeaders(t *testing.T) {
	transport := newFakeTransport(nil)
	pub := NewPublisher()
	require.NoError(t, pub.Start(context.Background(), transport))

	id, err := pub.Publish(context.Background(), "orders", []byte("payload"), WithHeader("Content-Type", "text/plain"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, transport.published, 1)
	msg := transport.published[0]
	assert.Equal(t, "orders", msg.Subject)
	assert.Equal(t, []byte("payload"), msg.Data)
	assert.Equal(t, id, msg.Header.Get(MessageIDHeader))
	assert.Equal(t, "text/plain", msg.Header.Get("Content-Type"))

	require.NoError(t, pub.Stop(context.Background()))
	_, err = pub.Publish(context.Background(), "orders", nil)
	assert.ErrorIs(t, err, ErrChannelNotStarted)
}

func TestPublisherMessageIDsAreUnique(t *testing.T) {
	transport := newFakeTransport(nil)
	pub := NewPublisher()
	require.NoError(t, pub.Start(context.Background(), transport))

	first, err := pub.Publish(context.Background(), "s", nil, WithoutTracePropagation())
	require.NoError(t, err)
	second, err := pub.Publish(context.Background(), "s", nil, WithoutTracePropagation())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestConsumerCountsMessages(t *testing.T) {
	transport := newFakeTransport(nil)
	var handled []string
	cons := NewConsumer(func(ctx context.Context, msg *nats.Msg) {
		handled = append(handled, string(msg.Data))
	})
	assert.Empty(t, cons.Subject())

	require.NoError(t, cons.Start(context.Background(), transport))
	subject := cons.Subject()
	require.NotEmpty(t, subject)

	pub := NewPublisher()
	require.NoError(t, pub.Start(context.Background(), transport))
	for _, body := range []string{"one", "two", "three"} {
		_, err := pub.Publish(context.Background(), subject, []byte(body))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), cons.MessageCount())
	assert.Equal(t, []string{"one", "two", "three"}, handled)

	require.NoError(t, cons.Stop(context.Background()))
	assert.Equal(t, subject, cons.Subject())
}

func TestConsumerSubjectsAreDistinct(t *testing.T) {
	transport := newFakeTransport(nil)
	a := NewConsumer(nil)
	b := NewConsumer(nil)
	require.NoError(t, a.Start(context.Background(), transport))
	require.NoError(t, b.Start(context.Background(), transport))
	assert.NotEqual(t, a.Subject(), b.Subject())
}
