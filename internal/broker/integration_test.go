//go:build integration

package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/moolen/ferry/internal/lifecycle"
	"github.com/moolen/ferry/internal/retry"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATSContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestConnectionAgainstNATS(t *testing.T) {
	ctx := context.Background()
	url := startNATSContainer(ctx, t)

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Retry = retry.Policy{MaxAttempts: 10, RetryDelay: 500 * time.Millisecond}

	received := make(chan string, 1)
	consumer := NewConsumer(func(ctx context.Context, msg *nats.Msg) {
		received <- string(msg.Data)
	})
	publisher := NewPublisher()

	conn, err := New(cfg, []Channel{consumer, publisher})
	require.NoError(t, err)
	require.NoError(t, conn.Prepare(ctx))
	require.NoError(t, conn.Start(ctx))
	assert.True(t, conn.IsConnected())

	_, err = publisher.Publish(ctx, consumer.Subject(), []byte("test message"))
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.Equal(t, "test message", body)
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}
	assert.Equal(t, int64(1), consumer.MessageCount())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Stop(stopCtx))
	assert.Equal(t, lifecycle.StateStopped, conn.State())
}
