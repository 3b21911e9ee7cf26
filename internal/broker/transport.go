package broker

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Transport is the part of *nats.Conn used by the connection and its
// channels.
type Transport interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	NewRespInbox() string
	Drain() error
	Close()
	IsClosed() bool
}

var _ Transport = (*nats.Conn)(nil)

// Dialer opens a transport to url. It must return promptly once ctx is done.
type Dialer func(ctx context.Context, url string, opts ...nats.Option) (Transport, error)

// DialNATS connects with nats.Connect. The connect call itself is not
// context aware, so it runs in a goroutine; a connection completed after ctx
// was cancelled is closed immediately.
func DialNATS(ctx context.Context, url string, opts ...nats.Option) (Transport, error) {
	type result struct {
		conn *nats.Conn
		err  error
	}

	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(url, opts...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
