package broker

import (
	"context"
	"fmt"

	"github.com/moolen/ferry/internal/lifecycle"
)

// Channel is a named unit hosted by a Connection, such as a consumer or a
// publisher. Channels are started after the transport is up, in the order
// they were given to New, and stopped in reverse order before the transport
// is closed.
type Channel interface {
	Name() string
	Start(ctx context.Context, t Transport) error
	Stop(ctx context.Context) error
}

type channelEntry struct {
	channel Channel
	state   lifecycle.StateTracker
}

// ChannelNotFoundError is returned by ChannelAs for an unknown channel.
type ChannelNotFoundError struct {
	Name string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("broker channel %s is not registered", e.Name)
}

// ChannelAs returns the channel registered under name as a T.
func ChannelAs[T Channel](c *Connection, name string) (T, error) {
	var zero T
	ch, ok := c.Channel(name)
	if !ok {
		return zero, &ChannelNotFoundError{Name: name}
	}
	typed, ok := ch.(T)
	if !ok {
		return zero, fmt.Errorf("broker channel %s is %T, not %T", name, ch, zero)
	}
	return typed, nil
}
