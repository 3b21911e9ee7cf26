// Package broker implements the message broker component: a NATS connection
// that hosts an ordered set of named channels.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/ferry/internal/lifecycle"
	"github.com/moolen/ferry/internal/logging"
	"github.com/moolen/ferry/internal/retry"
	"github.com/nats-io/nats.go"
)

// Config holds broker connection settings.
type Config struct {
	URL          string
	ClientName   string
	Heartbeat    time.Duration // Ping interval used to detect dead connections
	DialTimeout  time.Duration
	DrainTimeout time.Duration
	Retry        retry.Policy
}

// DefaultConfig returns sensible defaults for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:          nats.DefaultURL,
		ClientName:   "ferry",
		Heartbeat:    5 * time.Second,
		DialTimeout:  2 * time.Second,
		DrainTimeout: 10 * time.Second,
		Retry:        retry.DefaultPolicy(),
	}
}

// Option configures a Connection.
type Option func(*Connection)

// WithDialer replaces DialNATS.
func WithDialer(d Dialer) Option {
	return func(c *Connection) {
		c.dial = d
	}
}

// WithRetryObserver reports dial attempts to obs.
func WithRetryObserver(obs retry.Observer) Option {
	return func(c *Connection) {
		c.observer = obs
	}
}

// Connection is a lifecycle.Component owning a broker transport and the
// channels running on top of it.
type Connection struct {
	cfg      Config
	channels []*channelEntry
	byName   map[string]*channelEntry
	dial     Dialer
	observer retry.Observer
	opts     []nats.Option

	mu        sync.Mutex
	transport Transport
	state     lifecycle.StateTracker
	logger    *logging.Logger
}

var _ lifecycle.Component = (*Connection)(nil)

// New creates a connection hosting channels. Channel names must be unique.
func New(cfg Config, channels []Channel, opts ...Option) (*Connection, error) {
	c := &Connection{
		cfg:    cfg,
		byName: make(map[string]*channelEntry, len(channels)),
		dial:   DialNATS,
		logger: logging.GetLogger("broker"),
	}

	for _, ch := range channels {
		if ch == nil {
			return nil, errors.New("broker: nil channel")
		}
		name := ch.Name()
		if name == "" {
			return nil, errors.New("broker: channel must have a non-empty name")
		}
		if _, exists := c.byName[name]; exists {
			return nil, fmt.Errorf("broker: channel %s is already registered", name)
		}
		entry := &channelEntry{channel: ch}
		c.channels = append(c.channels, entry)
		c.byName[name] = entry
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Prepare validates the configuration and builds the NATS options.
func (c *Connection) Prepare(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.New("broker: url must not be empty")
	}
	if c.cfg.Heartbeat < 0 {
		return fmt.Errorf("broker: heartbeat cannot be negative, got %s", c.cfg.Heartbeat)
	}
	if err := c.cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	c.opts = c.buildConnectionOptions()
	c.state.Set(lifecycle.StatePrepared)
	return nil
}

func (c *Connection) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("Disconnected from broker: %v", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("Reconnected to broker at %s", conn.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				c.logger.Error("Broker error on %s: %v", sub.Subject, err)
				return
			}
			c.logger.Error("Broker error: %v", err)
		}),
	}
	if c.cfg.ClientName != "" {
		opts = append(opts, nats.Name(c.cfg.ClientName))
	}
	if c.cfg.Heartbeat > 0 {
		opts = append(opts, nats.PingInterval(c.cfg.Heartbeat), nats.MaxPingsOutstanding(2))
	}
	if c.cfg.DialTimeout > 0 {
		opts = append(opts, nats.Timeout(c.cfg.DialTimeout))
	}
	if c.cfg.DrainTimeout > 0 {
		opts = append(opts, nats.DrainTimeout(c.cfg.DrainTimeout))
	}
	return opts
}

// Start dials the broker and starts every channel in order. If a channel
// fails, the channels already started are stopped in reverse order and the
// transport is closed.
func (c *Connection) Start(ctx context.Context) error {
	c.logger.Info("Connecting to broker at %s", c.cfg.URL)

	obs := retry.Observers(c.observer, retry.LogObserver{Logger: c.logger, MaxAttempts: c.cfg.Retry.MaxAttempts})
	transport, err := retry.ConnectWithRetry(ctx, "broker", c.cfg.Retry, func(ctx context.Context) (Transport, error) {
		return c.dial(ctx, c.cfg.URL, c.opts...)
	}, obs)
	if err != nil {
		c.state.Fail()
		return err
	}

	for i, entry := range c.channels {
		name := entry.channel.Name()
		if err := entry.channel.Start(ctx, transport); err != nil {
			entry.state.Fail()
			c.logger.Error("Failed to start channel %s: %v", name, err)
			c.stopChannels(context.Background(), c.channels[:i])
			transport.Close()
			c.state.Fail()
			return fmt.Errorf("channel %s: %w", name, err)
		}
		entry.state.Set(lifecycle.StateStarted)
		c.logger.Debug("Channel %s started", name)
	}

	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()

	c.state.Set(lifecycle.StateStarted)
	c.logger.Info("Broker connection established with %d channel(s)", len(c.channels))
	return nil
}

// Stop stops the channels in reverse order, then drains and closes the
// transport. It returns nil when the connection was never started.
func (c *Connection) Stop(ctx context.Context) error {
	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.mu.Unlock()

	if transport == nil {
		return nil
	}

	errs := c.stopChannels(ctx, c.channels)
	if err := c.drain(ctx, transport); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		c.state.Fail()
		return errors.Join(errs...)
	}
	c.state.Set(lifecycle.StateStopped)
	c.logger.Info("Broker connection closed")
	return nil
}

// stopChannels stops the started entries in reverse order.
func (c *Connection) stopChannels(ctx context.Context, entries []*channelEntry) []error {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.state.Load() != lifecycle.StateStarted {
			continue
		}
		name := entry.channel.Name()
		if err := entry.channel.Stop(ctx); err != nil {
			entry.state.Fail()
			c.logger.Error("Error stopping channel %s: %v", name, err)
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
			continue
		}
		entry.state.Set(lifecycle.StateStopped)
		c.logger.Debug("Channel %s stopped", name)
	}
	return errs
}

// drain flushes pending messages and waits for the transport to close. When
// ctx expires first the transport is closed without waiting.
func (c *Connection) drain(ctx context.Context, transport Transport) error {
	if err := transport.Drain(); err != nil {
		transport.Close()
		if errors.Is(err, nats.ErrConnectionClosed) {
			return nil
		}
		return fmt.Errorf("drain failed: %w", err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !transport.IsClosed() {
		select {
		case <-ctx.Done():
			transport.Close()
			return fmt.Errorf("drain timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Channel returns the channel registered under name.
func (c *Connection) Channel(name string) (Channel, bool) {
	entry, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return entry.channel, true
}

// ChannelState returns the lifecycle state of the named channel.
func (c *Connection) ChannelState(name string) (lifecycle.State, bool) {
	entry, ok := c.byName[name]
	if !ok {
		return lifecycle.StateCreated, false
	}
	return entry.state.Load(), true
}

// State returns the connection state.
func (c *Connection) State() lifecycle.State {
	return c.state.Load()
}

// IsConnected reports whether the transport is up.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && !c.transport.IsClosed()
}
