// Package app wires the components of the service into an orchestrator.
package app

import (
	"context"
	"fmt"

	"github.com/moolen/ferry/internal/apiserver"
	"github.com/moolen/ferry/internal/broker"
	"github.com/moolen/ferry/internal/config"
	"github.com/moolen/ferry/internal/database"
	"github.com/moolen/ferry/internal/handlers"
	"github.com/moolen/ferry/internal/lifecycle"
	"github.com/moolen/ferry/internal/logging"
	"github.com/moolen/ferry/internal/retry"
	"github.com/moolen/ferry/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Component names.
const (
	HTTPServer = "http_server"
	Broker     = "broker"
	Postgres   = "postgres"
)

// Option configures an App.
type Option func(*options)

type options struct {
	lifecycle []lifecycle.Option
	broker    []broker.Option
}

// WithLifecycleOptions passes opts to the orchestrator.
func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(o *options) {
		o.lifecycle = append(o.lifecycle, opts...)
	}
}

// WithBrokerOptions passes opts to the broker connection.
func WithBrokerOptions(opts ...broker.Option) Option {
	return func(o *options) {
		o.broker = append(o.broker, opts...)
	}
}

// App is the assembled service.
type App struct {
	cfg          *config.Config
	orchestrator *lifecycle.Orchestrator
	registry     *prometheus.Registry
	tracing      *tracing.Provider
	logger       *logging.Logger
}

// New builds every component from cfg and registers them. The broker stops
// after the HTTP server and the database stops last.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		tracing:  tracing.NewProvider(tracingConfig(cfg)),
		logger:   logging.GetLogger("app"),
	}

	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.Metrics.Name}, a.registry)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	retryMetrics := retry.NewMetrics(reg)

	lifecycleOpts := []lifecycle.Option{
		lifecycle.WithObservability(a.tracing),
		lifecycle.WithMetrics(lifecycle.NewMetrics(reg)),
		lifecycle.WithShutdownTimeout(cfg.ShutdownTimeout),
	}
	a.orchestrator = lifecycle.New(append(lifecycleOpts, o.lifecycle...)...)

	pool := database.New(poolConfig(cfg), database.WithRetryObserver(retryMetrics))
	reg.MustRegister(database.NewCollector(pool))

	consumer := broker.NewConsumer(nil)
	publisher := broker.NewPublisher()
	brokerOpts := append([]broker.Option{broker.WithRetryObserver(retryMetrics)}, o.broker...)
	conn, err := broker.New(brokerConfig(cfg), []broker.Channel{consumer, publisher}, brokerOpts...)
	if err != nil {
		return nil, err
	}

	serverOpts := []apiserver.Option{
		apiserver.WithRoutes(handlers.NewHome(pool, publisher, consumer).Register),
		apiserver.WithReadinessChecker(a.orchestrator),
	}
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, apiserver.WithGatherer(a.registry))
	}
	server := apiserver.New(listenerConfig(cfg), serverOpts...)

	if err := a.orchestrator.Add(HTTPServer, server); err != nil {
		return nil, err
	}
	if err := a.orchestrator.Add(Broker, conn, HTTPServer); err != nil {
		return nil, err
	}
	if err := a.orchestrator.Add(Postgres, pool, HTTPServer, Broker); err != nil {
		return nil, err
	}

	a.logger.Debug("Stop order: %v", a.orchestrator.StopOrder())
	return a, nil
}

// Run prepares and starts every component, blocks until shutdown is
// requested and stops them again.
func (a *App) Run(ctx context.Context) error {
	return a.orchestrator.Execute(ctx)
}

// Orchestrator returns the underlying orchestrator.
func (a *App) Orchestrator() *lifecycle.Orchestrator {
	return a.orchestrator
}

// Registry returns the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// HTTPServer returns the HTTP listener.
func (a *App) HTTPServer() *apiserver.Server {
	return lifecycle.MustGet[*apiserver.Server](a.orchestrator, HTTPServer)
}

// DB returns the database pool.
func (a *App) DB() *database.Pool {
	return lifecycle.MustGet[*database.Pool](a.orchestrator, Postgres)
}

// Broker returns the broker connection.
func (a *App) Broker() *broker.Connection {
	return lifecycle.MustGet[*broker.Connection](a.orchestrator, Broker)
}

// Publisher returns the broker's publisher channel.
func (a *App) Publisher() *broker.Publisher {
	return mustChannel[*broker.Publisher](a.Broker(), broker.PublisherName)
}

// Consumer returns the broker's consumer channel.
func (a *App) Consumer() *broker.Consumer {
	return mustChannel[*broker.Consumer](a.Broker(), broker.ConsumerName)
}

func mustChannel[T broker.Channel](c *broker.Connection, name string) T {
	ch, err := broker.ChannelAs[T](c, name)
	if err != nil {
		panic(fmt.Sprintf("app: %v", err))
	}
	return ch
}
