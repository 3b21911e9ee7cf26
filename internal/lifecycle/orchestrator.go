package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/moolen/ferry/internal/logging"
)

// Observability is set up at the beginning of Prepare and shut down after
// every component has been stopped.
type Observability interface {
	Setup(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObservability installs the tracing/metrics setup run by Prepare.
func WithObservability(obs Observability) Option {
	return func(o *Orchestrator) {
		o.observability = obs
	}
}

// WithMetrics records phases and component states in m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithShutdownTimeout sets the per-component stop deadline. Default is 30s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.shutdownTimeout = d
	}
}

// WithSignals replaces the signals that make Run return and abort a Start
// driven by Execute. Passing no signals disables signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Orchestrator) {
		o.signals = sigs
	}
}

// Orchestrator drives registered components through
// Created -> Preparing -> Starting -> Running -> Stopping -> Stopped.
// Components are started in registration order and stopped in the order
// resolved by the Registry. Phase methods are serialized and may each be
// called once.
type Orchestrator struct {
	registry        *Registry
	phase           atomic.Int32
	opMu            sync.Mutex // held for the whole duration of a phase method
	prepared        bool
	ran             bool
	observabilityUp bool

	startMu     sync.Mutex
	startCancel context.CancelFunc

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	observability   Observability
	metrics         *Metrics
	shutdownTimeout time.Duration
	signals         []os.Signal
	logger          *logging.Logger
}

// New returns an orchestrator in phase Created.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:        NewRegistry(),
		shutdownCh:      make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		signals:         []os.Signal{os.Interrupt, syscall.SIGTERM},
		logger:          logging.GetLogger("lifecycle.orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics.setPhase(PhaseCreated)
	return o
}

// Add registers component under name. stopAfter lists already registered
// components that must not be stopped before this one.
func (o *Orchestrator) Add(name string, component Component, stopAfter ...string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if p := o.Phase(); p != PhaseCreated {
		return &InvalidPhaseTransitionError{Operation: "add " + name, Phase: p}
	}
	if err := o.registry.Add(name, component, stopAfter...); err != nil {
		return err
	}

	o.metrics.setState(name, StateCreated)
	o.logger.Debug("Registered component %s (stop_after: %v)", name, stopAfter)
	return nil
}

// Prepare sets up observability and prepares every component in
// registration order. The first failure aborts.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if p := o.Phase(); p != PhaseCreated {
		return &InvalidPhaseTransitionError{Operation: "prepare", Phase: p}
	}
	o.setPhase(PhasePreparing)

	if o.observability != nil {
		if err := o.observability.Setup(ctx); err != nil {
			return fmt.Errorf("observability setup failed: %w", err)
		}
		o.observabilityUp = true
	}

	for _, reg := range o.registry.startSequence() {
		if err := reg.component.Prepare(ctx); err != nil {
			reg.state.Fail()
			o.metrics.setState(reg.name, reg.state.Load())
			o.logger.Error("Failed to prepare %s: %v", reg.name, err)
			return &ComponentPrepareFailedError{Component: reg.name, Cause: err}
		}
		reg.state.Set(StatePrepared)
		o.metrics.setState(reg.name, StatePrepared)
	}

	o.prepared = true
	o.logger.Info("All components prepared")
	return nil
}

// Start starts every component in registration order. If one fails, the
// components that already started are stopped in stop order and a
// *ComponentStartFailedError carrying the original failure is returned.
//
// Stop may be called concurrently to abort a Start that is still retrying.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if p := o.Phase(); p != PhasePreparing || !o.prepared {
		return &InvalidPhaseTransitionError{Operation: "start", Phase: p}
	}
	o.setPhase(PhaseStarting)

	ctx, cancel := context.WithCancel(ctx)
	o.setStartCancel(cancel)
	defer func() {
		o.setStartCancel(nil)
		cancel()
	}()

	for _, reg := range o.registry.startSequence() {
		o.logger.Info("Starting %s", reg.name)
		startTime := time.Now()

		err := reg.component.Start(ctx)
		duration := time.Since(startTime)
		o.metrics.observeStart(reg.name, duration)

		if err != nil {
			reg.state.Fail()
			o.metrics.setState(reg.name, reg.state.Load())
			o.logger.Error("Failed to start %s: %v", reg.name, err)

			teardown := o.stopStarted(context.Background(), true)
			startErr := &ComponentStartFailedError{Component: reg.name, Cause: err}
			for _, f := range teardown {
				startErr.Teardown = append(startErr.Teardown, f)
			}
			return startErr
		}

		reg.state.Set(StateStarted)
		o.metrics.setState(reg.name, StateStarted)
		o.logger.Info("%s started successfully (took %dms)", reg.name, duration.Milliseconds())
	}

	o.setPhase(PhaseRunning)
	o.logger.Info("All components started successfully")
	return nil
}

// Run blocks until a termination signal arrives, ctx is done or Shutdown is
// called. It only returns an error when called outside phase Running.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.run(ctx, true)
}

// run waits for termination. Execute passes watchSignals=false because its
// context is already cancelled by the configured signals.
func (o *Orchestrator) run(ctx context.Context, watchSignals bool) error {
	o.opMu.Lock()
	if p := o.Phase(); p != PhaseRunning || o.ran {
		o.opMu.Unlock()
		return &InvalidPhaseTransitionError{Operation: "run", Phase: p}
	}
	o.ran = true
	o.opMu.Unlock()

	var sigCh chan os.Signal
	if watchSignals && len(o.signals) > 0 {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, o.signals...)
		defer signal.Stop(sigCh)
	}

	o.logger.Info("Running, waiting for termination signal")
	select {
	case sig := <-sigCh:
		o.logger.Info("Received signal %s, shutting down", sig)
	case <-ctx.Done():
		o.logger.Info("Context done (%v), shutting down", ctx.Err())
	case <-o.shutdownCh:
		o.logger.Info("Shutdown requested")
	}
	return nil
}

// Shutdown makes a pending or future Run return. It is safe to call from any
// goroutine and more than once.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		close(o.shutdownCh)
	})
}

// Stop stops every started component in stop order. All components get a
// stop attempt; failures are returned together as a *StopError in stop
// order. Calling Stop before Start completed stops only what has started,
// and aborts an in-progress Start.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.cancelStart()
	o.Shutdown()

	o.opMu.Lock()
	defer o.opMu.Unlock()

	if p := o.Phase(); p == PhaseStopping || p == PhaseStopped {
		return &InvalidPhaseTransitionError{Operation: "stop", Phase: p}
	}
	o.setPhase(PhaseStopping)
	o.logger.Info("Stopping all components")

	failures := o.stopStarted(ctx, false)

	if o.observabilityUp {
		obsCtx, cancel := context.WithTimeout(ctx, o.shutdownTimeout)
		if err := o.observability.Shutdown(obsCtx); err != nil {
			o.logger.Error("Error shutting down observability: %v", err)
			failures = append(failures, &ComponentStopFailedError{Component: "observability", Cause: err})
		}
		cancel()
		o.observabilityUp = false
	}

	o.setPhase(PhaseStopped)
	if len(failures) > 0 {
		o.logger.Warn("Stopped with %d error(s)", len(failures))
		return &StopError{Failures: failures}
	}
	o.logger.Info("All components stopped")
	return nil
}

// stopStarted stops every component in state Started, in stop order, each
// with its own deadline derived from parent.
func (o *Orchestrator) stopStarted(parent context.Context, rollback bool) []*ComponentStopFailedError {
	var failures []*ComponentStopFailedError

	for _, reg := range o.registry.stopSequence() {
		if reg.state.Load() != StateStarted {
			continue
		}

		if rollback {
			o.logger.Debug("Rolling back: stopping %s", reg.name)
		} else {
			o.logger.Info("Stopping %s", reg.name)
		}
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(parent, o.shutdownTimeout)
		err := reg.component.Stop(ctx)
		cancel()

		if err != nil {
			reg.state.Fail()
			o.metrics.stopFailed(reg.name)
			if errors.Is(err, context.DeadlineExceeded) {
				o.logger.Warn("Component %s exceeded grace period (%dms timeout)",
					reg.name, o.shutdownTimeout.Milliseconds())
			} else {
				o.logger.Error("Error stopping %s: %v", reg.name, err)
			}
			failures = append(failures, &ComponentStopFailedError{Component: reg.name, Cause: err})
		} else {
			reg.state.Set(StateStopped)
			o.logger.Info("%s stopped successfully (took %dms)", reg.name, time.Since(startTime).Milliseconds())
		}
		o.metrics.setState(reg.name, reg.state.Load())
	}

	return failures
}

// Execute runs Prepare, Start, Run and Stop. The configured signals cancel
// the context of every phase, so a signal received while a component is
// still retrying its connection aborts Start and tears down what already
// started. It returns the Prepare or Start error when startup fails. Errors
// raised while stopping after a successful run are logged only.
func (o *Orchestrator) Execute(ctx context.Context) error {
	runCtx, stopSignals := ctx, context.CancelFunc(func() {})
	if len(o.signals) > 0 {
		runCtx, stopSignals = signal.NotifyContext(ctx, o.signals...)
	}
	defer stopSignals()

	if err := o.Prepare(runCtx); err != nil {
		_ = o.Stop(context.Background())
		return err
	}
	if err := o.Start(runCtx); err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			o.logger.Info("Received termination signal during startup")
		}
		_ = o.Stop(context.Background())
		return err
	}
	if err := o.run(runCtx, false); err != nil {
		return err
	}

	// A second signal during teardown terminates the process.
	stopSignals()

	if err := o.Stop(context.Background()); err != nil {
		var transition *InvalidPhaseTransitionError
		if errors.As(err, &transition) {
			o.logger.Debug("Components already stopped by another caller")
			return nil
		}
		o.logger.Error("Error during shutdown: %v", err)
	}
	return nil
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// IsReady reports whether every component has started and Stop has not been
// called yet.
func (o *Orchestrator) IsReady() bool {
	return o.Phase() == PhaseRunning
}

// Names returns the registered component names in start order.
func (o *Orchestrator) Names() []string {
	return o.registry.Names()
}

// StopOrder returns the registered component names in stop order.
func (o *Orchestrator) StopOrder() []string {
	return o.registry.StopOrder()
}

// State returns the state of the named component.
func (o *Orchestrator) State(name string) (State, bool) {
	return o.registry.State(name)
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
	o.metrics.setPhase(p)
	o.logger.Debug("Phase %s", p)
}

func (o *Orchestrator) setStartCancel(cancel context.CancelFunc) {
	o.startMu.Lock()
	o.startCancel = cancel
	o.startMu.Unlock()
}

func (o *Orchestrator) cancelStart() {
	o.startMu.Lock()
	cancel := o.startCancel
	o.startMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
