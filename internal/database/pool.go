// Package database provides the PostgreSQL connection pool component and the
// queries the application runs on it.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moolen/ferry/internal/lifecycle"
	"github.com/moolen/ferry/internal/logging"
	"github.com/moolen/ferry/internal/retry"
	"golang.org/x/sync/errgroup"
)

// ErrPoolNotStarted is returned by query methods before Start or after Stop.
var ErrPoolNotStarted = errors.New("database pool is not started")

// Config holds pool settings.
type Config struct {
	URL                 string
	MinSize             int32         // Connections opened by Start and kept open
	MaxSize             int32         // Upper bound of open connections
	MaxQueries          int64         // Uses after which a connection is retired, 0 disables
	MaxInactiveLifetime time.Duration // Idle connections older than this are closed
	CloseTimeout        time.Duration // Upper bound for waiting on in-flight queries in Stop
	Retry               retry.Policy
}

// DefaultConfig returns the defaults for a local PostgreSQL server.
func DefaultConfig() Config {
	return Config{
		URL:                 "postgres://postgres@localhost:5432/postgres?sslmode=disable",
		MinSize:             1,
		MaxSize:             10,
		MaxQueries:          50000,
		MaxInactiveLifetime: 300 * time.Second,
		CloseTimeout:        10 * time.Second,
		Retry:               retry.DefaultPolicy(),
	}
}

// Validate checks the pool bounds and the retry policy.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.MinSize < 0 {
		return fmt.Errorf("min size cannot be negative, got %d", c.MinSize)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("max size must be at least 1, got %d", c.MaxSize)
	}
	if c.MinSize > c.MaxSize {
		return fmt.Errorf("min size %d exceeds max size %d", c.MinSize, c.MaxSize)
	}
	if c.MaxQueries < 0 {
		return fmt.Errorf("max queries cannot be negative, got %d", c.MaxQueries)
	}
	return c.Retry.Validate()
}

// Option configures a Pool.
type Option func(*Pool)

// WithRetryObserver reports connection attempts to obs.
func WithRetryObserver(obs retry.Observer) Option {
	return func(p *Pool) {
		p.observer = obs
	}
}

// Pool is a lifecycle.Component wrapping a pgxpool.Pool.
type Pool struct {
	cfg      Config
	observer retry.Observer
	poolCfg  *pgxpool.Config
	budget   *queryBudget
	logger   *logging.Logger

	mu    sync.RWMutex
	pool  *pgxpool.Pool
	state lifecycle.StateTracker
}

var _ lifecycle.Component = (*Pool)(nil)

// New creates a pool component. No connection is opened before Start.
func New(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:    cfg,
		logger: logging.GetLogger("database"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare validates the configuration and parses the connection URL.
func (p *Pool) Prepare(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("database: failed to parse connection string: %w", err)
	}

	poolCfg.MinConns = p.cfg.MinSize
	poolCfg.MaxConns = p.cfg.MaxSize
	if p.cfg.MaxInactiveLifetime > 0 {
		poolCfg.MaxConnIdleTime = p.cfg.MaxInactiveLifetime
	}

	p.budget = newQueryBudget(p.cfg.MaxQueries)
	poolCfg.AfterRelease = p.budget.release
	poolCfg.BeforeClose = p.budget.forget

	p.poolCfg = poolCfg
	p.state.Set(lifecycle.StatePrepared)
	return nil
}

// Start opens the pool through the retry policy and pre-warms MinSize
// connections.
func (p *Pool) Start(ctx context.Context) error {
	if p.poolCfg == nil {
		return errors.New("database: Start called before Prepare")
	}

	p.logger.InfoWithFields("Creating PostgreSQL connection pool",
		logging.Field("host", p.poolCfg.ConnConfig.Host),
		logging.Field("port", p.poolCfg.ConnConfig.Port),
		logging.Field("database", p.poolCfg.ConnConfig.Database),
		logging.Field("min_conns", p.cfg.MinSize),
		logging.Field("max_conns", p.cfg.MaxSize),
	)

	obs := retry.Observers(p.observer, retry.LogObserver{Logger: p.logger, MaxAttempts: p.cfg.Retry.MaxAttempts})
	pool, err := retry.ConnectWithRetry(ctx, "postgres", p.cfg.Retry, p.connect, obs)
	if err != nil {
		p.state.Fail()
		return err
	}

	if err := p.prewarm(ctx, pool); err != nil {
		pool.Close()
		p.state.Fail()
		return fmt.Errorf("database: pre-warm failed: %w", err)
	}

	p.mu.Lock()
	p.pool = pool
	p.mu.Unlock()

	p.state.Set(lifecycle.StateStarted)
	p.logger.Info("PostgreSQL connection pool created successfully")
	return nil
}

// connect is one attempt: build a pool and prove it can reach the server.
func (p *Pool) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, p.poolCfg.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

// prewarm opens MinSize connections concurrently and hands them back to the
// pool.
func (p *Pool) prewarm(ctx context.Context, pool *pgxpool.Pool) error {
	n := int(p.cfg.MinSize)
	if n == 0 {
		return nil
	}

	conns := make([]*pgxpool.Conn, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			conn, err := pool.Acquire(gctx)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	err := g.Wait()
	for _, conn := range conns {
		if conn != nil {
			conn.Release()
		}
	}
	if err != nil {
		return err
	}

	p.logger.Debug("Pre-warmed %d connection(s)", n)
	return nil
}

// Stop closes the pool. Closing waits for acquired connections to be
// released; it is abandoned after CloseTimeout or when ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()

	if pool == nil {
		return nil
	}

	p.logger.Info("Closing PostgreSQL connection pool...")
	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()

	var timeout <-chan time.Time
	if p.cfg.CloseTimeout > 0 {
		timer := time.NewTimer(p.cfg.CloseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		p.state.Set(lifecycle.StateStopped)
		p.logger.Info("PostgreSQL connection pool closed")
		return nil
	case <-timeout:
		p.state.Fail()
		return fmt.Errorf("database: close timed out after %s", p.cfg.CloseTimeout)
	case <-ctx.Done():
		p.state.Fail()
		return fmt.Errorf("database: close interrupted: %w", ctx.Err())
	}
}

// State returns the component state.
func (p *Pool) State() lifecycle.State {
	return p.state.Load()
}

// Stat returns pool statistics, or nil when the pool is not started.
func (p *Pool) Stat() *pgxpool.Stat {
	pool := p.current()
	if pool == nil {
		return nil
	}
	return pool.Stat()
}

// Retired returns the number of connections closed because they reached
// MaxQueries.
func (p *Pool) Retired() int64 {
	if p.budget == nil {
		return 0
	}
	return p.budget.retired.Load()
}

func (p *Pool) current() *pgxpool.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pool
}

// Exec runs sql without returning rows.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool := p.current()
	if pool == nil {
		return pgconn.CommandTag{}, ErrPoolNotStarted
	}
	return pool.Exec(ctx, sql, args...)
}

// Query runs sql and returns the rows. The caller must close them.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool := p.current()
	if pool == nil {
		return nil, ErrPoolNotStarted
	}
	return pool.Query(ctx, sql, args...)
}

// QueryRow runs sql expecting at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool := p.current()
	if pool == nil {
		return errRow{err: ErrPoolNotStarted}
	}
	return pool.QueryRow(ctx, sql, args...)
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error {
	return r.err
}
