package app

import (
	"github.com/moolen/ferry/internal/apiserver"
	"github.com/moolen/ferry/internal/broker"
	"github.com/moolen/ferry/internal/config"
	"github.com/moolen/ferry/internal/database"
	"github.com/moolen/ferry/internal/retry"
	"github.com/moolen/ferry/internal/tracing"
)

func listenerConfig(cfg *config.Config) apiserver.Config {
	return apiserver.Config{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}
}

func poolConfig(cfg *config.Config) database.Config {
	return database.Config{
		URL:                 cfg.DB.URL,
		MinSize:             cfg.DB.PoolMinSize,
		MaxSize:             cfg.DB.PoolMaxSize,
		MaxQueries:          cfg.DB.PoolMaxQueries,
		MaxInactiveLifetime: cfg.DB.PoolMaxInactiveConnectionLifetime,
		CloseTimeout:        cfg.DB.CloseTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.DB.ConnectMaxAttempts,
			RetryDelay:  cfg.DB.ConnectRetryDelay,
		},
	}
}

func brokerConfig(cfg *config.Config) broker.Config {
	bc := broker.DefaultConfig()
	bc.URL = cfg.Broker.URL
	bc.ClientName = cfg.Metrics.Name
	bc.Heartbeat = cfg.Broker.Heartbeat
	bc.Retry = retry.Policy{
		MaxAttempts: cfg.Broker.ConnectMaxAttempts,
		RetryDelay:  cfg.Broker.ConnectRetryDelay,
	}
	return bc
}

func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:        cfg.Tracer.Enabled,
		ServiceName:    cfg.Tracer.Name,
		Endpoint:       cfg.Tracer.URL,
		DefaultSampled: cfg.Tracer.DefaultSampled,
		TLSCAPath:      cfg.Tracer.TLSCAPath,
		TLSInsecure:    cfg.Tracer.TLSInsecure,
	}
}
