// Package tracing sets up OpenTelemetry tracing for the process.
package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/moolen/ferry/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds tracing configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string // OTLP gRPC endpoint (e.g., "localhost:4317")
	DefaultSampled bool   // Sample root spans; child spans follow their parent
	TLSCAPath      string // Path to CA certificate for TLS verification (optional)
	TLSInsecure    bool   // Skip TLS certificate verification (insecure)
}

// Option configures a Provider.
type Option func(*Provider)

// WithExporter replaces the OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(p *Provider) {
		p.exporter = exp
	}
}

// Provider owns the process-wide tracer provider. It is installed in Setup
// and flushed in Shutdown.
type Provider struct {
	cfg      Config
	exporter sdktrace.SpanExporter
	logger   *logging.Logger

	tracerProvider *sdktrace.TracerProvider
}

// NewProvider creates a provider. Nothing is installed before Setup.
func NewProvider(cfg Config, opts ...Option) *Provider {
	p := &Provider{
		cfg:    cfg,
		logger: logging.GetLogger("tracing"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Setup installs the W3C trace context propagator and, when enabled, a
// batching tracer provider exporting over OTLP gRPC.
func (p *Provider) Setup(ctx context.Context) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !p.cfg.Enabled {
		p.logger.Info("Tracing disabled")
		return nil
	}

	exporter := p.exporter
	if exporter == nil {
		if p.cfg.Endpoint == "" {
			return fmt.Errorf("tracing enabled but endpoint not configured")
		}
		var err error
		exporter, err = p.newOTLPExporter(ctx)
		if err != nil {
			return err
		}
	}

	serviceName := p.cfg.ServiceName
	if serviceName == "" {
		serviceName = "ferry"
	}
	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(serviceName))}
	if p.cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(p.cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	root := sdktrace.NeverSample()
	if p.cfg.DefaultSampled {
		root = sdktrace.AlwaysSample()
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(root)),
	)
	otel.SetTracerProvider(p.tracerProvider)

	p.logger.Info("Tracing initialized for service %s", serviceName)
	return nil
}

func (p *Provider) newOTLPExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	var dialOptions []grpc.DialOption
	var otlpOptions []otlptracegrpc.Option

	if p.cfg.TLSCAPath != "" || p.cfg.TLSInsecure {
		var tlsConfig *tls.Config

		if p.cfg.TLSInsecure {
			tlsConfig = &tls.Config{
				InsecureSkipVerify: true,
				MinVersion:         tls.VersionTLS12,
			}
			p.logger.Info("TLS enabled for tracing with certificate verification disabled (insecure mode)")
		} else {
			caCert, err := os.ReadFile(p.cfg.TLSCAPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}

			certPool := x509.NewCertPool()
			if !certPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to append CA certificate to pool")
			}

			tlsConfig = &tls.Config{
				RootCAs:    certPool,
				MinVersion: tls.VersionTLS12,
			}
			p.logger.Info("TLS enabled for tracing with CA from: %s", p.cfg.TLSCAPath)
		}

		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
		otlpOptions = append(otlpOptions, otlptracegrpc.WithInsecure())
	}

	otlpOptions = append(otlpOptions,
		otlptracegrpc.WithEndpoint(p.cfg.Endpoint),
		otlptracegrpc.WithDialOption(dialOptions...),
	)

	exporter, err := otlptracegrpc.New(ctx, otlpOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	p.logger.Info("Exporting spans to %s", p.cfg.Endpoint)
	return exporter, nil
}

// Shutdown flushes buffered spans and restores a no-op tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider == nil {
		return nil
	}

	p.logger.Info("Shutting down tracing provider...")
	tp := p.tracerProvider
	p.tracerProvider = nil
	otel.SetTracerProvider(noop.NewTracerProvider())

	if err := tp.Shutdown(ctx); err != nil {
		p.logger.Error("Error shutting down tracer provider: %v", err)
		return err
	}

	p.logger.Info("Tracing provider stopped")
	return nil
}

// Tracer returns a tracer from the global provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// IsEnabled returns whether tracing is enabled
func (p *Provider) IsEnabled() bool {
	return p.cfg.Enabled
}
