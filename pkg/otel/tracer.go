package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const exporterSetupTimeout = 10 * time.Second

var ErrUnsupportedEndpoint = errors.New("unsupported tracing endpoint scheme")

//nolint:gochecknoglobals // process-wide provider, released by Shutdown
var active struct {
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
}

// InitTracer installs the global propagator and tracer provider. Tracing that
// is disabled or has no endpoint gets a no-op provider; forwarded trace
// context is still propagated on outbound calls.
func InitTracer(cfg Config) (trace.Tracer, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled || cfg.EndpointURL == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp.Tracer(cfg.ServiceName), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterSetupTimeout)
	defer cancel()

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(cfg.toResourceAttributes()...),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SampleRatio))),
	)

	active.mu.Lock()
	previous := active.provider
	active.provider = tp
	active.mu.Unlock()
	if previous != nil {
		_ = previous.Shutdown(ctx)
	}

	otel.SetTracerProvider(tp)
	return tp.Tracer(cfg.ServiceName), nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

// newExporter picks the OTLP transport from the endpoint scheme: grpc and
// grpcs use gRPC, http and https use OTLP/HTTP. Secure schemes ignore
// cfg.Insecure.
func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tracing endpoint %q: %w", cfg.EndpointURL, err)
	}

	var exporter sdktrace.SpanExporter
	switch u.Scheme {
	case "grpc", "grpcs":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(u.Host)}
		if u.Scheme == "grpc" && cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http", "https":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.EndpointURL)}
		if u.Scheme == "http" && cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEndpoint, u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP %s exporter: %w", u.Scheme, err)
	}
	return exporter, nil
}

// Shutdown flushes and stops the active provider. It is a no-op when tracing
// never started.
func Shutdown(ctx context.Context) error {
	active.mu.Lock()
	tp := active.provider
	active.provider = nil
	active.mu.Unlock()

	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}
