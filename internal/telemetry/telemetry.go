// Package telemetry sets up OpenTelemetry tracing (optionally exported to
// Google Cloud Trace) and bridges OpenTelemetry metrics into the Prometheus
// registry served on /metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/JakeFAU/replay-heatmap"

// Config selects the service identity and the optional trace exporter.
type Config struct {
	ServiceName string
	Version     string
	// ProjectID enables export to Google Cloud Trace when set.
	ProjectID string
}

// Providers holds the installed SDK providers.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *metric.MeterProvider
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

var (
	initOnce  sync.Once
	providers *Providers
	initErr   error
)

// Init installs global tracer and meter providers. Only the first call does
// any work; later calls return the same result.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	initOnce.Do(func() {
		providers, initErr = setup(ctx, cfg, prometheus.DefaultRegisterer)
	})
	return providers, initErr
}

func setup(ctx context.Context, cfg Config, reg prometheus.Registerer, extra ...sdktrace.TracerProviderOption) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	if cfg.ProjectID != "" {
		exporter, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("create cloud trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	opts = append(opts, extra...)

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)
	otel.SetMeterProvider(mp)

	return &Providers{Tracer: tp, Meter: mp}, nil
}

// Tracer returns the module's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Handler wraps h so each request gets a server span and otelhttp metrics.
func Handler(h http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(h, operation)
}
