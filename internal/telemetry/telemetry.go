// Package telemetry installs the global OpenTelemetry providers for one
// kwsub process.
//
// Hooks are short-lived, so exporters are flushed by the shutdown function
// Init returns rather than on a timer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "kwsub"

// Options selects the exporters.
type Options struct {
	// Exporter is "none", "stdout" or "otlp".
	Exporter string
	// Endpoint is the OTLP/HTTP metrics URL (otlp only).
	Endpoint string
	// Version is reported as service.version.
	Version string
	// Writer receives stdout exporter output. os.Stderr when nil, since
	// stdout belongs to git.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs tracer and meter providers as the otel globals. With
// Exporter "none" (or empty) nothing is installed and the globals stay no-op.
// "otlp" exports metrics over OTLP/HTTP and keeps traces local.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", opts.Version),
	)

	switch opts.Exporter {
	case "", "none":
		return noopShutdown, nil
	case "stdout":
		return initStdout(res, opts.writer())
	case "otlp":
		return initOTLP(ctx, res, opts.Endpoint)
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", opts.Exporter)
	}
}

func initStdout(res *resource.Resource, w io.Writer) (ShutdownFunc, error) {
	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(spanExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	return install(tp, mp), nil
}

func initOTLP(ctx context.Context, res *resource.Resource, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return nil, errors.New("otlp exporter needs an endpoint")
	}
	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("creating otlp metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	return install(tp, mp), nil
}

func install(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		// Spans first: the meter flush may take the longest.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
}

func (o Options) writer() io.Writer {
	if o.Writer != nil {
		return o.Writer
	}
	return os.Stderr
}
