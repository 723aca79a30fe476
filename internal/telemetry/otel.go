package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

func endpoint(primary, fallback string) string {
	if e := os.Getenv(primary); e != "" {
		return e
	}
	if e := os.Getenv(fallback); e != "" {
		return e
	}
	return "localhost:4317"
}

// InitTracer installs a global TracerProvider exporting via OTLP/gRPC.
// Exporter setup failures are logged and degrade to a no-op shutdown
// rather than preventing the engine from running — tracing is ambient
// observability, not a correctness dependency.
func InitTracer(ctx context.Context, service string) func(context.Context) error {
	ep := endpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(ep),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel trace exporter init failed", "error", err)
		return func(context.Context) error { return nil }
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", ep)
	return tp.Shutdown
}

// InitMetrics installs a global MeterProvider exporting via OTLP/gRPC
// on a periodic reader, and returns the engine's fixed instrument set.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, m Instruments) {
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	ep := endpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(initCtx,
		otlpmetricgrpc.WithEndpoint(ep),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, newInstruments(otel.Meter("taskgraph"))
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", ep)
	return mp.Shutdown, newInstruments(otel.Meter("taskgraph"))
}

// Instruments are the metrics cachestore and scheduler record against,
// mirroring the teacher's Metrics struct of shared resilience
// instruments (metrics.go), generalised to this engine's own set.
type Instruments struct {
	Meter metric.Meter
}

func newInstruments(meter metric.Meter) Instruments {
	return Instruments{Meter: meter}
}

// Tracer returns the engine's tracer ("taskgraph"). Graph build and
// runs do not open spans with it.
func Tracer() trace.Tracer { return otel.Tracer("taskgraph") }
