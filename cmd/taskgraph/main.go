package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	// Blank-imported for its init() registry.RegisterRoot/Register side
	// effects: this is the example task module this CLI binary ships
	// with out of the box. A deployment with its own tasks swaps this
	// import for its own task package.
	_ "github.com/taskgraph/engine/examples/binomial"
	"github.com/taskgraph/engine/internal/telemetry"
)

// processMeter reads whatever MeterProvider main installed globally
// (telemetry.InitMetrics, or otel's built-in no-op if that failed).
func processMeter() metric.Meter { return otel.Meter("taskgraph") }

// main wires up logging, tracing, and metrics exactly the way the
// teacher's service entrypoint does (orchestrator's main.go: Init,
// signal.NotifyContext, InitTracer/InitMetrics, deferred shutdown) —
// generalised from an HTTP server's lifetime to a single cobra command
// invocation's lifetime, since this engine is a CLI/library rather
// than a long-running service.
func main() {
	service := "taskgraph"
	logger := telemetry.InitLogging(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := telemetry.InitTracer(ctx, service)
	shutdownMetrics, _ := telemetry.InitMetrics(ctx, service)
	defer func() {
		if err := shutdownTrace(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
		if err := shutdownMetrics(ctx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
