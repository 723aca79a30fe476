// Package telemetry wires the engine's ambient logging, tracing, and
// metrics stack. It is a direct generalisation of the teacher's
// logging.Init and otelinit packages: same env-driven handler
// selection, same OTLP gRPC exporter wiring, renamed from the
// teacher's SWARM_*/swarm-* namespace to this engine's own.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogging configures and installs a global slog logger. JSON
// output if TASKGRAPH_JSON_LOG is 1/true/json, text otherwise; level
// from TASKGRAPH_LOG_LEVEL.
func InitLogging(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("TASKGRAPH_JSON_LOG"))
	asJSON := mode == "1" || mode == "true" || mode == "json"

	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	if asJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", asJSON)
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("TASKGRAPH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
