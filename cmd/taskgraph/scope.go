package main

import (
	"context"
	"fmt"
	"os"

	"github.com/taskgraph/engine"
	"github.com/taskgraph/engine/internal/codec"
	"github.com/taskgraph/engine/internal/compress"
	"github.com/taskgraph/engine/internal/config"
)

// openScope layers default < config file < CLI flag (per
// SPEC_FULL.md's config layering) and opens a taskgraph.Scope against
// the result, mirroring cmd/aleutian's PersistentPreRun config load
// but per-command rather than once at process start, since each
// subcommand here needs the scope for a different lifetime.
func openScope(ctx context.Context) (context.Context, *taskgraph.Scope, error) {
	cfg, err := config.LoadOptional(flagConfig)
	if err != nil {
		return ctx, nil, err
	}
	if flagCache != "" {
		cfg.CacheRoot = flagCache
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if err := cfg.Validate(); err != nil {
		return ctx, nil, err
	}

	selfPath := flagSelfPath
	if selfPath == "" {
		selfPath = os.Args[0]
	}

	nctx, scope, err := taskgraph.Open(ctx, cfg.CacheRoot, taskgraph.Options{
		Workers:    cfg.Workers,
		RateLimits: cfg.RateLimits,
		Prefixes:   cfg.Prefixes,
		SelfPath:   selfPath,
		Codec:      codec.JSON{},
		Compressor: compress.Zstd{},
	})
	if err != nil {
		return ctx, nil, fmt.Errorf("open cache scope: %w", err)
	}
	return nctx, scope, nil
}
