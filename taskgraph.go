// Package taskgraph is the engine's public API: open a cache-bound
// Scope, build tasks against it with NewTask, and run a root future to
// completion with Run. It is the composition root wiring future,
// internal/identity, internal/cachescope, internal/cachestore,
// internal/graph, internal/scheduler, and internal/executor/pool
// together the way the spec's own top-level
// operations (open_cache/new_task/run_graph) describe them, generalised
// from the teacher's DAGEngine/WorkflowStore pairing in
// services/orchestrator (one long-lived store, many short-lived runs
// against it).
package taskgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskgraph/engine/future"
	"github.com/taskgraph/engine/internal/cachescope"
	"github.com/taskgraph/engine/internal/cachestore"
	"github.com/taskgraph/engine/internal/codec"
	"github.com/taskgraph/engine/internal/compress"
	"github.com/taskgraph/engine/internal/executor"
	"github.com/taskgraph/engine/internal/executor/pool"
	"github.com/taskgraph/engine/internal/graph"
	"github.com/taskgraph/engine/internal/identity"
	"github.com/taskgraph/engine/internal/scheduler"
)

// Re-exported so callers building tasks never need to import future or
// internal/identity directly.
type (
	Args           = future.Args
	Node           = future.Node
	Stats          = scheduler.Stats
	ResolveContext = future.ResolveContext
)

// NewArgs starts a new task argument record.
func NewArgs() *Args { return future.NewArgs() }

// Const wraps a plain value as a Future, per §4.1's literal values.
func Const[T any](v T) *future.Const[T] { return future.NewConst(v) }

// Options configures a Scope's scheduler and cache behavior. All
// fields are optional; zero values fall back to the scheduler's own
// defaults (JSON codec, no rate limits, in-process execution only).
type Options struct {
	Workers       int
	RateLimits    map[string]int
	Prefixes      map[string]string
	SelfPath      string
	Codec         codec.ValueCodec
	Compressor    compress.Compressor
	Meter         metric.Meter
}

// Scope is an open cache binding plus the executor it runs task bodies
// on. It corresponds to the spec's "open_cache" result: every task
// constructed with it is tied to its CacheStore, and every Run against
// it shares the same executor and scheduler configuration.
type Scope struct {
	ctx   context.Context
	store *cachestore.Store
	exec  executor.Executor
	cfg   scheduler.Config
}

// Open opens (or creates) a cache store rooted at dir and returns a
// Scope bound to it, per §4.1. The returned context carries the scope
// so task constructors reachable only via ctx (not via the *Scope
// value itself) can still find it through cachescope.From, matching
// the spec's "construction is only valid inside an open scope"
// invariant without a process-global.
func Open(ctx context.Context, dir string, opts Options) (context.Context, *Scope, error) {
	meter := opts.Meter
	if meter == nil {
		// Reads whatever MeterProvider the process installed globally
		// (telemetry.InitMetrics in cmd/taskgraph's main, or otel's
		// built-in no-op if nothing called it — e.g. in tests).
		meter = otel.Meter("taskgraph")
	}
	store, err := cachestore.Open(dir, meter)
	if err != nil {
		return ctx, nil, fmt.Errorf("taskgraph: open cache: %w", err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}
	exec := pool.New(workers)

	cfg := scheduler.Config{
		RateLimits: opts.RateLimits,
		Prefixes:   opts.Prefixes,
		SelfPath:   opts.SelfPath,
		Codec:      opts.Codec,
		Compressor: opts.Compressor,
		Meter:      meter,
	}

	s := &Scope{store: store, exec: exec, cfg: cfg}
	nctx, _ := cachescope.Open(ctx, dir, store)
	s.ctx = nctx
	return nctx, s, nil
}

// Close shuts the scope's executor and cache store down. Run must not
// be called again afterward.
func (s *Scope) Close() error {
	s.exec.Shutdown(true)
	return s.store.Close()
}

// Context returns the scope-carrying context task constructors should
// use to look themselves up via cachescope.From.
func (s *Scope) Context() context.Context { return s.ctx }

// NewTask computes meta.TaskID from args's canonical fragment and
// constructs a Task[T] bound to body, per §4.3's "task_id is derived,
// never supplied". Called from a ctx that does not carry this scope
// (or any scope) returns a *cachescope.UsageError, preserving the
// "construction only valid inside an open scope" invariant even though
// Go cannot enforce it at compile time.
func NewTask[T any](ctx context.Context, name string, args *Args, body future.Body[T], opts TaskOptions) (*future.Task[T], error) {
	if _, err := cachescope.From(ctx); err != nil {
		return nil, err
	}
	if err := args.Err(); err != nil {
		return nil, err
	}
	id, err := identity.TaskID(args)
	if err != nil {
		return nil, err
	}
	meta := future.TaskMeta{
		Name:          name,
		TaskID:        id,
		Channels:      opts.Channels,
		PrefixCommand: opts.PrefixCommand,
		CompressLevel: opts.CompressLevel,
		NoCache:       opts.NoCache,
	}
	return future.NewTask(meta, args, body), nil
}

// TaskOptions carries a task instance's class-level metadata (§4.3):
// its channels, prefix command, compression level, and no-cache flag.
type TaskOptions struct {
	Channels      []string
	PrefixCommand string
	CompressLevel int
	NoCache       bool
}

// Run builds the DAG reachable from root, schedules it to completion
// against the Scope's cache store and executor, and resolves root's
// typed value. On a task failure, the returned error is a
// *scheduler.FailedError and stats still reports every task that
// finished before the drain completed — partial progress is never
// lost, and the cache entries for successful tasks remain on disk for
// the next Run, per §7.
func Run[T any](ctx context.Context, s *Scope, root future.Future[T]) (T, Stats, error) {
	var zero T
	dag, err := graph.Build(root)
	if err != nil {
		return zero, Stats{}, err
	}
	sched, err := scheduler.New(dag, s.store, s.exec, s.cfg)
	if err != nil {
		return zero, Stats{}, err
	}
	rc, stats, err := sched.Run(ctx)
	if err != nil {
		return zero, stats, err
	}
	val, err := future.Resolve(rc, root)
	if err != nil {
		return zero, stats, err
	}
	return val, stats, nil
}

// RunNode is Run without a compile-time result type: it resolves
// root's value through the ResolveContext's type-erased accessor
// instead of Future[T].Resolve. It exists for the CLI's `run`
// subcommand, which only ever holds a future.Node recovered from a
// registered, untyped root constructor (internal/registry.RootBuilder)
// and so has no static T to parameterize Run with.
func RunNode(ctx context.Context, s *Scope, root future.Node) (any, Stats, error) {
	dag, err := graph.Build(root)
	if err != nil {
		return nil, Stats{}, err
	}
	sched, err := scheduler.New(dag, s.store, s.exec, s.cfg)
	if err != nil {
		return nil, Stats{}, err
	}
	rc, stats, err := sched.Run(ctx)
	if err != nil {
		return nil, stats, err
	}
	val, ok := rc.RawValue(root)
	if !ok {
		return nil, stats, fmt.Errorf("taskgraph: root %s did not resolve", root.Kind())
	}
	return val, stats, nil
}

// Clear drops one task's cache entry.
func (s *Scope) Clear(taskName, taskID string) error {
	return s.store.Drop(taskName, taskID)
}

// ClearAll drops every cache entry for a task type.
func (s *Scope) ClearAll(taskName string) error {
	return s.store.DropAll(taskName)
}

// Store exposes the scope's underlying cache store for callers that
// need direct access (e.g. the exec-task subprocess entry point).
func (s *Scope) Store() *cachestore.Store { return s.store }
