// Package registry lets a task type make itself reconstructible from
// (task_name, task_id) alone, which the subprocess self-invocation path
// (§4.6, §9) needs: the child process has no access to the parent's
// in-memory Future graph, only the CLI flags and the cache entry's
// persisted args_json, so it must rebuild the exact task instance
// itself before running the body.
//
// The spec's Design Notes describe this as "a registry mapping
// task_name -> constructor ... built at startup by scanning the user's
// task module" — Go has no runtime module scan, so Register calls are
// explicit, normally made from an init() alongside the task type
// definition, mirroring the teacher's PluginRegistry.Register pattern
// (plugins.go) generalised from a fixed TaskType enum to an open string
// namespace.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskgraph/engine/future"
)

// Reconstructor rebuilds a task's body invocation from its persisted
// canonical argument JSON (the task_args view, §6) and a resolver that
// loads an upstream's decoded value given the (task_name, task_id) pair
// recorded in that JSON's "__future__"/"__id__" markers. It returns the
// task's resolved output, ready for the caller to persist via
// cachestore.
type Reconstructor func(ctx context.Context, argsJSON []byte, loadUpstream UpstreamLoader) (any, error)

// UpstreamLoader loads an already-cached upstream task's decoded value.
// Subprocess dispatch is only ever issued for a task whose upstreams
// are already Done (§4.5), so every lookup here is expected to hit.
type UpstreamLoader func(ctx context.Context, taskName, taskID string) (any, error)

var (
	mu    sync.RWMutex
	funcs = make(map[string]Reconstructor)
)

// Register associates taskName with its Reconstructor. Registering the
// same name twice is a programming error and panics, matching the
// teacher's registry behavior of overwriting silently only for
// distinct types keyed by a comparable enum — here names are
// user-chosen strings, so a collision is far more likely to be a bug
// than deliberate reuse.
func Register(taskName string, fn Reconstructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := funcs[taskName]; exists {
		panic(fmt.Sprintf("registry: task_name %q already registered", taskName))
	}
	funcs[taskName] = fn
}

// Lookup returns the Reconstructor registered for taskName, if any.
func Lookup(taskName string) (Reconstructor, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := funcs[taskName]
	return fn, ok
}

// RootBuilder constructs a run's entire root future — the graph the
// CLI's `run` subcommand schedules — from a JSON kwargs blob, per §1's
// "the engine exposes a hook to instantiate the root task from a JSON
// argument blob". Unlike Reconstructor, a RootBuilder builds the
// Future graph (Task/Const/FutureList/... composition) rather than
// running a single task body in isolation: it is the CLI's only way in
// to a user's task module, since Go has no runtime way to discover
// "the root task type" from a bare string otherwise.
type RootBuilder func(ctx context.Context, kwargsJSON []byte) (future.Node, error)

var (
	rootMu    sync.RWMutex
	rootFuncs = make(map[string]RootBuilder)
)

// RegisterRoot associates a root name (what the CLI's `run --task`
// flag names) with its RootBuilder.
func RegisterRoot(name string, fn RootBuilder) {
	rootMu.Lock()
	defer rootMu.Unlock()
	if _, exists := rootFuncs[name]; exists {
		panic(fmt.Sprintf("registry: root %q already registered", name))
	}
	rootFuncs[name] = fn
}

// LookupRoot returns the RootBuilder registered for name, if any.
func LookupRoot(name string) (RootBuilder, bool) {
	rootMu.RLock()
	defer rootMu.RUnlock()
	fn, ok := rootFuncs[name]
	return fn, ok
}
