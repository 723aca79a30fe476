package scheduler

import (
	"github.com/taskgraph/engine/future"
	"github.com/taskgraph/engine/internal/graph"
)

// taskDeps computes, for every Runnable vertex in dag, its transitive
// Runnable predecessors — walking straight through any intervening
// FutureList/FutureDict/MappedFuture/Const nodes, since those never
// execute or hold Done state of their own (§4.5: "Aggregate/index
// futures resolve synchronously in-memory (no dispatch)"). A task's
// scheduling readiness depends only on these, not on the full Node
// closure.
func taskDeps(dag *graph.DAG) map[future.Runnable][]future.Runnable {
	memo := make(map[future.Node][]future.Runnable)

	var resolve func(n future.Node) []future.Runnable
	resolve = func(n future.Node) []future.Runnable {
		if v, ok := memo[n]; ok {
			return v
		}
		var out []future.Runnable
		seen := make(map[future.Runnable]bool)
		for _, u := range dag.Edges[n] {
			if r, ok := u.(future.Runnable); ok {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
				continue
			}
			for _, rr := range resolve(u) {
				if !seen[rr] {
					seen[rr] = true
					out = append(out, rr)
				}
			}
		}
		memo[n] = out
		return out
	}

	deps := make(map[future.Runnable][]future.Runnable)
	for _, v := range dag.Vertices {
		if r, ok := v.(future.Runnable); ok {
			deps[r] = resolve(v)
		}
	}
	return deps
}

// reverseDeps inverts taskDeps into a dependents map.
func reverseDeps(deps map[future.Runnable][]future.Runnable) map[future.Runnable][]future.Runnable {
	out := make(map[future.Runnable][]future.Runnable)
	for t, ups := range deps {
		for _, u := range ups {
			out[u] = append(out[u], t)
		}
	}
	return out
}

// runnables returns the Runnable subset of dag.Order, preserving its
// deterministic leaves-first ordering.
func runnables(dag *graph.DAG) []future.Runnable {
	var out []future.Runnable
	for _, n := range dag.Order {
		if r, ok := n.(future.Runnable); ok {
			out = append(out, r)
		}
	}
	return out
}
