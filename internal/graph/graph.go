// Package graph builds the DAG reachable from a root future and
// derives a deterministic, leaves-first topological order — mirroring
// dag_engine.go's buildDAG, generalised from a flat Task-by-ID list to
// the spec's arbitrary Future closure (tasks, consts, aggregates,
// indices) and given real cycle detection (the teacher only checked
// for "no root nodes", which misses cycles that still leave a root).
package graph

import (
	"fmt"
	"sort"

	"github.com/taskgraph/engine/future"
)

// DAG is the vertex/edge set and scheduling order derived from a root
// future, per §4.4.
type DAG struct {
	Root     future.Node
	Vertices []future.Node
	Edges    map[future.Node][]future.Node // node -> its direct upstreams
	Order    []future.Node                 // topological order, leaves first
}

// Build walks the reachable closure of root, deduplicating by node
// identity, and returns its DAG. It returns *CycleError if the closure
// is not acyclic.
func Build(root future.Node) (*DAG, error) {
	vertices, edges := collectVertices(root)

	if cyc := findCycle(root, edges); cyc != nil {
		return nil, cyc
	}

	return &DAG{
		Root:     root,
		Vertices: vertices,
		Edges:    edges,
		Order:    topoOrder(vertices, edges),
	}, nil
}

func collectVertices(root future.Node) ([]future.Node, map[future.Node][]future.Node) {
	visited := map[future.Node]bool{root: true}
	queue := []future.Node{root}
	var vertices []future.Node
	edges := make(map[future.Node][]future.Node)

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		vertices = append(vertices, n)
		ups := n.Upstreams()
		edges[n] = ups
		for _, u := range ups {
			if !visited[u] {
				visited[u] = true
				queue = append(queue, u)
			}
		}
	}
	return vertices, edges
}

func findCycle(root future.Node, edges map[future.Node][]future.Node) *CycleError {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[future.Node]int)
	var path []future.Node
	var cycle []future.Node

	var visit func(n future.Node) bool
	visit = func(n future.Node) bool {
		color[n] = gray
		path = append(path, n)
		for _, u := range edges[n] {
			switch color[u] {
			case gray:
				cycle = extractCycle(path, u)
				return true
			case white:
				if visit(u) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	if visit(root) {
		return &CycleError{Cycle: describeNodes(cycle)}
	}
	return nil
}

func extractCycle(path []future.Node, target future.Node) []future.Node {
	idx := -1
	for i, n := range path {
		if n == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		return path
	}
	out := append([]future.Node{}, path[idx:]...)
	return append(out, target)
}

func describeNodes(nodes []future.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		if r, ok := n.(future.Runnable); ok {
			out[i] = fmt.Sprintf("%s(%s)", r.TaskName(), r.TaskID())
		} else {
			out[i] = n.Kind().String()
		}
	}
	return out
}

// topoOrder returns vertices in leaves-first order via post-order DFS,
// visiting each node's upstreams in a deterministic (task_name,
// task_id)-sorted order so that scheduling is reproducible for tests
// (§4.4).
func topoOrder(vertices []future.Node, edges map[future.Node][]future.Node) []future.Node {
	visited := make(map[future.Node]bool)
	var order []future.Node

	var visit func(n future.Node)
	visit = func(n future.Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		ups := append([]future.Node(nil), edges[n]...)
		sort.Slice(ups, func(i, j int) bool { return nodeSortKey(ups[i]) < nodeSortKey(ups[j]) })
		for _, u := range ups {
			visit(u)
		}
		order = append(order, n)
	}

	for _, v := range vertices {
		visit(v)
	}
	return order
}

// nodeSortKey returns the deterministic tie-break key for a node: for
// Runnable (Task) nodes, the spec's literal (task_name, task_id)
// lexical order; for aggregate/const/index nodes (which are never
// independently scheduled) a best-effort stable key derived from their
// identity fragment.
func nodeSortKey(n future.Node) string {
	if r, ok := n.(future.Runnable); ok {
		return "0\x00" + r.TaskName() + "\x00" + r.TaskID()
	}
	frag, err := n.IdentityFragment()
	if err != nil {
		return fmt.Sprintf("1\x00err\x00%p", n)
	}
	return fmt.Sprintf("1\x00%v", frag)
}
