package future

import "fmt"

// ResolveContext carries the already-resolved value of every node the
// scheduler has finished (cache hit, computed, or synchronously
// resolved aggregate/index node). It is populated by the scheduler as
// nodes reach the Done state and is read by Future[T].Resolve
// implementations and by task bodies.
type ResolveContext struct {
	values map[Node]any
}

// NewResolveContext returns an empty ResolveContext.
func NewResolveContext() *ResolveContext {
	return &ResolveContext{values: make(map[Node]any)}
}

// Set records the resolved value for a node. Called by the scheduler
// once a node is Done.
func (rc *ResolveContext) Set(n Node, v any) {
	rc.values[n] = v
}

// rawValue returns the resolved value stored for n, if any.
func (rc *ResolveContext) rawValue(n Node) (any, bool) {
	v, ok := rc.values[n]
	return v, ok
}

// RawValue is the type-erased counterpart to Resolve, for callers that
// only hold a Node (not a Future[T]) — the CLI's `run` command, which
// builds its root from a registered, untyped constructor and so never
// recovers T at compile time.
func (rc *ResolveContext) RawValue(n Node) (any, bool) {
	return rc.rawValue(n)
}

// Future is the typed handle for a value of type T produced now or
// later. Every concrete variant (*Task[T], *Const[T], *FutureList[T],
// *FutureDict[T], *MappedFuture[T]) implements both Node (the untyped
// graph-facing contract) and Resolve (the typed value-facing one).
type Future[T any] interface {
	Node
	// Resolve returns this future's value. It is only legal to call
	// after every node in Upstreams() (transitively) has resolved.
	Resolve(rc *ResolveContext) (T, error)
}

// Resolve is a convenience wrapper for task bodies: it resolves f
// against rc, returning a typed value or an error if f has not
// resolved yet (a programming error — the scheduler guarantees bodies
// are only invoked after their declared upstreams are Done).
func Resolve[T any](rc *ResolveContext, f Future[T]) (T, error) {
	return f.Resolve(rc)
}

// ErrNotResolved is returned by a Future's Resolve method when asked
// to produce a value before its upstreams have completed.
type ErrNotResolved struct {
	Node Node
}

func (e *ErrNotResolved) Error() string {
	return fmt.Sprintf("future of kind %s has not resolved yet", e.Node.Kind())
}
