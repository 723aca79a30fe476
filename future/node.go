// Package future implements the composable Future/Task/Const/FutureList/
// FutureDict/MappedFuture model described by the engine's data model: a
// tagged variant over a capability interface rather than an inheritance
// hierarchy (there is no Python-style base class here).
package future

import (
	"context"
	"fmt"
	"io"
)

// Kind tags which Future variant a Node is, mirroring the spec's
// enumerated Future variants.
type Kind int

const (
	KindTask Kind = iota
	KindConst
	KindList
	KindDict
	KindMapped
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindConst:
		return "const"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindMapped:
		return "mapped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is the non-generic handle the graph builder, scheduler, and
// identity encoder operate on. Every Future[T], regardless of T, is also
// a Node — this is what lets a DAG hold futures of heterogeneous result
// types in one vertex set.
type Node interface {
	// Kind reports which Future variant this node is.
	Kind() Kind

	// Upstreams returns the set of Futures this node directly depends
	// on. The graph builder walks these edges to discover the DAG.
	Upstreams() []Node

	// IdentityFragment returns this node's contribution to a canonical
	// argument tree: for Task and MappedFuture this is a tagged
	// {"__future__", "__id__"} record; for Const it is the wrapped
	// value itself; for FutureList/FutureDict it is the recursively
	// resolved array/map of their children's fragments. The returned
	// tree contains no remaining Node values — every Future leaf has
	// already been substituted.
	IdentityFragment() (any, error)
}

// Runnable is implemented by task nodes: the only Node kind the
// scheduler ever dispatches onto an Executor. Aggregate and index nodes
// (FutureList, FutureDict, MappedFuture) resolve synchronously in
// memory and never implement Runnable.
type Runnable interface {
	Node

	// TaskName is the stable, unique identifier for this task's type
	// (cache partition key).
	TaskName() string

	// TaskID is the content digest of this task's canonical argument
	// record (cache entry key within the task_name partition).
	TaskID() string

	// Channels lists the rate-limit/prefix-command slots this task
	// additionally belongs to, besides its own TaskName.
	Channels() []string

	// PrefixCommand returns the configured prefix command for this
	// task instance, or "" if none.
	PrefixCommand() string

	// CompressLevel returns the configured output compression level
	// (0 = uncompressed).
	CompressLevel() int

	// NoCache reports whether this task's output must never be
	// persisted (always recomputed).
	NoCache() bool

	// ArgsJSON renders the canonical argument record as indented JSON,
	// for human inspection (the task_args view of §6).
	ArgsJSON() ([]byte, error)

	// DecodeInto decodes raw (a cache entry's stored bytes) into this
	// task's own static result type using dec, and returns it boxed as
	// any. The cache layer is type-erased (it stores []byte), but only
	// the Task itself knows its static T, so decoding has to happen
	// here rather than in the scheduler.
	DecodeInto(raw []byte, dec Decoder) (any, error)

	// RunBody executes the task body against a ResolveContext carrying
	// the already-resolved values of every upstream. It must only be
	// called once all Upstreams() have resolved. stdout/stderr are
	// where the body should write any diagnostic output it wants
	// captured into the cache entry's log files — Go has no safe way to
	// temporarily swap process-global os.Stdout for one of many
	// concurrently running bodies, so the core passes explicit writers
	// instead of the original's stream-replacement trick.
	RunBody(ctx context.Context, rc *ResolveContext, stdout, stderr io.Writer) (any, error)
}
