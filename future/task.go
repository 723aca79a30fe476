package future

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// TaskMeta is the class-level metadata the spec assigns to a task type
// (task_name, task_channel, task_prefix_command, task_compress_level)
// plus the instance-level task_id computed by the identity encoder
// before the Task is built. Go has no implicit "fully-qualified type
// name" default the way the original does, so Name is always explicit.
type TaskMeta struct {
	Name          string
	TaskID        string
	Channels      []string
	PrefixCommand string
	CompressLevel int
	NoCache       bool
}

// Decoder is the minimal codec capability a Task needs to decode a
// cached blob back into its own static type. Defined here, rather than
// importing a concrete codec package, so that future carries no
// storage-layer dependency; any ValueCodec implementation satisfies
// this automatically since it declares the same Decode method.
type Decoder interface {
	Decode(data []byte, out any) error
}

// Body is a task's computation: given a context (for cancellation), a
// ResolveContext carrying its upstreams' resolved values, and writers
// for diagnostic output, produce a result or fail.
type Body[T any] func(ctx context.Context, rc *ResolveContext, stdout, stderr io.Writer) (T, error)

// Task is the user-facing unit of computation. Two Task[T] instances
// of the same TaskName with equal canonical argument records share a
// TaskID and therefore a cache slot — the identity encoder
// (internal/identity) is responsible for computing TaskID before a
// Task is constructed; Task itself only carries the result.
type Task[T any] struct {
	meta TaskMeta
	args *Args
	body Body[T]
}

// NewTask builds a Task node. meta.TaskID must already have been
// computed (by the identity encoder) from args's canonical fragment;
// NewTask does not recompute it, so that construction and identity
// derivation stay decoupled from this generic, cache-agnostic package.
func NewTask[T any](meta TaskMeta, args *Args, body Body[T]) *Task[T] {
	return &Task[T]{meta: meta, args: args, body: body}
}

func (t *Task[T]) Kind() Kind { return KindTask }

func (t *Task[T]) Upstreams() []Node { return t.args.Upstreams() }

func (t *Task[T]) IdentityFragment() (any, error) {
	return map[string]any{"__future__": t.meta.Name, "__id__": t.meta.TaskID}, nil
}

func (t *Task[T]) Resolve(rc *ResolveContext) (T, error) {
	var zero T
	v, ok := rc.rawValue(t)
	if !ok {
		return zero, &ErrNotResolved{Node: t}
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("task %s: resolved value has unexpected type %T", t.meta.Name, v)
	}
	return out, nil
}

func (t *Task[T]) TaskName() string { return t.meta.Name }

func (t *Task[T]) TaskID() string { return t.meta.TaskID }

func (t *Task[T]) Channels() []string { return t.meta.Channels }

func (t *Task[T]) PrefixCommand() string { return t.meta.PrefixCommand }

func (t *Task[T]) CompressLevel() int { return t.meta.CompressLevel }

func (t *Task[T]) NoCache() bool { return t.meta.NoCache }

func (t *Task[T]) Args() *Args { return t.args }

func (t *Task[T]) ArgsJSON() ([]byte, error) {
	frag, err := t.args.Fragment()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(frag, "", "  ")
}

func (t *Task[T]) RunBody(ctx context.Context, rc *ResolveContext, stdout, stderr io.Writer) (any, error) {
	return t.body(ctx, rc, stdout, stderr)
}

func (t *Task[T]) DecodeInto(raw []byte, dec Decoder) (any, error) {
	var v T
	if err := dec.Decode(raw, &v); err != nil {
		return nil, fmt.Errorf("task %s: decode cached value: %w", t.meta.Name, err)
	}
	return v, nil
}
