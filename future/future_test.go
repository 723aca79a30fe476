package future

import (
	"context"
	"io"
	"testing"
)

func noopBody(v int) Body[int] {
	return func(ctx context.Context, rc *ResolveContext, stdout, stderr io.Writer) (int, error) {
		return v, nil
	}
}

func newIntTask(name, id string, args *Args, v int) *Task[int] {
	return NewTask(TaskMeta{Name: name, TaskID: id}, args, noopBody(v))
}

func TestConstResolvesImmediately(t *testing.T) {
	c := NewConst(42)
	rc := NewResolveContext()
	v, err := Resolve(rc, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestTaskResolveBeforeSetReturnsErrNotResolved(t *testing.T) {
	task := newIntTask("t", "1", NewArgs(), 1)
	rc := NewResolveContext()
	if _, err := Resolve(rc, task); err == nil {
		t.Fatalf("expected ErrNotResolved")
	} else if _, ok := err.(*ErrNotResolved); !ok {
		t.Fatalf("expected *ErrNotResolved, got %T", err)
	}
}

func TestTaskResolveAfterSet(t *testing.T) {
	task := newIntTask("t", "1", NewArgs(), 1)
	rc := NewResolveContext()
	rc.Set(task, 7)
	v, err := Resolve(rc, task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Fatalf("got %d, want 7", v)
	}
}

func TestFutureListAtIndex(t *testing.T) {
	a := newIntTask("t", "a", NewArgs(), 0)
	b := newIntTask("t", "b", NewArgs(), 0)
	list := NewFutureList[int](a, b)
	rc := NewResolveContext()
	rc.Set(a, 10)
	rc.Set(b, 20)

	second := list.At(1)
	v, err := Resolve(rc, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 20 {
		t.Fatalf("got %d, want 20", v)
	}
}

func TestFutureListAtOutOfRange(t *testing.T) {
	a := newIntTask("t", "a", NewArgs(), 0)
	list := NewFutureList[int](a)
	rc := NewResolveContext()
	rc.Set(a, 1)
	if _, err := Resolve(rc, list.At(5)); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestFutureDictGetByKey(t *testing.T) {
	foo := newIntTask("m", "foo", NewArgs(), 0)
	bar := newIntTask("m", "bar", NewArgs(), 0)
	dict := NewFutureDict(map[string]Future[int]{"foo": foo, "bar": bar})
	rc := NewResolveContext()
	rc.Set(foo, 42)
	rc.Set(bar, 7)

	v, err := Resolve(rc, dict.Get("foo"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

// TestMappedFutureIdentityDiffersByKey covers the spec's MappedFuture
// identity law: two indexes into the same upstream, via different
// keys, must not collide as the same Node.
func TestMappedFutureIdentityDiffersByKey(t *testing.T) {
	m := newIntTask("m", "multi", NewArgs(), 0)
	dict := NewFutureDict(map[string]Future[int]{"foo": m, "bar": m})
	foo := dict.Get("foo")
	bar := dict.Get("bar")
	if foo == bar {
		t.Fatalf("expected distinct MappedFuture nodes for distinct keys")
	}
}

func TestArgsUpstreamsDedupAndOrder(t *testing.T) {
	a := newIntTask("t", "a", NewArgs(), 0)
	b := newIntTask("t", "b", NewArgs(), 0)
	args := NewArgs().Set("z", a).Set("y", b).Set("x", a)
	ups := args.Upstreams()
	if len(ups) != 2 {
		t.Fatalf("expected 2 distinct upstreams, got %d", len(ups))
	}
	// Sorted keys are x (a), y (b), z (a again): a first, then b.
	if ups[0] != Node(a) || ups[1] != Node(b) {
		t.Fatalf("expected upstreams in sorted-key order [a b]")
	}
}

func TestArgsReservedNamePrefixIsError(t *testing.T) {
	args := NewArgs().Set("task_name", "oops")
	if err := args.Err(); err == nil {
		t.Fatalf("expected reserved-name error")
	}
}

func TestFragmentRejectsUnrepresentableLeaf(t *testing.T) {
	type weird struct{}
	_, err := Fragment(weird{})
	if err == nil {
		t.Fatalf("expected ArgumentError for unrepresentable leaf")
	}
	if _, ok := err.(*ArgumentError); !ok {
		t.Fatalf("expected *ArgumentError, got %T", err)
	}
}
