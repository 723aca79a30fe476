package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/taskgraph/engine/future"
	"github.com/taskgraph/engine/internal/cachestore"
	"github.com/taskgraph/engine/internal/executor/pool"
	"github.com/taskgraph/engine/internal/graph"
)

func newStore(t *testing.T) *cachestore.Store {
	t.Helper()
	s, err := cachestore.Open(t.TempDir(), noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("cachestore.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intTask(name, id string, args *future.Args, body future.Body[int]) *future.Task[int] {
	return future.NewTask(future.TaskMeta{Name: name, TaskID: id}, args, body)
}

func constBody(v int) future.Body[int] {
	return func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
		return v, nil
	}
}

func TestRunResolvesSimpleTask(t *testing.T) {
	root := intTask("t", "a", future.NewArgs(), constBody(42))
	dag, err := graph.Build(root)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	sched, err := New(dag, newStore(t), pool.New(2), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rc, _, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, err := future.Resolve(rc, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

// TestCacheHitSkipsBody covers the spec's "cache hit ⇔ body skipped"
// property (§8.2): a task already present in the store at Run start
// must never invoke its body, and its resolved value must come from
// the cached entry.
func TestCacheHitSkipsBody(t *testing.T) {
	store := newStore(t)
	var invoked int32
	body := func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
		atomic.AddInt32(&invoked, 1)
		return 7, nil
	}
	root := intTask("t", "cached", future.NewArgs(), body)

	if err := store.Store(context.Background(), "t", "cached", []byte("99"), cachestore.Meta{CodecTag: "json", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	dag, err := graph.Build(root)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	sched, err := New(dag, store, pool.New(2), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rc, stats, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if atomic.LoadInt32(&invoked) != 0 {
		t.Fatalf("expected body not to run on a cache hit, ran %d times", invoked)
	}
	v, err := future.Resolve(rc, root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != 99 {
		t.Fatalf("got %d, want the cached value 99", v)
	}
	if stats.Tasks[0].Origin != OriginCacheHit {
		t.Fatalf("expected origin cache-hit, got %s", stats.Tasks[0].Origin)
	}
}

// TestDrainOnFailureKeepsSuccessfulSiblingCached covers §8's "Failure
// drain" scenario: two independent leaves, one fails, the other's
// cache entry must still exist after Run returns *FailedError.
func TestDrainOnFailureKeepsSuccessfulSiblingCached(t *testing.T) {
	store := newStore(t)
	failBody := func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
		return 0, errors.New("boom")
	}
	okBody := func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
		return 5, nil
	}
	a := intTask("leaf", "a", future.NewArgs(), failBody)
	b := intTask("leaf", "b", future.NewArgs(), okBody)
	root := intTask("root", "r", future.NewArgs().Set("a", a).Set("b", b),
		func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
			av, _ := future.Resolve(rc, a)
			bv, _ := future.Resolve(rc, b)
			return av + bv, nil
		})

	dag, err := graph.Build(root)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	sched, err := New(dag, store, pool.New(4), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = sched.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a *FailedError")
	}
	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *FailedError, got %T: %v", err, err)
	}
	if failed.TaskName != "leaf" || failed.TaskID != "a" {
		t.Fatalf("expected failure attributed to leaf/a, got %s/%s", failed.TaskName, failed.TaskID)
	}

	has, hasErr := store.Has("leaf", "b")
	if hasErr != nil {
		t.Fatalf("Has: %v", hasErr)
	}
	if !has {
		t.Fatalf("expected leaf/b's cache entry to survive the drain")
	}
	if has, _ := store.Has("root", "r"); has {
		t.Fatalf("root must never resolve (and therefore never cache) when a dependency fails")
	}
}

// TestRateLimitBoundsConcurrency covers §8's channel-limit property: N
// siblings sharing a slot with rate_limits[slot]=1 never run more than
// one body at a time.
func TestRateLimitBoundsConcurrency(t *testing.T) {
	store := newStore(t)
	var current, maxSeen int32

	gpuBody := func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
		cur := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return 1, nil
	}

	const n = 6
	siblings := make([]future.Future[int], n)
	for i := 0; i < n; i++ {
		meta := future.TaskMeta{Name: "gpu.Work", TaskID: fmt.Sprintf("id%d", i), Channels: []string{"gpu"}}
		siblings[i] = future.NewTask(meta, future.NewArgs().Set("i", i), gpuBody)
	}

	// One synthetic root over a FutureList so a single Run schedules
	// every sibling concurrently.
	list := future.NewFutureList[int](siblings...)
	root := intTask("root", "r", future.NewArgs().Set("l", list),
		func(ctx context.Context, rc *future.ResolveContext, stdout, stderr io.Writer) (int, error) {
			return 0, nil
		})

	dag, err := graph.Build(root)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	sched, err := New(dag, store, pool.New(n), Config{RateLimits: map[string]int{"gpu": 1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt32(&maxSeen); got > 1 {
		t.Fatalf("expected at most 1 concurrent gpu task, observed %d", got)
	}
}
