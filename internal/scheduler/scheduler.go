// Package scheduler implements the core scheduling loop of §4.5: an
// internally single-threaded event loop that walks ready tasks onto an
// Executor, respects per-slot concurrency limits, and drains on
// failure rather than aborting in-flight work. Generalised from
// dag_engine.go's Kahn's-algorithm worker-pool-plus-coordinator
// pattern — that engine tracked one flat in-degree map over a fixed
// task set with unconditional retries; this one tracks readiness
// through aggregate Future nodes, adds per-slot (not just global)
// concurrency limits, and replaces automatic retry with drain-then-fail,
// per the spec's explicit non-goals.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskgraph/engine/future"
	"github.com/taskgraph/engine/internal/cachestore"
	"github.com/taskgraph/engine/internal/codec"
	"github.com/taskgraph/engine/internal/compress"
	"github.com/taskgraph/engine/internal/dispatch"
	"github.com/taskgraph/engine/internal/executor"
	"github.com/taskgraph/engine/internal/graph"
)

// Config carries the scheduler's tunables, all optional (§4.5's
// "optional rate_limits", "optional prefixes").
type Config struct {
	// RateLimits maps a slot (a task_name or a channel) to the maximum
	// number of tasks occupying that slot concurrently.
	RateLimits map[string]int
	// Prefixes maps a slot to a prefix command; a task-level
	// PrefixCommand always wins over any channel's configured prefix.
	Prefixes map[string]string
	// SelfPath is the executable used for subprocess self-invocation.
	SelfPath string

	Codec      codec.ValueCodec
	Compressor compress.Compressor
	Logger     *slog.Logger

	// Meter installs the scheduler's own OTel instruments, mirroring
	// dag_engine.go's instrument set (taskDuration, taskFailures,
	// parallelismGauge) alongside internal/cachestore's
	// readLatency/writeLatency/cacheHits/cacheMisses. Nil disables
	// instrumentation (every Record/Add call below is guarded).
	Meter metric.Meter
}

// Scheduler runs one graph to completion against a cache store.
type Scheduler struct {
	dag   *graph.DAG
	store *cachestore.Store
	exec  executor.Executor
	cfg   Config

	sems map[string]*semaphore.Weighted

	taskDuration metric.Float64Histogram
	taskFailures metric.Int64Counter
	parallelism  metric.Int64UpDownCounter
}

// New validates cfg and builds a Scheduler for dag.
func New(dag *graph.DAG, store *cachestore.Store, exec executor.Executor, cfg Config) (*Scheduler, error) {
	if cfg.Codec == nil {
		cfg.Codec = codec.JSON{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sems := make(map[string]*semaphore.Weighted, len(cfg.RateLimits))
	for slot, limit := range cfg.RateLimits {
		if limit < 1 {
			return nil, &UsageError{Msg: fmt.Sprintf("rate_limits[%q] must be >= 1, got %d", slot, limit)}
		}
		sems[slot] = semaphore.NewWeighted(int64(limit))
	}

	s := &Scheduler{dag: dag, store: store, exec: exec, cfg: cfg, sems: sems}
	if cfg.Meter != nil {
		s.taskDuration, _ = cfg.Meter.Float64Histogram("taskgraph_task_duration_ms")
		s.taskFailures, _ = cfg.Meter.Int64Counter("taskgraph_task_failures_total")
		s.parallelism, _ = cfg.Meter.Int64UpDownCounter("taskgraph_task_parallelism")
	}
	return s, nil
}

type taskOutcome struct {
	task  future.Runnable
	value any
	err   error
}

// Run executes the scheduler's main loop to completion and returns the
// populated ResolveContext (callers resolve their typed root future
// against it) plus run statistics. On any task failure it drains
// in-flight work and returns *FailedError; the successful tasks'
// cache entries remain populated (§7's explicit "partial progress is
// not lost").
func (s *Scheduler) Run(ctx context.Context) (*future.ResolveContext, Stats, error) {
	rc := future.NewResolveContext()
	order := runnables(s.dag)
	deps := taskDeps(s.dag)
	dependents := reverseDeps(deps)

	pending := make(map[future.Runnable]int, len(order))
	for _, t := range order {
		pending[t] = len(deps[t])
	}
	done := make(map[future.Runnable]bool, len(order))
	stats := make(map[future.Runnable]*TaskStat, len(order))
	now := time.Now()

	var ready []future.Runnable

	markDone := func(t future.Runnable) {
		done[t] = true
		for _, dep := range dependents[t] {
			pending[dep]--
			if pending[dep] == 0 && !done[dep] {
				ready = append(ready, dep)
			}
		}
	}

	// Initial sweep (§4.5 step 1): cache-hit detection, then readiness
	// among everything not already satisfied from cache.
	for _, t := range order {
		stats[t] = &TaskStat{TaskName: t.TaskName(), TaskID: t.TaskID(), Slots: slotsFor(t)}
	}
	for _, t := range order {
		if t.NoCache() {
			continue
		}
		hit, err := s.store.Has(t.TaskName(), t.TaskID())
		if err != nil {
			return rc, Stats{}, fmt.Errorf("scheduler: cache lookup for %s/%s: %w", t.TaskName(), t.TaskID(), err)
		}
		if !hit {
			continue
		}
		val, err := s.loadCached(ctx, t)
		if err != nil {
			// Corrupt entry: treated as a miss, recomputed below.
			s.cfg.Logger.Warn("cache entry unreadable, recomputing",
				"task_name", t.TaskName(), "task_id", t.TaskID(), "error", err)
			continue
		}
		rc.Set(t, val)
		st := stats[t]
		st.Origin = OriginCacheHit
		st.QueuedAt, st.StartedAt, st.FinishedAt = now, now, now
		markDone(t)
	}
	for _, t := range order {
		if !done[t] && pending[t] == 0 {
			stats[t].QueuedAt = time.Now()
			ready = append(ready, t)
		}
	}

	remaining := 0
	for _, t := range order {
		if !done[t] {
			remaining++
		}
	}

	completions := make(chan taskOutcome)
	inFlight := 0
	draining := false
	var firstErr *FailedError

	// startDraining flips the loop into drain mode and abandons every
	// task still sitting in ready: held back only by a per-slot rate
	// limit, never dispatched, it contributes nothing to inFlight and
	// so must be dropped from remaining here or the loop spins down to
	// inFlight==0 with ready non-empty and misreports a deadlock.
	startDraining := func(cause *FailedError) {
		if firstErr == nil {
			firstErr = cause
		}
		if draining {
			return
		}
		draining = true
		remaining -= len(ready)
		ready = nil
	}

	for remaining > 0 {
		select {
		case <-ctx.Done():
			startDraining(&FailedError{Cause: ctx.Err()})
		default:
		}

		if !draining {
			sort.Slice(ready, func(i, j int) bool { return slotKey(ready[i]) < slotKey(ready[j]) })
			var stillReady []future.Runnable
			for _, t := range ready {
				if !s.tryAcquire(t) {
					stillReady = append(stillReady, t)
					continue
				}
				inFlight++
				if s.parallelism != nil {
					s.parallelism.Add(ctx, 1, metric.WithAttributes(attribute.String("task_name", t.TaskName())))
				}
				stats[t].StartedAt = time.Now()
				s.dispatch(ctx, t, rc, completions)
			}
			ready = stillReady
		}

		if inFlight == 0 {
			if len(ready) > 0 {
				return rc, Stats{}, &UsageError{Msg: "deadlock: ready tasks cannot acquire any slot (rate limit configured below 1 reachable concurrency)"}
			}
			break
		}

		// Once draining, ctx.Done() is already satisfied forever, so it
		// must not re-enter the select below: that would busy-spin
		// instead of blocking for the in-flight work this loop is
		// waiting to drain. Only race it against completions while
		// still undrained.
		var out taskOutcome
		if draining {
			out = <-completions
		} else {
			select {
			case out = <-completions:
			case <-ctx.Done():
				startDraining(&FailedError{Cause: ctx.Err()})
				continue
			}
		}
		inFlight--
		if s.parallelism != nil {
			s.parallelism.Add(ctx, -1, metric.WithAttributes(attribute.String("task_name", out.task.TaskName())))
		}
		s.release(out.task)
		remaining--

		st := stats[out.task]
		st.FinishedAt = time.Now()
		if s.taskDuration != nil {
			s.taskDuration.Record(ctx, float64(st.FinishedAt.Sub(st.StartedAt).Milliseconds()),
				metric.WithAttributes(attribute.String("task_name", out.task.TaskName())))
		}

		if out.err != nil {
			if s.taskFailures != nil {
				s.taskFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task_name", out.task.TaskName())))
			}
			startDraining(&FailedError{TaskName: out.task.TaskName(), TaskID: out.task.TaskID(), Cause: out.err})
			continue
		}

		st.Origin = OriginComputed
		if s.prefixFor(out.task) != "" {
			st.Origin = OriginDispatched
		}
		rc.Set(out.task, out.value)
		if !draining {
			markDone(out.task)
		} else {
			done[out.task] = true
		}
	}

	summary := Stats{Tasks: make([]TaskStat, 0, len(stats))}
	for _, t := range order {
		summary.Tasks = append(summary.Tasks, *stats[t])
	}

	if firstErr != nil {
		return rc, summary, firstErr
	}
	return rc, summary, nil
}

func slotsFor(t future.Runnable) []string {
	return append([]string{t.TaskName()}, t.Channels()...)
}

// slotKey is the tie-break key for the Ready set: (task_name, task_id)
// lexical order, per §4.4/§4.5.
func slotKey(t future.Runnable) string {
	return t.TaskName() + "\x00" + t.TaskID()
}

func (s *Scheduler) tryAcquire(t future.Runnable) bool {
	var acquired []string
	for _, slot := range slotsFor(t) {
		sem, ok := s.sems[slot]
		if !ok {
			continue
		}
		if !sem.TryAcquire(1) {
			for _, a := range acquired {
				s.sems[a].Release(1)
			}
			return false
		}
		acquired = append(acquired, slot)
	}
	return true
}

func (s *Scheduler) release(t future.Runnable) {
	for _, slot := range slotsFor(t) {
		if sem, ok := s.sems[slot]; ok {
			sem.Release(1)
		}
	}
}

func (s *Scheduler) loadCached(ctx context.Context, t future.Runnable) (any, error) {
	raw, meta, err := s.store.Load(ctx, t.TaskName(), t.TaskID())
	if err != nil {
		return nil, err
	}
	if meta.CodecTag != s.cfg.Codec.Tag() {
		return nil, &cachestore.CorruptError{TaskName: t.TaskName(), TaskID: t.TaskID(),
			Err: fmt.Errorf("codec_tag %q does not match configured codec %q", meta.CodecTag, s.cfg.Codec.Tag())}
	}
	if meta.CompressLevel > 0 {
		if s.cfg.Compressor == nil {
			return nil, &cachestore.CorruptError{TaskName: t.TaskName(), TaskID: t.TaskID(),
				Err: fmt.Errorf("entry is compressed but no compressor is configured")}
		}
		raw, err = s.cfg.Compressor.Decompress(raw)
		if err != nil {
			return nil, &cachestore.CorruptError{TaskName: t.TaskName(), TaskID: t.TaskID(), Err: err}
		}
	}
	val, err := t.DecodeInto(raw, s.cfg.Codec)
	if err != nil {
		return nil, &cachestore.CorruptError{TaskName: t.TaskName(), TaskID: t.TaskID(), Err: err}
	}
	return val, nil
}

// dispatch runs t asynchronously (in-process via the Executor, or via
// subprocess dispatch) and funnels its outcome onto completions. It
// spawns a dedicated goroutine per task so that the only blocking
// point for the scheduler's own loop is its read from completions,
// matching §5's "scheduler thread never blocks on a task body except
// on the executor's completion channel".
func (s *Scheduler) dispatch(ctx context.Context, t future.Runnable, rc *future.ResolveContext, completions chan<- taskOutcome) {
	go func() {
		val, err := s.exec.Submit(func() (any, error) {
			return s.runOne(ctx, t, rc)
		}).Wait()
		completions <- taskOutcome{task: t, value: val, err: err}
	}()
}

func (s *Scheduler) prefixFor(t future.Runnable) string {
	if p := t.PrefixCommand(); p != "" {
		return p
	}
	if p, ok := s.cfg.Prefixes[t.TaskName()]; ok {
		return p
	}
	for _, ch := range t.Channels() {
		if p, ok := s.cfg.Prefixes[ch]; ok {
			return p
		}
	}
	return ""
}

func (s *Scheduler) runOne(ctx context.Context, t future.Runnable, rc *future.ResolveContext) (any, error) {
	prefix := s.prefixFor(t)
	if prefix == "" {
		return s.runInProcess(ctx, t, rc)
	}
	return s.runViaProcess(ctx, t, prefix)
}

func (s *Scheduler) runInProcess(ctx context.Context, t future.Runnable, rc *future.ResolveContext) (any, error) {
	var stdout, stderr *os.File
	if !t.NoCache() {
		paths := s.store.PathsFor(t.TaskName(), t.TaskID())
		if _, err := s.store.ScratchDir(t.TaskName(), t.TaskID()); err != nil {
			return nil, err
		}
		var err error
		stdout, err = os.Create(paths.StdoutPath)
		if err != nil {
			return nil, fmt.Errorf("scheduler: open stdout log: %w", err)
		}
		defer stdout.Close()
		stderr, err = os.Create(paths.StderrPath)
		if err != nil {
			return nil, fmt.Errorf("scheduler: open stderr log: %w", err)
		}
		defer stderr.Close()
	}

	val, err := t.RunBody(ctx, rc, orDiscard(stdout), orDiscard(stderr))
	if err != nil {
		return nil, err
	}
	if t.NoCache() {
		return val, nil
	}
	if err := s.persist(ctx, t, val); err != nil {
		return nil, err
	}
	return val, nil
}

// pendingTask is the envelope WritePending stores so that a
// subprocess dispatch can reconstruct the exact task instance (§4.6)
// before the real cache entry exists: its compress level (the child
// needs this to persist its own result through the same path this
// scheduler would have) and its canonical args_json (what the
// registered Reconstructor actually consumes).
type pendingTask struct {
	CompressLevel int             `json:"compress_level"`
	ArgsJSON      json.RawMessage `json:"args_json"`
}

func (s *Scheduler) runViaProcess(ctx context.Context, t future.Runnable, prefix string) (any, error) {
	if t.NoCache() {
		return nil, &UsageError{Msg: fmt.Sprintf("task %s/%s: prefix dispatch requires a persistable cache entry, incompatible with task_no_cache", t.TaskName(), t.TaskID())}
	}
	argsJSON, err := t.ArgsJSON()
	if err != nil {
		return nil, err
	}
	pending, err := json.Marshal(pendingTask{CompressLevel: t.CompressLevel(), ArgsJSON: argsJSON})
	if err != nil {
		return nil, fmt.Errorf("scheduler: encode pending task metadata: %w", err)
	}
	if err := s.store.WritePending(t.TaskName(), t.TaskID(), pending); err != nil {
		return nil, fmt.Errorf("scheduler: write pending task metadata: %w", err)
	}
	paths := s.store.PathsFor(t.TaskName(), t.TaskID())
	if _, err := s.store.ScratchDir(t.TaskName(), t.TaskID()); err != nil {
		return nil, err
	}
	stdout, err := os.Create(paths.StdoutPath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open stdout log: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(paths.StderrPath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: open stderr log: %w", err)
	}
	defer stderr.Close()

	err = dispatch.Run(ctx, dispatch.Request{
		PrefixCommand: prefix,
		SelfPath:      s.cfg.SelfPath,
		TaskName:      t.TaskName(),
		TaskID:        t.TaskID(),
		CachePath:     s.store.Root(),
		Stdout:        stdout,
		Stderr:        stderr,
		StderrLog:     paths.StderrPath,
	})
	if err != nil {
		return nil, err
	}
	return s.loadCached(ctx, t)
}

func (s *Scheduler) persist(ctx context.Context, t future.Runnable, val any) error {
	raw, err := s.cfg.Codec.Encode(val)
	if err != nil {
		return fmt.Errorf("scheduler: encode output for %s/%s: %w", t.TaskName(), t.TaskID(), err)
	}
	level := t.CompressLevel()
	if level > 0 {
		if s.cfg.Compressor == nil {
			return &UsageError{Msg: fmt.Sprintf("task %s/%s requests compress_level %d but no compressor is configured", t.TaskName(), t.TaskID(), level)}
		}
		raw, err = s.cfg.Compressor.Compress(level, raw)
		if err != nil {
			return fmt.Errorf("scheduler: compress output for %s/%s: %w", t.TaskName(), t.TaskID(), err)
		}
	}
	argsJSON, err := t.ArgsJSON()
	if err != nil {
		return err
	}
	return s.store.Store(ctx, t.TaskName(), t.TaskID(), raw, cachestore.Meta{
		CodecTag:      s.cfg.Codec.Tag(),
		CompressLevel: level,
		CreatedAt:     time.Now(),
		ArgsJSON:      argsJSON,
	})
}

func orDiscard(f *os.File) io.Writer {
	if f != nil {
		return f
	}
	return io.Discard
}
