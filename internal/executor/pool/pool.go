// Package pool is a fixed-size OS-thread (goroutine) Executor,
// generalised from dag_engine.go's worker/ready-channel pattern: there,
// a fixed goroutine count drained a channel of *dagNode and reported
// completion on a results channel read by a single coordinator. Here
// the channel carries arbitrary jobs instead of a concrete node type,
// and each submission gets its own completion handle instead of a
// single shared results channel, since the scheduler dispatches many
// unrelated tasks concurrently rather than one workflow's fixed node set.
package pool

import (
	"sync"

	"github.com/taskgraph/engine/internal/executor"
)

type job struct {
	fn   func() (any, error)
	done chan outcome
}

type outcome struct {
	val any
	err error
}

type handle struct {
	ch chan outcome
}

func (h *handle) Wait() (any, error) {
	o := <-h.ch
	return o.val, o.err
}

// Executor is a fixed-size worker pool.
type Executor struct {
	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

// New starts size worker goroutines. size is the executor's hard
// concurrency bound (the spec's "executor of size e").
func New(size int) *Executor {
	if size < 1 {
		size = 1
	}
	e := &Executor{jobs: make(chan job)}
	e.wg.Add(size)
	for i := 0; i < size; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		val, err := j.fn()
		j.done <- outcome{val: val, err: err}
	}
}

func (e *Executor) Submit(fn func() (any, error)) executor.Handle {
	h := &handle{ch: make(chan outcome, 1)}
	e.jobs <- job{fn: fn, done: h.ch}
	return h
}

// Shutdown stops accepting new submissions. If wait is true it blocks
// until every already-submitted job has completed.
func (e *Executor) Shutdown(wait bool) {
	e.once.Do(func() { close(e.jobs) })
	if wait {
		e.wg.Wait()
	}
}
