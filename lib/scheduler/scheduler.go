// Package scheduler provides a bounded, two-level concurrent worker pool: a
// global cap across all callers plus a per-key cap (e.g. per carrier). It
// generalizes the task-handle shape of a keep-aliver into a reusable
// primitive for driving many independent, cancellable jobs with bounded
// fan-out and per-job progress reporting.
package scheduler

import (
	"context"
	"sync"

	"github.com/gravitational/trace"
)

// Pool bounds concurrency globally and per key. Zero value is not usable;
// construct with New.
type Pool struct {
	global chan struct{}

	mu     sync.Mutex
	perKey map[string]chan struct{}
	keyCap int
}

// New returns a Pool admitting at most globalCap concurrent jobs overall and
// at most perKeyCap concurrent jobs sharing the same key.
func New(globalCap, perKeyCap int) *Pool {
	if globalCap <= 0 {
		globalCap = 1
	}
	if perKeyCap <= 0 {
		perKeyCap = 1
	}
	return &Pool{
		global: make(chan struct{}, globalCap),
		perKey: make(map[string]chan struct{}),
		keyCap: perKeyCap,
	}
}

func (p *Pool) keySem(key string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.perKey[key]
	if !ok {
		sem = make(chan struct{}, p.keyCap)
		p.perKey[key] = sem
	}
	return sem
}

// Run blocks until a global slot and a slot for key are both available, then
// runs fn. It returns fn's error, or ctx.Err() if ctx is cancelled before a
// slot is acquired.
func (p *Pool) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	sem := p.keySem(key)

	select {
	case p.global <- struct{}{}:
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
	defer func() { <-p.global }()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
	defer func() { <-sem }()

	return fn(ctx)
}

// Job is one unit of work submitted to RunAll.
type Job struct {
	Key string
	Run func(context.Context) error
}

// RunAll runs every job concurrently (bounded by the pool), blocks until all
// have finished or ctx is cancelled, and returns one error per job in the
// same order as jobs (nil for jobs that succeeded). It never stops because
// one job failed — failures are recorded, not propagated.
func RunAll(ctx context.Context, pool *Pool, jobs []Job) []error {
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, j := range jobs {
		i, j := i, j
		go func() {
			defer wg.Done()
			errs[i] = pool.Run(ctx, j.Key, j.Run)
		}()
	}
	wg.Wait()
	return errs
}

// TaskHandle is a cancellable background task with a terminal error and a
// Done channel, modelled on the auth keep-aliver shape: a task starts a
// goroutine, forwards events on a channel, and exposes Err/Done/Close for
// the owner to observe completion.
type TaskHandle struct {
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	err    error
}

// NewTaskHandle derives a cancellable context from parent and returns a
// handle for the caller to close or inspect.
func NewTaskHandle(parent context.Context) (*TaskHandle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &TaskHandle{ctx: ctx, cancel: cancel}, ctx
}

// FailWith records err as the task's terminal error and cancels its context.
func (h *TaskHandle) FailWith(err error) {
	h.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Err returns the terminal error, if the task has failed.
func (h *TaskHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Done returns a channel closed once the task has been cancelled or failed.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Close cancels the task. Safe to call more than once.
func (h *TaskHandle) Close() error {
	h.cancel()
	return nil
}
