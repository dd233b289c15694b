package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Egham-7/substreams-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ErrStopped is returned when a task is submitted after Stop
var ErrStopped = errors.New("executor stopped")

// Executor runs every submitted task on its own goroutine and tracks it
// until it resolves. Callers block on their own task only, so a stream that
// never ends does not delay an unrelated call.
type Executor struct {
	mu       sync.RWMutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
	inflight atomic.Int64
}

var (
	defaultExecutor *Executor
	defaultOnce     sync.Once
)

// Default returns the process-wide executor, creating it on first use. It is
// never stopped; its lifetime is the process lifetime.
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExecutor = New()
		fiberlog.Debug("Executor: process-wide executor started")
	})
	return defaultExecutor
}

// New creates an executor
func New() *Executor {
	return &Executor{stopped: make(chan struct{})}
}

// InFlight returns the number of submitted tasks that have not resolved yet
func (e *Executor) InFlight() int64 {
	return e.inflight.Load()
}

// Stop rejects new tasks and waits for running ones. The process-wide
// executor is never stopped.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		close(e.stopped)
		e.mu.Unlock()
		e.wg.Wait()
	})
}

// track registers a task unless the executor is stopped
func (e *Executor) track() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	select {
	case <-e.stopped:
		return false
	default:
	}
	e.wg.Add(1)
	e.inflight.Add(1)
	return true
}

func (e *Executor) done() {
	e.inflight.Add(-1)
	e.wg.Done()
}

type result[T any] struct {
	value T
	err   error
}

// Run starts fn and blocks until it returns. A panic inside fn is recovered
// and reported as an internal error so it never unwinds into the caller.
func Run[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !e.track() {
		return zero, ErrStopped
	}

	done := make(chan result[T], 1)
	go func() {
		defer e.done()

		var res result[T]
		func() {
			defer func() {
				if r := recover(); r != nil {
					fiberlog.Errorf("Executor: task panicked: %v\n%s", r, debug.Stack())
					res = result[T]{err: models.NewInternalError("task panicked", fmt.Errorf("%v", r))}
				}
			}()
			res.value, res.err = fn(ctx)
		}()
		done <- res
	}()

	res := <-done
	return res.value, res.err
}
