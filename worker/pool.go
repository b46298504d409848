// Package worker runs CPU-bound work on a bounded pool so decode and encode
// jobs never starve the goroutines doing network and file I/O.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
)

// ErrPanicked indicates a job panicked. The returned error also wraps the
// recovered value when it was itself an error.
var ErrPanicked = errors.New("worker panicked")

// Pool bounds the number of jobs running at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool running at most size jobs concurrently. A size of
// zero or less uses runtime.NumCPU.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

type result[T any] struct {
	value T
	err   error
}

// Run executes fn on the pool and waits for its result. If ctx ends while
// waiting for a slot or for fn, Run returns ctx.Err(); fn keeps its slot until
// it returns.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)

		var r result[T]
		var pc panics.Catcher
		pc.Try(func() {
			r.value, r.err = fn()
		})
		if rec := pc.Recovered(); rec != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"panic":    fmt.Sprint(rec.Value),
			}).Error("Worker job panicked")
			r = result[T]{err: panicError(rec)}
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func panicError(rec *panics.Recovered) error {
	if err, ok := rec.Value.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanicked, err)
	}
	return fmt.Errorf("%w: %v", ErrPanicked, rec.Value)
}
