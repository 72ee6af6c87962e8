// Package future provides a single-assignment result handle that can be
// aborted.
//
// Abort state lives on the root of a chain. Then and Finally derive new
// futures that share it, so Abort and Aborted on any link reach the original
// operation.
package future

import (
	"context"
	"sync"
	"sync/atomic"
)

type abortState struct {
	once    sync.Once
	aborted atomic.Bool
	cancel  func()
}

func (s *abortState) abort() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.aborted.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Future is the eventual result of an abortable operation
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	val   T
	err   error
	state *abortState
}

// New returns a pending future and the function that settles it. Only the
// first call to settle has an effect. cancel is invoked once on Abort.
func New[T any](cancel func()) (*Future[T], func(T, error)) {
	f := &Future[T]{
		done:  make(chan struct{}),
		state: &abortState{cancel: cancel},
	}
	return f, f.settle
}

// Resolved returns a settled future. Abort on it is a no-op, so a single
// instance can be shared between callers.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v}
	close(f.done)
	return f
}

// Rejected returns a future settled with err
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Go runs fn on its own goroutine. Abort cancels the context passed to fn.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f, settle := New[T](cancel)
	go func() {
		defer cancel()
		settle(fn(ctx))
	}()
	return f
}

func (f *Future[T]) settle(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends. Ending ctx does not abort
// the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value. It blocks until the future settles.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Abort cancels the root operation of the chain
func (f *Future[T]) Abort() {
	f.state.abort()
}

// Aborted reports whether Abort was called anywhere on the chain
func (f *Future[T]) Aborted() bool {
	return f.state != nil && f.state.aborted.Load()
}

// Then derives a future from f's result. The derived future keeps f's abort
// state.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := &Future[U]{done: make(chan struct{}), state: f.state}
	go func() {
		<-f.done
		next.settle(fn(f.val, f.err))
	}()
	return next
}

// Finally runs fn after f settles and passes f's result through unchanged
func Finally[T any](f *Future[T], fn func()) *Future[T] {
	return Then(f, func(v T, err error) (T, error) {
		fn()
		return v, err
	})
}
