// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package future provides a single-resolution future.
//
// A Future settles exactly once with a value or an error. Waiting on an
// unsettled future blocks on a channel; waiting on a settled one returns the
// same result immediately, any number of times.
package future

import (
	"context"
	"sync"
)

// Future is a value that becomes available at most once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// Resolver settles the future it was created with. Calls after the first
// are ignored.
type Resolver[T any] func(value T, err error)

// New returns an unsettled future and the function that settles it.
func New[T any]() (*Future[T], Resolver[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.settle
}

// Ready returns a future already resolved with value.
func Ready[T any](value T) *Future[T] {
	f, resolve := New[T]()
	resolve(value, nil)
	return f
}

// Failed returns a future already rejected with err.
func Failed[T any](err error) *Future[T] {
	var zero T
	f, resolve := New[T]()
	resolve(zero, err)
	return f
}

// Go runs fn in a new goroutine and settles the returned future with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, resolve := New[T]()
	go func() {
		resolve(fn())
	}()
	return f
}

// Then returns a future that settles after f with the result of fn applied
// to f's value. Errors from f are passed through without calling fn.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next, resolve := New[U]()
	go func() {
		<-f.done
		if f.err != nil {
			var zero U
			resolve(zero, f.err)
			return
		}
		resolve(fn(f.value))
	}()
	return next
}

func (f *Future[T]) settle(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has a result.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
// A context error leaves the future untouched.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err() //nolint:wrapcheck // caller owns the context
	}
}

// All returns a future that settles once every input has settled.
// The result is the list of input errors in input order; nil entries mean
// success. All never rejects.
func All[T any](futures []*Future[T]) *Future[[]error] {
	errs := make([]error, len(futures))
	if len(futures) == 0 {
		return Ready(errs)
	}
	all, resolve := New[[]error]()
	go func() {
		for i, f := range futures {
			<-f.done
			errs[i] = f.err
		}
		resolve(errs, nil)
	}()
	return all
}
