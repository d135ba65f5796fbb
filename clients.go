package main

import (
	"context"
	"sync"
	"time"
)

// lazyClient builds a process-wide client on first use. Only a successful
// build is kept, so a missing credential is retried on the next call.
type lazyClient[T any] struct {
	mu    sync.Mutex
	value T
	ready bool
	build func() (T, error)
}

func newLazyClient[T any](build func() (T, error)) *lazyClient[T] {
	return &lazyClient[T]{build: build}
}

func (l *lazyClient[T]) Get() (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready {
		return l.value, nil
	}
	v, err := l.build()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value, l.ready = v, true
	return v, nil
}

// callWithTimeout runs a blocking call that takes no context and abandons it
// when ctx is done or timeout elapses.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, call func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
