// Package infer provides a bounded pool of inference handles. The ONNX
// and whisper model handles used by the pipeline keep per-call state and
// are not safe for concurrent use, so each concurrent session checks one
// out for the duration of a clip and returns it afterwards.
package infer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Acquire after the pool has been closed.
var ErrClosed = errors.New("infer: pool is closed")

// Pool holds n pre-built handles of type T. Acquire blocks until a handle
// is free or ctx is done; Release returns it. Safe for concurrent use.
type Pool[T any] struct {
	handles chan T

	mu      sync.Mutex
	closed  bool
	closeFn func(T) error
	size    int
}

// NewPool builds size handles with factory and returns the filled pool.
// closeFn releases one handle and is called for every handle on Close;
// it may be nil. If any factory call fails, the already-built handles are
// closed and the error is returned.
func NewPool[T any](size int, factory func() (T, error), closeFn func(T) error) (*Pool[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("infer: pool size %d < 1", size)
	}
	p := &Pool[T]{
		handles: make(chan T, size),
		closeFn: closeFn,
		size:    size,
	}
	for i := range size {
		h, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("infer: build handle %d/%d: %w", i+1, size, err)
		}
		p.handles <- h
	}
	return p, nil
}

// Acquire checks a handle out of the pool, blocking until one is free.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	select {
	case h, ok := <-p.handles:
		if !ok {
			return zero, ErrClosed
		}
		return h, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release returns a handle to the pool. Handles acquired before Close
// may still be released; they are closed instead of pooled.
//
// The send happens under the mutex so it cannot race a concurrent Close:
// either Release pools the handle before the channel closes, or it
// observes closed and disposes of the handle itself.
func (p *Pool[T]) Release(h T) {
	p.mu.Lock()
	if !p.closed {
		select {
		case p.handles <- h:
			p.mu.Unlock()
			return
		default:
			// More releases than acquires is a caller bug; drop the
			// surplus handle rather than block.
		}
	}
	p.mu.Unlock()
	if p.closeFn != nil {
		_ = p.closeFn(h)
	}
}

// Size returns the pool capacity.
func (p *Pool[T]) Size() int { return p.size }

// Close drains the pool and closes every pooled handle. Pending Acquire
// calls fail with [ErrClosed]. Calling Close more than once is safe.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	// Closed under the mutex: Release only sends while holding it with
	// closed still false, so no send can hit the closed channel.
	close(p.handles)
	p.mu.Unlock()

	var errs []error
	for h := range p.handles {
		if p.closeFn != nil {
			if err := p.closeFn(h); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
