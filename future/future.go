package future

import (
	"context"
	"sync"
)

// Future represents a value that will become available in the future.
//
// A future is resolved exactly once, either by Resolve or by the function passed to Do.
// Callbacks registered with Then run on the goroutine that resolves the future.
type Future[V any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	val      V
	err      error
	thens    []func(V, error)
	cancel   context.CancelFunc
}

// New creates a pending future, to be completed with Resolve
func New[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Do creates a future that executes the function in a go routine
func Do[V any](fn func(context.Context) (V, error)) *Future[V] {
	return DoWithContext(context.Background(), fn)
}

// DoWithContext creates a future that executes the function in a go routine.
// The context passed into the function is canceled by Cancel, the future then resolves
// with the cancellation error even when the function does not observe its context.
func DoWithContext[V any](ctx context.Context, fn func(context.Context) (V, error)) *Future[V] {
	inner, cancel := context.WithCancel(ctx)
	f := New[V]()
	f.cancel = cancel

	go func() {
		v, err := fn(inner)
		f.Resolve(v, err)
		cancel()
	}()
	go func() {
		<-inner.Done()
		var zero V
		f.Resolve(zero, inner.Err())
	}()
	return f
}

// Resolve completes the future, it returns false when the future was already resolved.
func (f *Future[V]) Resolve(v V, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.val, f.err = v, err
	thens := f.thens
	f.thens = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range thens {
		fn(v, err)
	}
	return true
}

// Then registers a callback for the resolved value.
// When the future is already resolved the callback runs immediately.
func (f *Future[V]) Then(fn func(V, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.thens = append(f.thens, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Get blocks until the future is resolved or the context is done
func (f *Future[V]) Get(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Done is closed once the future is resolved
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Resolved returns true when a value or error is available
func (f *Future[V]) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Cancel the function backing this future, a no-op for futures created with New
func (f *Future[V]) Cancel() {
	if f.cancel == nil {
		return
	}
	f.cancel()
}
