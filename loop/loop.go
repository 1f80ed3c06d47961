package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/tick"
	"github.com/casualjim/tick/future"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrRunning is returned when Run is called on a loop that is already running
var ErrRunning = errors.New("loop is already running")

// Option represents a configuration option for a loop
type Option func(*Loop)

// WithLogger logs loop activity to the provided logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) { l.log = log }
}

// WithMetrics registers the loop.turns and loop.tasks counters in the provided registry
func WithMetrics(registry metrics.Registry) Option {
	return func(l *Loop) { l.registry = registry }
}

// WithAsyncLimit bounds the number of goroutines started by Go that run at the same time
func WithAsyncLimit(n int64) Option {
	return func(l *Loop) {
		if n > 0 {
			l.sem = semaphore.NewWeighted(n)
		}
	}
}

// Loop is a cooperative single-threaded scheduler
type Loop struct {
	mu      sync.Mutex
	pending []func()
	refs    int
	wake    chan struct{}
	running int32

	log      logrus.FieldLogger
	registry metrics.Registry
	turns    metrics.Counter
	tasks    metrics.Counter
	sem      *semaphore.Weighted
}

// New creates a loop
func New(opts ...Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		log:  tick.NopLogger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.registry != nil {
		l.turns = metrics.GetOrRegisterCounter("loop.turns", l.registry)
		l.tasks = metrics.GetOrRegisterCounter("loop.tasks", l.registry)
	} else {
		l.turns = metrics.NewCounter()
		l.tasks = metrics.NewCounter()
	}
	return l
}

// NextTick schedules fn for the next turn of the loop
func (l *Loop) NextTick(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	l.signal()
}

// Post hands fn to the loop from any goroutine, it runs on the next turn
func (l *Loop) Post(fn func()) {
	l.NextTick(fn)
}

// Ref keeps the loop running until a matching Unref, even when no work is queued
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a Ref
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.mu.Unlock()
	l.signal()
}

// After runs fn on the loop once d has elapsed. The returned function stops the timer,
// it reports false when fn has already been handed to the loop.
func (l *Loop) After(d time.Duration, fn func()) (stop func() bool) {
	l.Ref()
	t := time.AfterFunc(d, func() {
		l.NextTick(fn)
		l.Unref()
	})
	return func() bool {
		if t.Stop() {
			l.Unref()
			return true
		}
		return false
	}
}

// Go runs work on its own goroutine and delivers the outcome to done on the loop.
func (l *Loop) Go(ctx context.Context, work func(context.Context) ([]interface{}, error), done func([]interface{}, error)) {
	l.Ref()
	ctx = tick.SetLogger(ctx, l.log)
	f := future.DoWithContext(ctx, func(ctx context.Context) ([]interface{}, error) {
		if l.sem != nil {
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer l.sem.Release(1)
		}
		return work(ctx)
	})
	f.Then(func(vals []interface{}, err error) {
		l.NextTick(func() { done(vals, err) })
		l.Unref()
	})
}

// Turns returns the number of turns processed so far
func (l *Loop) Turns() int64 {
	return l.turns.Count()
}

// Run processes turns until there is no more work and no refs are held,
// or until the context is done.
//
// A panic raised by a task aborts the loop, it is logged and raised again.
func (l *Loop) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return ErrRunning
	}
	defer atomic.StoreInt32(&l.running, 0)
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Errorln("loop aborted")
			panic(r)
		}
	}()

	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		refs := l.refs
		l.mu.Unlock()

		if len(batch) == 0 {
			if refs == 0 {
				l.log.Debugf("loop idle after %d turns", l.turns.Count())
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
			}
			continue
		}

		l.turns.Inc(1)
		for _, fn := range batch {
			l.tasks.Inc(1)
			fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
