package steps

import (
	"context"
	"time"

	"github.com/casualjim/tick"
	"github.com/casualjim/tick/loop"
	"github.com/sirupsen/logrus"
)

// Context is handed to a step for a single invocation.
//
// The advancing methods (Next, End, Callback, Join and Fork) take effect once,
// every later call on the same context is ignored.
//
// Data is the shared payload. A step may change it freely while it owns the turn,
// the change is written back into the enclosing construct when the step advances.
// Concurrent tasks of a fan-out each write back on Join, the last write wins.
type Context[T any] struct {
	Data T
	// Err is the error slot of the flow. Only a terminal step sees it set,
	// setting it to nil marks the error as handled.
	Err error

	// Index of the element or task, for flows this is the index of the step
	Index   int
	IsFirst bool
	IsLast  bool

	loop *loop.Loop
	log  logrus.FieldLogger
	used bool

	next func(*Context[T], []interface{})
	end  func(*Context[T], error, []interface{})
	join func(*Context[T], []interface{})
	fork func(*Context[T], []interface{})
}

// Next advances to the next step with the provided values as its arguments.
// In fan-out contexts Next is the same as Join.
func (c *Context[T]) Next(vals ...interface{}) {
	if c.used {
		return
	}
	if c.next == nil {
		if c.join != nil {
			c.Join(vals...)
			return
		}
		panic(illegal("next", ErrNotAvailable))
	}
	c.used = true
	c.next(c, vals)
}

// End skips what remains and jumps to the terminal handler with err
func (c *Context[T]) End(err error, vals ...interface{}) {
	if c.used {
		return
	}
	if c.end == nil {
		panic(illegal("end", ErrNotAvailable))
	}
	c.used = true
	c.end(c, err, vals)
}

// Callback ends with err when it is not nil, otherwise it advances with the values
func (c *Context[T]) Callback(err error, vals ...interface{}) {
	if err != nil {
		c.End(err, vals...)
		return
	}
	c.Next(vals...)
}

// Join reports the result of a fan-out task
func (c *Context[T]) Join(vals ...interface{}) {
	if c.used {
		return
	}
	if c.join == nil {
		panic(illegal("join", ErrNotAvailable))
	}
	c.used = true
	c.join(c, vals)
}

// Fork establishes the inputs that are distributed over the tasks of a fan-out, task i gets value i
func (c *Context[T]) Fork(vals ...interface{}) {
	if c.used {
		return
	}
	if c.fork == nil {
		panic(illegal("fork", ErrNotAvailable))
	}
	c.used = true
	c.fork(c, vals)
}

// Loop the step is running on
func (c *Context[T]) Loop() *loop.Loop {
	return c.loop
}

// Logger for use in the step
func (c *Context[T]) Logger() logrus.FieldLogger {
	if c.log == nil {
		return tick.NopLogger
	}
	return c.log
}

// Async runs blocking work on a goroutine and resumes the step with Callback on the loop
func (c *Context[T]) Async(ctx context.Context, work func(context.Context) ([]interface{}, error)) {
	c.mustBind("async")
	c.loop.Go(ctx, work, func(vals []interface{}, err error) {
		c.Callback(err, vals...)
	})
}

// After advances with Next once d has elapsed
func (c *Context[T]) After(d time.Duration, vals ...interface{}) {
	c.mustBind("after")
	c.loop.After(d, func() {
		c.Next(vals...)
	})
}

func (c *Context[T]) mustBind(op string) {
	if c == nil || c.loop == nil {
		panic(illegal(op, ErrNotInFlow))
	}
}

func newContext[T any](l *loop.Loop, log logrus.FieldLogger, data T, index, total int) *Context[T] {
	return &Context[T]{
		Data:    data,
		Index:   index,
		IsFirst: index == 0,
		IsLast:  index == total-1,
		loop:    l,
		log:     log,
	}
}
