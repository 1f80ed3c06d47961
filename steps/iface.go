package steps

// A Step encapsulates a unit of work.
//
// A step finishes by calling Next, End or Join on the context it gets,
// either right away or from a later turn of the loop.
type Step[T any] interface {
	Run(c *Context[T], args ...interface{})
}

// StepFunc adapts a plain function into a step
type StepFunc[T any] func(c *Context[T], args ...interface{})

// Run the function
func (f StepFunc[T]) Run(c *Context[T], args ...interface{}) {
	f(c, args...)
}

// A Decider determines whether an error counts as handled
type Decider func(error) bool

// Result is what a flow or a queue completes with
type Result[T any] struct {
	// Data is the final shared payload
	Data T
	// Args are the values forwarded by the terminal step, for queues these are the ordered results
	Args []interface{}
}

func passThrough[T any]() Step[T] {
	return StepFunc[T](func(c *Context[T], args ...interface{}) {
		c.Next(args...)
	})
}

func autoFork[T any]() Step[T] {
	return StepFunc[T](func(c *Context[T], _ ...interface{}) {
		c.Fork()
	})
}

func isNil[T any](step Step[T]) bool {
	if step == nil {
		return true
	}
	if fn, ok := step.(StepFunc[T]); ok {
		return fn == nil
	}
	return false
}
