package steps

// Recover clears the error slot of the flow when decide reports the error as handled,
// then it runs step. Without a step it advances with its arguments.
//
// Recover is meant for the terminal step of a flow.
func Recover[T any](decide Decider, step Step[T]) Step[T] {
	if isNil(step) {
		step = passThrough[T]()
	}
	return StepFunc[T](func(c *Context[T], args ...interface{}) {
		if c.Err != nil && decide != nil && decide(c.Err) {
			c.Logger().WithError(c.Err).Warn("recovered from error")
			c.Err = nil
		}
		step.Run(c, args...)
	})
}
