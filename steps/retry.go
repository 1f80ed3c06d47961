package steps

import (
	"github.com/cenkalti/backoff"
)

// Retry the step with the specified policy whenever it ends with an error.
//
// Every invocation gets its own back off from policy, the next attempt is scheduled on the loop
// after its next back off. An error wrapped with PermanentErr or a back off that stops ends the step for good.
func Retry[T any](policy func() backoff.BackOff, step Step[T]) Step[T] {
	return &retryStep[T]{
		policy: policy,
		step:   step,
	}
}

type retryStep[T any] struct {
	policy func() backoff.BackOff
	step   Step[T]
}

func (r *retryStep[T]) Run(c *Context[T], args ...interface{}) {
	c.mustBind("retry")
	b := r.policy()
	b.Reset()
	r.attempt(c, b, args, 1)
}

func (r *retryStep[T]) attempt(c *Context[T], b backoff.BackOff, args []interface{}, n int) {
	log := c.Logger().WithField("attempt", n)
	ac := &Context[T]{
		Data:    c.Data,
		Err:     c.Err,
		Index:   c.Index,
		IsFirst: c.IsFirst,
		IsLast:  c.IsLast,
		loop:    c.loop,
		log:     log,
	}
	if c.next != nil {
		ac.next = func(ac *Context[T], vals []interface{}) {
			c.Data, c.Err = ac.Data, ac.Err
			c.Next(vals...)
		}
	}
	if c.join != nil {
		ac.join = func(ac *Context[T], vals []interface{}) {
			c.Data = ac.Data
			c.Join(vals...)
		}
	}
	if c.fork != nil {
		ac.fork = func(ac *Context[T], vals []interface{}) {
			c.Data = ac.Data
			c.Fork(vals...)
		}
	}
	ac.end = func(ac *Context[T], err error, vals []interface{}) {
		if err == nil {
			c.Data, c.Err = ac.Data, ac.Err
			c.End(nil, vals...)
			return
		}
		switch e := err.(type) {
		case *PermanentError:
			c.Data = ac.Data
			c.End(e.Err, vals...)
			return
		case *backoff.PermanentError:
			c.Data = ac.Data
			c.End(e.Err, vals...)
			return
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			log.WithError(err).Debug("giving up")
			c.Data = ac.Data
			c.End(err, vals...)
			return
		}
		log.WithError(err).Warnf("step failed, retrying in %s", next)
		c.loop.After(next, func() { r.attempt(c, b, args, n+1) })
	}
	r.step.Run(ac, args...)
}
