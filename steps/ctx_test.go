package steps_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	Seen  []int
	Count int
}

type step = steps.Step[*state]

type fn = steps.StepFunc[*state]

func pass() step {
	return fn(func(c *steps.Context[*state], args ...interface{}) {
		c.Next(args...)
	})
}

func runLoop(t testing.TB, l *loop.Loop) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx))
}

// runPanics runs the loop and returns the error it panicked with
func runPanics(t testing.TB, l *loop.Loop) (perr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected the loop to panic")
		perr, _ = r.(error)
	}()
	_ = l.Run(ctx)
	return nil
}

func assertIllegal(t testing.TB, target error, call func()) {
	defer func() {
		err, _ := recover().(error)
		if assert.Error(t, err) {
			assert.True(t, steps.IsIllegalUsage(err), "expected an illegal usage error, got %v", err)
			assert.True(t, errors.Is(err, target))
		}
	}()
	call()
}

func TestContext_NextTwice(t *testing.T) {
	l := loop.New()

	var calls int
	var got []interface{}
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.Next(1)
			c.Next(2)
			c.End(assert.AnError)
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			calls++
			got = args
			c.Next(args...)
		}),
	})
	res := f.Start(l, &state{})
	runLoop(t, l)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []interface{}{1}, got)
	r, err := res.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1}, r.Args)
}

func TestContext_Callback(t *testing.T) {
	l := loop.New()

	var got []interface{}
	var gotErr error
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.Callback(nil, 5)
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			got = args
			c.Callback(assert.AnError)
		}),
		pass(),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			gotErr = c.Err
			c.Err = nil
			c.Next()
		}),
	})
	f.Start(l, &state{})
	runLoop(t, l)

	assert.Equal(t, []interface{}{5}, got)
	assert.True(t, errors.Is(gotErr, assert.AnError))
}

func TestContext_IllegalUsage(t *testing.T) {
	l := loop.New()

	var ran bool
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], args ...interface{}) {
			assertIllegal(t, steps.ErrNotAvailable, func() { c.Join(1) })
			assertIllegal(t, steps.ErrNotAvailable, func() { c.Fork(1) })
			c.Next(args...)
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			ran = true
			c.Next(args...)
		}),
	})
	f.Start(l, &state{})
	runLoop(t, l)
	assert.True(t, ran)
}

func TestContext_NotInFlow(t *testing.T) {
	each := steps.MustEach[*state](pass())
	assertIllegal(t, steps.ErrNotInFlow, func() { each.Run(&steps.Context[*state]{}, 1, 2) })

	par := steps.MustParallel[*state](nil, []step{pass()})
	assertIllegal(t, steps.ErrNotInFlow, func() { par.Run(&steps.Context[*state]{}) })

	pe := steps.MustParallelEach[*state](pass())
	assertIllegal(t, steps.ErrNotInFlow, func() { pe.Run(nil, 1) })

	f := steps.MustFlow([]step{pass()})
	assertIllegal(t, steps.ErrNotInFlow, func() { f.Run(&steps.Context[*state]{}) })

	c := &steps.Context[*state]{}
	assertIllegal(t, steps.ErrNotInFlow, func() { c.After(time.Millisecond) })
	assertIllegal(t, steps.ErrNotInFlow, func() {
		c.Async(context.Background(), func(context.Context) ([]interface{}, error) { return nil, nil })
	})
	assert.NotNil(t, c.Logger())
	assert.Nil(t, c.Loop())
}

func TestContext_Async(t *testing.T) {
	l := loop.New()

	var got []interface{}
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.Async(context.Background(), func(context.Context) ([]interface{}, error) {
				time.Sleep(5 * time.Millisecond)
				return []interface{}{42, "answer"}, nil
			})
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			got = args
			c.Next()
		}),
	})
	f.Start(l, &state{})
	runLoop(t, l)
	assert.Equal(t, []interface{}{42, "answer"}, got)
}

func TestContext_AsyncError(t *testing.T) {
	l := loop.New()

	var gotErr error
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.Async(context.Background(), func(context.Context) ([]interface{}, error) {
				return nil, assert.AnError
			})
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			gotErr = c.Err
			c.Err = nil
			c.Next()
		}),
	})
	f.Start(l, &state{})
	runLoop(t, l)
	assert.True(t, errors.Is(gotErr, assert.AnError))
}

func TestContext_After(t *testing.T) {
	l := loop.New()

	start := time.Now()
	var got []interface{}
	var elapsed time.Duration
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.After(20*time.Millisecond, "late")
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			elapsed = time.Since(start)
			got = args
			c.Next()
		}),
	})
	f.Start(l, &state{})
	runLoop(t, l)
	assert.Equal(t, []interface{}{"late"}, got)
	assert.True(t, elapsed >= 20*time.Millisecond)
}
