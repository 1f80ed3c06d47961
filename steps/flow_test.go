package steps_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/casualjim/tick/eventbus"
	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passThroughSteps(n int) []step {
	var result []step
	for i := 0; i < n; i++ {
		result = append(result, pass())
	}
	return result
}

func TestFlow_CompletesOnce(t *testing.T) {
	for n := 0; n < 6; n++ {
		t.Run(fmt.Sprintf("%d steps", n), func(t *testing.T) {
			l := loop.New()
			f := steps.MustFlow(passThroughSteps(n))

			var done int
			var last steps.Result[*state]
			f.OnDone(func(r steps.Result[*state]) {
				done++
				last = r
			})

			data := &state{}
			res := f.Start(l, data, "a", 1)
			runLoop(t, l)

			assert.Equal(t, 1, done)
			assert.Equal(t, []interface{}{"a", 1}, last.Args)
			assert.Same(t, data, last.Data)

			r, err := res.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []interface{}{"a", 1}, r.Args)
		})
	}
}

func recordingSteps(n int) []step {
	var result []step
	for i := 0; i < n; i++ {
		result = append(result, fn(func(c *steps.Context[*state], args ...interface{}) {
			c.Data.Count++
			c.Data.Seen = append(c.Data.Seen, c.Index)
			c.Next(append(args, c.Index)...)
		}))
	}
	return result
}

func TestFlow_BatchSize(t *testing.T) {
	const n = 7
	cases := []struct {
		Name  string
		Opts  []steps.Option
		Turns int64
	}{
		{"default", nil, 3},
		{"one", []steps.Option{steps.WithBatchSize(1)}, n},
		{"all", []steps.Option{steps.WithBatchSize(n)}, 1},
		{"never", []steps.Option{steps.WithBatchSize(0)}, 1},
	}

	expectedArgs := []interface{}{"start", 0, 1, 2, 3, 4, 5, 6}
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			l := loop.New()
			f := steps.MustFlow(recordingSteps(n), tc.Opts...)

			data := &state{}
			res := f.Start(l, data, "start")
			runLoop(t, l)

			r, err := res.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, expectedArgs, r.Args)
			assert.Equal(t, n, data.Count)
			assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, data.Seen)
			assert.Equal(t, tc.Turns, l.Turns())
		})
	}
}

func TestFlow_EndSkipsToTerminal(t *testing.T) {
	l := loop.New()

	var ran []int
	var terminalErr error
	var terminalArgs []interface{}
	record := fn(func(c *steps.Context[*state], args ...interface{}) {
		ran = append(ran, c.Index)
		c.Next(args...)
	})
	f := steps.MustFlow([]step{
		record,
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			ran = append(ran, c.Index)
			c.End(assert.AnError, "x")
		}),
		record,
		record,
		fn(func(c *steps.Context[*state], args ...interface{}) {
			ran = append(ran, c.Index)
			assert.True(t, c.IsLast)
			terminalErr = c.Err
			terminalArgs = args
			c.Err = nil
			c.Next(args...)
		}),
	}, steps.WithName("skipper"))

	var skipped, failed []int
	f.Bus().Subscribe(
		eventbus.Filtered(steps.LifecycleEventFilter(steps.StateSkipped), eventbus.Handler(func(evt eventbus.Event) error {
			skipped = append(skipped, evt.Args.(steps.LifecycleEvent).Index)
			return nil
		})),
		eventbus.Filtered(steps.LifecycleEventFilter(steps.StateFailed), eventbus.Handler(func(evt eventbus.Event) error {
			failed = append(failed, evt.Args.(steps.LifecycleEvent).Index)
			return nil
		})),
	)

	f.Start(l, &state{})
	runLoop(t, l)

	assert.Equal(t, []int{0, 1, 4}, ran)
	assert.Equal(t, []interface{}{"x"}, terminalArgs)
	var se *steps.StepError
	if assert.True(t, errors.As(terminalErr, &se)) {
		assert.Equal(t, "skipper", se.Construct)
		assert.Equal(t, 1, se.Index)
		assert.Equal(t, assert.AnError, se.Err)
	}
	assert.Equal(t, []int{2, 3}, skipped)
	assert.Equal(t, []int{1}, failed)
}

func TestFlow_EndWithoutError(t *testing.T) {
	l := loop.New()

	var skippedRan bool
	var terminalErr error
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.End(nil, "early")
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			skippedRan = true
			c.Next(args...)
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			terminalErr = c.Err
			c.Next(args...)
		}),
	})
	res := f.Start(l, &state{})
	runLoop(t, l)

	assert.False(t, skippedRan)
	assert.NoError(t, terminalErr)
	r, err := res.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"early"}, r.Args)
}

func TestFlow_LifecycleEvents(t *testing.T) {
	l := loop.New()
	f := steps.MustFlow(passThroughSteps(3), steps.WithName("lifecycle"))

	var states []steps.State
	var runs = map[string]bool{}
	f.Bus().Subscribe(eventbus.Handler(func(evt eventbus.Event) error {
		if lce, ok := evt.Args.(steps.LifecycleEvent); ok {
			assert.Equal(t, "lifecycle", lce.Flow)
			states = append(states, lce.State)
			runs[lce.Run] = true
		}
		return nil
	}))

	f.Start(l, &state{})
	runLoop(t, l)

	assert.Equal(t, []steps.State{
		steps.StateWaiting, steps.StateWaiting, steps.StateWaiting,
		steps.StateProcessing, steps.StateSuccess,
		steps.StateProcessing, steps.StateSuccess,
		steps.StateProcessing, steps.StateSuccess,
	}, states)
	assert.Len(t, runs, 1)
}

func TestFlow_UnhandledError(t *testing.T) {
	l := loop.New()
	f := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.End(assert.AnError)
		}),
		pass(),
	}, steps.WithName("careless"))
	f.Start(l, &state{})

	err := runPanics(t, l)
	require.Error(t, err)
	assert.True(t, steps.IsUnhandled(err))
	assert.True(t, errors.Is(err, assert.AnError))
	var ue *steps.UnhandledError
	if assert.True(t, errors.As(err, &ue)) {
		assert.Equal(t, "careless", ue.Flow)
		assert.NotEmpty(t, ue.Run)
	}
}

func TestFlow_TerminalEndIsUnhandled(t *testing.T) {
	l := loop.New()
	f := steps.MustFlow([]step{
		pass(),
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.End(assert.AnError)
		}),
	})
	f.Start(l, &state{})

	err := runPanics(t, l)
	assert.True(t, steps.IsUnhandled(err))
	assert.True(t, errors.Is(err, assert.AnError))
}

func TestFlow_Nested(t *testing.T) {
	l := loop.New()

	inner := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], args ...interface{}) {
			c.Data.Count += 10
			c.Next(append(args, "inner")...)
		}),
		pass(),
	}, steps.WithName("inner"))

	var got []interface{}
	outer := steps.MustFlow([]step{
		inner,
		fn(func(c *steps.Context[*state], args ...interface{}) {
			c.Data.Count++
			got = args
			c.Next(args...)
		}),
	}, steps.WithName("outer"))

	var innerDone int
	inner.OnDone(func(steps.Result[*state]) { innerDone++ })

	data := &state{}
	outer.Start(l, data, "outer")
	runLoop(t, l)

	assert.Equal(t, []interface{}{"outer", "inner"}, got)
	assert.Equal(t, 11, data.Count)
	assert.Equal(t, 1, innerDone)
}

func TestFlow_NestedError(t *testing.T) {
	l := loop.New()

	inner := steps.MustFlow([]step{
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.End(assert.AnError)
		}),
		fn(func(c *steps.Context[*state], _ ...interface{}) {
			c.End(nil)
		}),
	}, steps.WithName("inner"))

	var midRan bool
	var terminalErr error
	outer := steps.MustFlow([]step{
		inner,
		fn(func(c *steps.Context[*state], args ...interface{}) {
			midRan = true
			c.Next(args...)
		}),
		fn(func(c *steps.Context[*state], args ...interface{}) {
			terminalErr = c.Err
			c.Err = nil
			c.Next()
		}),
	}, steps.WithName("outer"))

	outer.Start(l, &state{})
	runLoop(t, l)

	assert.False(t, midRan)
	var se *steps.StepError
	if assert.True(t, errors.As(terminalErr, &se)) {
		assert.Equal(t, "inner", se.Construct)
		assert.Equal(t, 0, se.Index)
		assert.Equal(t, assert.AnError, se.Err)
	}
}

func TestFlow_Reusable(t *testing.T) {
	l := loop.New()
	f := steps.MustFlow(recordingSteps(2))

	var once, every int
	f.OnceDone(func(steps.Result[*state]) { once++ })
	f.OnDone(func(steps.Result[*state]) { every++ })

	d1, d2 := &state{}, &state{}
	r1 := f.Start(l, d1, "first")
	r2 := f.Start(l, d2, "second")
	runLoop(t, l)

	assert.Equal(t, 1, once)
	assert.Equal(t, 2, every)

	v1, err := r1.Get(context.Background())
	require.NoError(t, err)
	v2, err := r2.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"first", 0, 1}, v1.Args)
	assert.Equal(t, []interface{}{"second", 0, 1}, v2.Args)
	assert.Equal(t, 2, d1.Count)
	assert.Equal(t, 2, d2.Count)
}

func TestFlow_SharedBus(t *testing.T) {
	l := loop.New()
	bus := eventbus.New(nil)
	f1 := steps.MustFlow(passThroughSteps(1), steps.WithBus(bus))
	f2 := steps.MustFlow(passThroughSteps(1), steps.WithBus(bus))

	var d1, d2 int
	f1.OnDone(func(steps.Result[*state]) { d1++ })
	f2.OnDone(func(steps.Result[*state]) { d2++ })

	f1.Start(l, &state{})
	f1.Start(l, &state{})
	f2.Start(l, &state{})
	runLoop(t, l)

	assert.Equal(t, 2, d1)
	assert.Equal(t, 1, d2)
}

func TestNewFlow_NilStep(t *testing.T) {
	_, err := steps.NewFlow([]step{pass(), nil, fn(nil)})
	require.Error(t, err)
	assert.True(t, steps.IsIllegalUsage(err))

	merr, ok := err.(*multierror.Error)
	if assert.True(t, ok) {
		assert.Len(t, merr.Errors, 2)
		for _, e := range merr.Errors {
			assert.True(t, errors.Is(e, steps.ErrNilStep))
		}
	}

	assert.Panics(t, func() { steps.MustFlow([]step{nil}) })
}

func TestFlow_LongChainWithoutYield(t *testing.T) {
	const n = 100000
	l := loop.New()
	f := steps.MustFlow(passThroughSteps(n), steps.WithBatchSize(0))

	res := f.Start(l, &state{}, "deep")
	runLoop(t, l)

	r, err := res.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"deep"}, r.Args)
	assert.EqualValues(t, 1, l.Turns())
}
