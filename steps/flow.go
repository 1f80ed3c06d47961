package steps

import (
	"fmt"

	"github.com/casualjim/tick/eventbus"
	"github.com/casualjim/tick/future"
	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps/internal"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

// NewFlow executes the steps serially, every invocation shares one payload across its steps.
//
// The last step is the terminal step, End from any other step jumps straight to it.
// An empty list of steps passes its arguments through.
func NewFlow[T any](steps []Step[T], opts ...Option) (*Flow[T], error) {
	var err error
	for i, step := range steps {
		if isNil(step) {
			err = multierror.Append(err, illegal(fmt.Sprintf("flow step %d", i), ErrNilStep))
		}
	}
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		steps = []Step[T]{passThrough[T]()}
	}
	return &Flow[T]{
		steps: append([]Step[T](nil), steps...),
		cfg:   configure("flow", opts),
	}, nil
}

// MustFlow is like NewFlow but panics when a step is not callable
func MustFlow[T any](steps []Step[T], opts ...Option) *Flow[T] {
	f, err := NewFlow(steps, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Flow is a reusable serial composition of steps
type Flow[T any] struct {
	steps []Step[T]
	cfg   config
}

// Name of the flow
func (f *Flow[T]) Name() string {
	return f.cfg.name
}

// Bus the flow publishes its done and lifecycle events to
func (f *Flow[T]) Bus() eventbus.EventBus {
	return f.cfg.bus
}

// OnDone calls handler every time an invocation of this flow completes
func (f *Flow[T]) OnDone(handler func(Result[T])) eventbus.EventHandler {
	h := eventbus.Filtered(f.isDone, doneHandler(handler))
	f.cfg.bus.Subscribe(h)
	return h
}

// OnceDone calls handler for the first invocation of this flow that completes
func (f *Flow[T]) OnceDone(handler func(Result[T])) eventbus.EventHandler {
	h := doneHandler(handler)
	f.cfg.bus.SubscribeOnce(f.isDone, h)
	return h
}

func (f *Flow[T]) isDone(evt eventbus.Event) bool {
	if evt.Name != TopicDone {
		return false
	}
	de, ok := evt.Args.(DoneEvent[T])
	return ok && de.source == f
}

func doneHandler[T any](handler func(Result[T])) eventbus.EventHandler {
	return eventbus.Handler(func(evt eventbus.Event) error {
		handler(evt.Args.(DoneEvent[T]).Result)
		return nil
	})
}

// Start invokes the flow on the loop with the payload and arguments.
//
// The returned future resolves when the terminal step advances. A terminal step that
// advances while an error is still set aborts the loop with an UnhandledError.
func (f *Flow[T]) Start(l *loop.Loop, data T, args ...interface{}) *future.Future[Result[T]] {
	res := future.New[Result[T]]()
	l.Post(func() {
		f.invoke(l, f.cfg.log, data, args, func(run *flowRun[T], err error) {
			if err != nil {
				panic(run.unhandled(err))
			}
			res.Resolve(Result[T]{Data: run.data, Args: run.args}, nil)
		})
	})
	return res
}

// Run the flow as a step of an enclosing construct.
// The payload is taken from c, the enclosing step advances when this flow completes.
func (f *Flow[T]) Run(c *Context[T], args ...interface{}) {
	c.mustBind(f.cfg.name)
	f.invoke(c.loop, c.Logger().WithField("flow", f.cfg.name), c.Data, args, func(run *flowRun[T], err error) {
		c.Data = run.data
		if err != nil {
			c.End(err, run.args...)
			return
		}
		c.Next(run.args...)
	})
}

func (f *Flow[T]) invoke(l *loop.Loop, log logrus.FieldLogger, data T, args []interface{}, finish func(*flowRun[T], error)) {
	id := ksuid.New()
	run := &flowRun[T]{
		flow:   f,
		loop:   l,
		id:     id,
		log:    log.WithFields(runFields(id)),
		args:   args,
		data:   data,
		finish: finish,
	}
	run.log.Debugf("starting flow with %d steps", len(f.steps))
	for i := range f.steps {
		run.publish(i, StateWaiting, nil)
	}
	run.tramp.Do(func() { run.exec(0) })
}

// flowRun is the state of a single invocation, owned by the flow while it advances
type flowRun[T any] struct {
	flow   *Flow[T]
	loop   *loop.Loop
	id     ksuid.KSUID
	log    logrus.FieldLogger
	args   []interface{}
	data   T
	err    error
	calls  int
	done   bool
	tramp  internal.Trampoline
	finish func(*flowRun[T], error)
}

func (r *flowRun[T]) terminal() int {
	return len(r.flow.steps) - 1
}

func (r *flowRun[T]) exec(i int) {
	last := r.terminal()
	c := newContext(r.loop, r.log.WithField("step", i), r.data, i, last+1)
	c.Err = r.err
	if i == last {
		c.next = r.terminalNext
		c.end = r.terminalEnd
	} else {
		c.next = func(c *Context[T], vals []interface{}) {
			r.data = c.Data
			r.args = vals
			r.publish(i, StateSuccess, nil)
			r.advance(i + 1)
		}
		c.end = func(c *Context[T], err error, vals []interface{}) {
			r.data = c.Data
			r.args = vals
			if err != nil {
				r.err = StepErr(err, r.flow.cfg.name, i)
				r.publish(i, StateFailed, err)
			} else {
				r.publish(i, StateSuccess, nil)
			}
			for j := i + 1; j < last; j++ {
				r.publish(j, StateSkipped, nil)
			}
			r.advance(last)
		}
	}
	r.publish(i, StateProcessing, nil)
	r.flow.steps[i].Run(c, r.args...)
}

// advance moves to step i, after batchSize synchronous advances it yields to the loop first
func (r *flowRun[T]) advance(i int) {
	r.calls++
	if bs := r.flow.cfg.batchSize; bs > 0 && r.calls == bs {
		r.calls = 0
		r.loop.NextTick(func() {
			r.tramp.Do(func() { r.exec(i) })
		})
		return
	}
	r.tramp.Do(func() { r.exec(i) })
}

func (r *flowRun[T]) terminalNext(c *Context[T], vals []interface{}) {
	r.data = c.Data
	r.args = vals
	r.err = c.Err
	if r.err != nil {
		r.publish(r.terminal(), StateFailed, r.err)
		panic(r.unhandled(r.err))
	}
	r.publish(r.terminal(), StateSuccess, nil)
	r.complete(nil)
}

func (r *flowRun[T]) terminalEnd(c *Context[T], err error, vals []interface{}) {
	r.data = c.Data
	r.args = vals
	if err == nil {
		err = c.Err
	}
	if err != nil {
		r.err = StepErr(err, r.flow.cfg.name, r.terminal())
		r.publish(r.terminal(), StateFailed, err)
		r.complete(r.err)
		return
	}
	r.publish(r.terminal(), StateSuccess, nil)
	r.complete(nil)
}

func (r *flowRun[T]) complete(err error) {
	if r.done {
		return
	}
	r.done = true
	if err == nil {
		r.log.Debug("flow completed")
		r.flow.cfg.bus.Publish(eventbus.Event{
			Name: TopicDone,
			Args: DoneEvent[T]{
				Flow:   r.flow.cfg.name,
				Run:    r.id.String(),
				Result: Result[T]{Data: r.data, Args: r.args},
				source: r.flow,
			},
		})
	} else {
		r.log.WithError(err).Debug("flow ended with an error")
	}
	r.finish(r, err)
}

func (r *flowRun[T]) unhandled(err error) *UnhandledError {
	return &UnhandledError{Flow: r.flow.cfg.name, Run: r.id.String(), Err: err}
}

func (r *flowRun[T]) publish(i int, state State, reason error) {
	if r.flow.cfg.bus.Len() == 0 {
		return
	}
	publishLifecycle(r.flow.cfg.bus, LifecycleEvent{
		Flow:   r.flow.cfg.name,
		Run:    r.id.String(),
		Index:  i,
		State:  state,
		Reason: reason,
	})
}
