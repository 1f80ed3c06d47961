package steps

import (
	"fmt"

	"github.com/casualjim/tick/steps/internal"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// NewParallel runs the tasks concurrently on the loop, at most batch size tasks are launched per turn.
//
// The fork step distributes its values over the tasks with Fork, task i receives value i.
// A nil fork forks without values.
func NewParallel[T any](fork Step[T], tasks []Step[T], opts ...Option) (*Parallel[T], error) {
	var err error
	for i, task := range tasks {
		if isNil(task) {
			err = multierror.Append(err, illegal(fmt.Sprintf("parallel task %d", i), ErrNilStep))
		}
	}
	if err != nil {
		return nil, err
	}
	if isNil(fork) {
		fork = autoFork[T]()
	}
	return &Parallel[T]{
		fork:  fork,
		tasks: append([]Step[T](nil), tasks...),
		cfg:   configure("parallel", opts),
	}, nil
}

// MustParallel is like NewParallel but panics when a task is not callable
func MustParallel[T any](fork Step[T], tasks []Step[T], opts ...Option) *Parallel[T] {
	p, err := NewParallel(fork, tasks, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Parallel is the fan-out/fan-in executor.
//
// Tasks report with Join, or Next which is the same thing in a task.
// The enclosing step advances with the results ordered by task index.
// A task that calls End cancels the tasks that were not launched yet, tasks in flight are not recalled
// and what they report afterwards is ignored.
//
// Every task writes its Data back on Join, the last write wins.
type Parallel[T any] struct {
	fork  Step[T]
	tasks []Step[T]
	cfg   config
}

// Run the fork step and then the tasks, c must belong to a flow
func (p *Parallel[T]) Run(c *Context[T], args ...interface{}) {
	c.mustBind(p.cfg.name)
	p.start(c, p.fork, p.tasks, args)
}

func (p *Parallel[T]) start(c *Context[T], fork Step[T], tasks []Step[T], args []interface{}) {
	run := &parallelRun[T]{
		cfg:     p.cfg,
		parent:  c,
		log:     c.Logger().WithField("parallel", p.cfg.name),
		tasks:   tasks,
		data:    c.Data,
		results: make([]interface{}, len(tasks)),
	}
	fc := newContext(c.loop, run.log, c.Data, 0, 1)
	fc.fork = func(fc *Context[T], vals []interface{}) {
		run.data = fc.Data
		run.inputs = internal.Spread(vals)
		c.loop.NextTick(run.round)
	}
	fc.end = func(fc *Context[T], err error, vals []interface{}) {
		c.Data = fc.Data
		c.End(err, vals...)
	}
	fork.Run(fc, args...)
}

type parallelRun[T any] struct {
	cfg     config
	parent  *Context[T]
	log     logrus.FieldLogger
	tasks   []Step[T]
	inputs  []interface{}
	data    T
	results []interface{}

	pos         int
	outstanding int
	canceled    bool
	finished    bool
}

func (r *parallelRun[T]) round() {
	if r.canceled || r.finished {
		return
	}
	if len(r.tasks) == 0 {
		r.finish()
		return
	}
	stop := r.cfg.chunk(r.pos, len(r.tasks))
	r.log.Debugf("launching tasks %d to %d", r.pos, stop-1)
	for i := r.pos; i < stop && !r.canceled; i++ {
		r.pos = i + 1
		r.launch(i)
	}
	if !r.canceled && r.pos < len(r.tasks) {
		r.parent.loop.NextTick(r.round)
	}
}

func (r *parallelRun[T]) launch(i int) {
	tc := newContext(r.parent.loop, r.log.WithField("task", i), r.data, i, len(r.tasks))
	tc.join = func(tc *Context[T], vals []interface{}) {
		if r.finished {
			return
		}
		r.results[i] = internal.Collapse(vals)
		r.data = tc.Data
		r.outstanding--
		if r.outstanding == 0 && r.pos >= len(r.tasks) {
			r.parent.loop.NextTick(r.finish)
		}
	}
	tc.end = func(tc *Context[T], err error, vals []interface{}) {
		if r.finished {
			return
		}
		r.canceled = true
		r.finished = true
		r.log.Debugf("task %d ended, canceling", i)
		r.parent.Data = tc.Data
		r.parent.End(err, vals...)
	}

	r.outstanding++
	if i < len(r.inputs) {
		r.tasks[i].Run(tc, r.inputs[i])
		return
	}
	r.tasks[i].Run(tc)
}

func (r *parallelRun[T]) finish() {
	if r.finished {
		return
	}
	r.finished = true
	r.parent.Data = r.data
	r.parent.Next(r.results)
}

// NewParallelEach runs the worker concurrently for every element of the forwarded collection
func NewParallelEach[T any](worker Step[T], opts ...Option) (*ParallelEach[T], error) {
	if isNil(worker) {
		return nil, illegal("parallel each", ErrNilStep)
	}
	return &ParallelEach[T]{
		worker: worker,
		exec:   &Parallel[T]{fork: autoFork[T](), cfg: configure("parallel each", opts)},
	}, nil
}

// MustParallelEach is like NewParallelEach but panics when the worker is not callable
func MustParallelEach[T any](worker Step[T], opts ...Option) *ParallelEach[T] {
	p, err := NewParallelEach(worker, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParallelEach is the parallel iterator, the results are ordered by element index
type ParallelEach[T any] struct {
	worker Step[T]
	exec   *Parallel[T]
}

// Run the worker for each element in args, c must belong to a flow
func (p *ParallelEach[T]) Run(c *Context[T], args ...interface{}) {
	c.mustBind(p.exec.cfg.name)
	items := internal.Spread(args)
	tasks := make([]Step[T], len(items))
	for i, item := range items {
		item := item
		tasks[i] = StepFunc[T](func(tc *Context[T], _ ...interface{}) {
			p.worker.Run(tc, item)
		})
	}
	p.exec.start(c, p.exec.fork, tasks, nil)
}
