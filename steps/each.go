package steps

import (
	"github.com/casualjim/tick/steps/internal"
	"github.com/sirupsen/logrus"
)

// NewEach applies the worker to every element of the forwarded collection, one element at a time.
//
// The collection is either a single slice argument or the variadic arguments.
// Results are ordered by element index.
func NewEach[T any](worker Step[T], opts ...Option) (*Each[T], error) {
	if isNil(worker) {
		return nil, illegal("each", ErrNilStep)
	}
	return &Each[T]{worker: worker, cfg: configure("each", opts)}, nil
}

// MustEach is like NewEach but panics when the worker is not callable
func MustEach[T any](worker Step[T], opts ...Option) *Each[T] {
	e, err := NewEach(worker, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Each is the serial iterator
type Each[T any] struct {
	worker Step[T]
	cfg    config
}

// Run the worker over the collection in args, c must belong to a flow
func (e *Each[T]) Run(c *Context[T], args ...interface{}) {
	c.mustBind(e.cfg.name)
	it := &eachRun[T]{
		each:   e,
		parent: c,
		log:    c.Logger().WithField("each", e.cfg.name),
		data:   c.Data,
		items:  internal.Spread(args),
	}
	it.results = make([]interface{}, len(it.items))
	it.log.Debugf("iterating over %d items", len(it.items))
	it.tramp.Do(func() { it.chunk(0) })
}

type eachRun[T any] struct {
	each    *Each[T]
	parent  *Context[T]
	log     logrus.FieldLogger
	data    T
	items   []interface{}
	results []interface{}
	stop    int
	tramp   internal.Trampoline
}

func (it *eachRun[T]) chunk(pos int) {
	if pos >= len(it.items) {
		it.parent.Data = it.data
		it.parent.Next(it.results)
		return
	}
	it.stop = it.each.cfg.chunk(pos, len(it.items))
	it.exec(pos)
}

func (it *eachRun[T]) exec(i int) {
	c := newContext(it.parent.loop, it.log.WithField("index", i), it.data, i, len(it.items))
	c.next = func(c *Context[T], vals []interface{}) {
		it.data = c.Data
		it.results[i] = internal.Collapse(vals)
		n := i + 1
		if n < it.stop {
			it.tramp.Do(func() { it.exec(n) })
			return
		}
		if n >= len(it.items) {
			it.tramp.Do(func() { it.chunk(n) })
			return
		}
		it.parent.loop.NextTick(func() {
			it.tramp.Do(func() { it.chunk(n) })
		})
	}
	c.end = func(c *Context[T], err error, vals []interface{}) {
		it.data = c.Data
		it.parent.Data = it.data
		it.parent.End(err, vals...)
	}
	it.each.worker.Run(c, it.items[i])
}
