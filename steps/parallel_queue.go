package steps

import (
	"github.com/casualjim/tick/future"
	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps/internal"
	"github.com/sirupsen/logrus"
)

type entryKind uint8

const (
	entryValue entryKind = iota
	entryEnd
)

type entry struct {
	kind  entryKind
	index int
	value interface{}
}

// NewParallelQueue creates a streaming queue that runs the worker concurrently for pushed values,
// every drain pass launches at most batch size workers.
//
// Like Queue it belongs to its loop.
func NewParallelQueue[T any](l *loop.Loop, data T, worker Step[T], end QueueHandler[T], opts ...Option) (*ParallelQueue[T], error) {
	if l == nil {
		return nil, illegal("parallel queue", ErrNotInFlow)
	}
	if isNil(worker) {
		return nil, illegal("parallel queue", ErrNilStep)
	}
	cfg := configure("parallel queue", opts)
	return &ParallelQueue[T]{
		cfg:     cfg,
		loop:    l,
		log:     cfg.log,
		worker:  worker,
		end:     end,
		data:    data,
		results: []interface{}{},
		done:    future.New[Result[T]](),
	}, nil
}

// MustParallelQueue is like NewParallelQueue but panics when the queue can't be created
func MustParallelQueue[T any](l *loop.Loop, data T, worker Step[T], end QueueHandler[T], opts ...Option) *ParallelQueue[T] {
	q, err := NewParallelQueue(l, data, worker, end, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// ParallelQueue is the concurrent streaming queue.
//
// Workers report with Join. A worker that calls End cancels the queue,
// the handler runs right away with that error.
type ParallelQueue[T any] struct {
	cfg    config
	loop   *loop.Loop
	log    logrus.FieldLogger
	worker Step[T]
	end    QueueHandler[T]
	done   *future.Future[Result[T]]

	data    T
	entries []entry
	results []interface{}
	// backlog counts the entries that were pushed and not joined yet, the end of stream included
	backlog int

	completed bool
	scheduled bool
	ending    bool
	settling  bool
	canceled  bool
	finished  bool
}

// Push a value to the queue
func (q *ParallelQueue[T]) Push(value interface{}) error {
	if q.completed {
		return illegal("push", ErrQueueCompleted)
	}
	if q.finished {
		return nil
	}
	q.entries = append(q.entries, entry{kind: entryValue, index: len(q.results), value: value})
	q.results = append(q.results, nil)
	q.backlog++
	q.wake()
	return nil
}

// Complete enqueues the end of stream, the handler runs once all workers joined
func (q *ParallelQueue[T]) Complete() error {
	if q.completed {
		return illegal("complete", ErrQueueCompleted)
	}
	q.completed = true
	q.entries = append(q.entries, entry{kind: entryEnd})
	q.backlog++
	q.wake()
	return nil
}

// Backlog returns the number of outstanding entries
func (q *ParallelQueue[T]) Backlog() int {
	return q.backlog
}

// Done resolves when the queue handler has run
func (q *ParallelQueue[T]) Done() *future.Future[Result[T]] {
	return q.done
}

func (q *ParallelQueue[T]) wake() {
	if q.scheduled || q.finished {
		return
	}
	q.scheduled = true
	q.loop.NextTick(q.drain)
}

func (q *ParallelQueue[T]) drain() {
	q.scheduled = false
	launched := 0
	for len(q.entries) > 0 && !q.canceled && !q.finished {
		if q.cfg.batchSize > 0 && launched == q.cfg.batchSize {
			q.wake()
			return
		}
		e := q.entries[0]
		q.entries = q.entries[1:]
		if e.kind == entryEnd {
			q.ending = true
			q.settle()
			return
		}
		launched++
		q.launch(e)
	}
}

func (q *ParallelQueue[T]) launch(e entry) {
	c := newContext(q.loop, q.log.WithField("index", e.index), q.data, e.index, len(q.results))
	c.IsLast = q.completed && e.index == len(q.results)-1
	c.join = func(c *Context[T], vals []interface{}) {
		if q.finished {
			return
		}
		q.results[e.index] = internal.Collapse(vals)
		q.data = c.Data
		q.backlog--
		if q.ending {
			q.settle()
		}
	}
	c.end = func(c *Context[T], err error, _ []interface{}) {
		if q.finished {
			return
		}
		q.canceled = true
		q.data = c.Data
		q.finish(err, nil)
	}
	q.worker.Run(c, e.value)
}

func (q *ParallelQueue[T]) settle() {
	if q.backlog != 1 || q.settling {
		return
	}
	q.settling = true
	q.loop.NextTick(func() { q.finish(nil, q.results) })
}

func (q *ParallelQueue[T]) finish(err error, results []interface{}) {
	if q.finished {
		return
	}
	q.finished = true
	q.entries = nil
	if err != nil {
		q.log.WithError(err).Debug("parallel queue canceled")
	} else {
		q.log.Debugf("parallel queue completed with %d results", len(results))
	}
	if q.end != nil {
		q.end(q.data, err, results)
	}
	q.done.Resolve(Result[T]{Data: q.data, Args: results}, err)
}
