package steps

import (
	"github.com/casualjim/tick/future"
	"github.com/casualjim/tick/loop"
	"github.com/casualjim/tick/steps/internal"
	"github.com/sirupsen/logrus"
)

// QueueHandler receives the outcome of a queue.
// Results are ordered by push order, they are nil when a worker ended the queue.
type QueueHandler[T any] func(data T, err error, results []interface{})

// Resume creates a queue handler that resumes the step that owns c once the queue is done
func Resume[T any](c *Context[T]) QueueHandler[T] {
	return func(data T, err error, results []interface{}) {
		c.Data = data
		c.Callback(err, results)
	}
}

// NewQueue creates a streaming queue that runs the worker over pushed values one at a time.
//
// A queue belongs to its loop: Push and Complete must be called from the loop,
// other goroutines hand values over with Loop.Post.
func NewQueue[T any](l *loop.Loop, data T, worker Step[T], end QueueHandler[T], opts ...Option) (*Queue[T], error) {
	if l == nil {
		return nil, illegal("queue", ErrNotInFlow)
	}
	if isNil(worker) {
		return nil, illegal("queue", ErrNilStep)
	}
	cfg := configure("queue", opts)
	return &Queue[T]{
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

// MustQueue is like NewQueue but panics when the queue can't be created
func MustQueue[T any](l *loop.Loop, data T, worker Step[T], end QueueHandler[T], opts ...Option) *Queue[T] {
	q, err := NewQueue(l, data, worker, end, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// Queue is the serial streaming queue
type Queue[T any] struct {
	cfg    config
	loop   *loop.Loop
	log    logrus.FieldLogger
	worker Step[T]
	end    QueueHandler[T]
	done   *future.Future[Result[T]]

	data    T
	pending []interface{}
	results []interface{}
	next    int
	tramp   internal.Trampoline

	completed bool
	draining  bool
	finished  bool
}

// Push a value to the queue, the first push starts draining on the next turn
func (q *Queue[T]) Push(value interface{}) error {
	if q.completed {
		return illegal("push", ErrQueueCompleted)
	}
	if q.finished {
		return nil
	}
	q.pending = append(q.pending, value)
	q.results = append(q.results, nil)
	q.wake()
	return nil
}

// Complete signals no more values will be pushed.
// The handler runs once every pushed value has been processed.
func (q *Queue[T]) Complete() error {
	if q.completed {
		return illegal("complete", ErrQueueCompleted)
	}
	q.completed = true
	q.wake()
	return nil
}

// Done resolves when the queue handler has run
func (q *Queue[T]) Done() *future.Future[Result[T]] {
	return q.done
}

func (q *Queue[T]) wake() {
	if q.draining || q.finished {
		return
	}
	q.draining = true
	q.loop.NextTick(q.drain)
}

func (q *Queue[T]) drain() {
	if q.finished {
		return
	}
	if len(q.pending) == 0 {
		if q.completed {
			q.finish(nil, q.results)
			return
		}
		// the next push resumes the drain
		q.draining = false
		return
	}

	n := q.cfg.chunk(0, len(q.pending))
	batch := q.pending[:n:n]
	q.pending = q.pending[n:]
	base := q.next
	q.next += n
	q.log.Debugf("draining %d values", n)
	q.tramp.Do(func() { q.exec(batch, base, 0) })
}

func (q *Queue[T]) exec(batch []interface{}, base, j int) {
	idx := base + j
	c := newContext(q.loop, q.log.WithField("index", idx), q.data, idx, len(q.results))
	c.IsLast = q.completed && idx == len(q.results)-1
	c.next = func(c *Context[T], vals []interface{}) {
		if q.finished {
			return
		}
		q.data = c.Data
		q.results[idx] = internal.Collapse(vals)
		if j+1 < len(batch) {
			q.tramp.Do(func() { q.exec(batch, base, j+1) })
			return
		}
		q.loop.NextTick(q.drain)
	}
	c.end = func(c *Context[T], err error, _ []interface{}) {
		q.data = c.Data
		q.finish(err, nil)
	}
	q.worker.Run(c, batch[j])
}

func (q *Queue[T]) finish(err error, results []interface{}) {
	if q.finished {
		return
	}
	q.finished = true
	q.draining = false
	q.pending = nil
	if err != nil {
		q.log.WithError(err).Debug("queue ended with an error")
	} else {
		q.log.Debugf("queue completed with %d results", len(results))
	}
	if q.end != nil {
		q.end(q.data, err, results)
	}
	q.done.Resolve(Result[T]{Data: q.data, Args: results}, err)
}
