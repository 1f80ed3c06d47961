package eventbus

import (
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Event you can subscribe to
type Event struct {
	Name string
	At   time.Time
	Args interface{}
}

// NOOPHandler drops events on the floor without taking action
var NOOPHandler = Handler(func(_ Event) error { return nil })

// NopBus drops every published event
var NopBus EventBus = nopBus{}

// Handler wraps a function that will be called when an event is received
// In this mode the handler is quiet when an error is produced by the handler
// so the user of the eventbus needs to handle that error
func Handler(on func(Event) error) EventHandler {
	return &defaultHandler{
		on: on,
	}
}

type defaultHandler struct {
	on func(Event) error
}

// On event trigger
func (h *defaultHandler) On(event Event) error {
	return h.on(event)
}

// EventHandler deals with handling events
type EventHandler interface {
	On(Event) error
}

type filteredHandler struct {
	Next    EventHandler
	Matches EventPredicate
}

func (f *filteredHandler) On(evt Event) error {
	if !f.Matches(evt) {
		return nil
	}
	return f.Next.On(evt)
}

// EventPredicate for filtering events
type EventPredicate func(Event) bool

// Filtered composes an event handler with a filter
func Filtered(matches EventPredicate, next EventHandler) EventHandler {
	return &filteredHandler{
		Matches: matches,
		Next:    next,
	}
}

// EventBus does fanout to registered handlers.
//
// Handlers are called synchronously on the publishing goroutine, in subscription order.
// For tick that is always the loop goroutine.
type EventBus interface {
	Close() error
	Publish(Event)
	Subscribe(...EventHandler)
	// SubscribeOnce registers handlers that are removed after the first event they match
	SubscribeOnce(EventPredicate, ...EventHandler)
	Unsubscribe(...EventHandler)
	Len() int
}

type subscription struct {
	handler EventHandler
	once    EventPredicate
}

type defaultEventBus struct {
	lock         sync.Mutex
	handlers     []*subscription
	closed       bool
	log          logrus.FieldLogger
	timer        metrics.Timer
	errorHandler func(error)
}

// New event bus with specified logger
func New(log logrus.FieldLogger) EventBus {
	return NewWithRegistry(log, metrics.DefaultRegistry)
}

// NewWithRegistry creates a new eventbus that records the events.notify timer in the registry
func NewWithRegistry(log logrus.FieldLogger, registry metrics.Registry) EventBus {
	if log == nil {
		logger := logrus.New()
		logger.Level = logrus.PanicLevel
		log = logger.WithFields(nil)
	}
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	return &defaultEventBus{
		log:          log,
		timer:        metrics.GetOrRegisterTimer("events.notify", registry),
		errorHandler: func(err error) { log.Errorln(err) },
	}
}

// SetErrorHandler changes the default error handler which logs as error
// to the new error handler provided to this method
func (e *defaultEventBus) SetErrorHandler(handler func(error)) {
	e.lock.Lock()
	e.errorHandler = handler
	e.lock.Unlock()
}

// Publish an event to all interested subscribers
func (e *defaultEventBus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		e.log.Debugf("dropping event %q, the bus is closed", evt.Name)
		return
	}
	if len(e.handlers) == 0 {
		e.lock.Unlock()
		return
	}
	targets := make([]EventHandler, 0, len(e.handlers))
	kept := e.handlers[:0]
	for _, sub := range e.handlers {
		if sub.once != nil && sub.once(evt) {
			targets = append(targets, sub.handler)
			continue
		}
		if sub.once == nil {
			targets = append(targets, sub.handler)
		}
		kept = append(kept, sub)
	}
	for i := len(kept); i < len(e.handlers); i++ {
		e.handlers[i] = nil
	}
	e.handlers = kept
	onError := e.errorHandler
	e.lock.Unlock()

	e.timer.Time(func() {
		for _, handler := range targets {
			if err := handler.On(evt); err != nil {
				onError(err)
			}
		}
	})
}

// Subscribe to events published in the bus
func (e *defaultEventBus) Subscribe(handlers ...EventHandler) {
	e.lock.Lock()
	for _, handler := range handlers {
		e.handlers = append(e.handlers, &subscription{handler: handler})
	}
	e.lock.Unlock()
}

func (e *defaultEventBus) SubscribeOnce(matches EventPredicate, handlers ...EventHandler) {
	if matches == nil {
		matches = func(Event) bool { return true }
	}
	e.lock.Lock()
	for _, handler := range handlers {
		e.handlers = append(e.handlers, &subscription{handler: handler, once: matches})
	}
	e.lock.Unlock()
}

func (e *defaultEventBus) Unsubscribe(handlers ...EventHandler) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.handlers) == 0 {
		return
	}
	for _, h := range handlers {
		for i, sub := range e.handlers {
			if sub.matches(h) {
				e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
				break
			}
		}
	}
}

func (e *defaultEventBus) Close() error {
	e.lock.Lock()
	e.closed = true
	e.handlers = nil
	e.lock.Unlock()
	e.log.Debug("event bus closed")
	return nil
}

func (e *defaultEventBus) Len() int {
	e.lock.Lock()
	sz := len(e.handlers)
	e.lock.Unlock()
	return sz
}

func (s *subscription) matches(handler EventHandler) bool {
	return s.handler == handler
}

type nopBus struct{}

func (nopBus) Close() error                                  { return nil }
func (nopBus) Publish(Event)                                 {}
func (nopBus) Subscribe(...EventHandler)                     {}
func (nopBus) SubscribeOnce(EventPredicate, ...EventHandler) {}
func (nopBus) Unsubscribe(...EventHandler)                   {}
func (nopBus) Len() int                                      { return 0 }
