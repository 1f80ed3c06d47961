package steps

import (
	"fmt"
	"time"

	"github.com/casualjim/tick/eventbus"
)

var stateKeyNames map[State]string
var namedStateKeys map[string]State

func init() {
	stateKeyNames = map[State]string{
		StateUnknown:    "unknown",
		StateWaiting:    "waiting",
		StateSkipped:    "skipped",
		StateProcessing: "processing",
		StateSuccess:    "completed",
		StateFailed:     "failed",
	}

	namedStateKeys = make(map[string]State, len(stateKeyNames))
	for k, v := range stateKeyNames {
		namedStateKeys[v] = k
	}
}

// StateFromString creates a step state from a string
func StateFromString(name string) (State, error) {
	if v, ok := namedStateKeys[name]; ok {
		return v, nil
	}
	return StateUnknown, fmt.Errorf("invalid step state %q", name)
}

// State of a step in a flow run
type State uint8

const (
	// StateUnknown indicates the step is unknown
	StateUnknown State = iota
	// StateWaiting indicates the step is known but hasn't started yet
	StateWaiting
	// StateProcessing indicates the step is currently executing
	StateProcessing
	// StateSkipped indicates the step was skipped because an earlier step ended the flow
	StateSkipped
	// StateSuccess indicates the step advanced with next
	StateSuccess
	// StateFailed indicates the step ended the flow with an error
	StateFailed
)

func (e State) String() string {
	return stateKeyNames[e]
}

// MarshalText renders this stepstate to text
func (e State) MarshalText() (text []byte, err error) {
	return []byte(stateKeyNames[e]), nil
}

// UnmarshalText parses this step state from text
func (e *State) UnmarshalText(text []byte) error {
	st, err := StateFromString(string(text))
	if err != nil {
		return err
	}
	*e = st
	return nil
}

const (
	// TopicLifecycle is the event topic for lifecycle events
	TopicLifecycle = "lifecycle"
	// TopicDone is the event topic for completed flow runs
	TopicDone = "done"
)

// A LifecycleEvent is emitted for state transitions of a step in a flow run
type LifecycleEvent struct {
	Flow   string
	Run    string
	Index  int
	State  State
	Reason error
}

// DoneEvent is published when a flow run completes
type DoneEvent[T any] struct {
	Flow   string
	Run    string
	Result Result[T]

	source interface{}
}

// IsLifecycleEvent returns true if this is a lifecycle event for the given state
func IsLifecycleEvent(evt eventbus.Event, state State) bool {
	return LifecycleEventFilter(state)(evt)
}

// LifecycleEventFilter is an event filter that matches lifecycle events in the given state
func LifecycleEventFilter(state State) eventbus.EventPredicate {
	return func(evt eventbus.Event) bool {
		if evt.Name != TopicLifecycle {
			return false
		}
		lce, ok := evt.Args.(LifecycleEvent)
		return ok && lce.State == state
	}
}

func publishLifecycle(bus eventbus.EventBus, evt LifecycleEvent) {
	bus.Publish(eventbus.Event{
		Name: TopicLifecycle,
		At:   time.Now(),
		Args: evt,
	})
}
