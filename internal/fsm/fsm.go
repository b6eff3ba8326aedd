// Package fsm holds the pure transition tables used by the control panel:
// the configuration save cycle and the start/stop controls.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle        State = "idle"
	StatePendingSave State = "pending_save"
	StateSaving      State = "saving"
)

const (
	EventChange    Event = "change"
	EventTimerFire Event = "timer_fire"
	EventFlush     Event = "flush"
	EventSaveDone  Event = "save_done"
)

// Transition advances the save cycle.
//
// A change while saving stays in Saving; the controller records it and
// re-arms the debounce once the in-flight save completes.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventChange:
			return StatePendingSave, nil
		case EventFlush:
			return StateSaving, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePendingSave:
		switch event {
		case EventChange:
			return StatePendingSave, nil
		case EventTimerFire, EventFlush:
			return StateSaving, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSaving:
		switch event {
		case EventChange:
			return StateSaving, nil
		case EventSaveDone:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
