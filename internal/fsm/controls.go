package fsm

import "fmt"

// Control is the affordance state of the start/stop controls.
type Control string

// ControlEvent drives the start/stop controls.
type ControlEvent string

const (
	ControlStopped  Control = "stopped"
	ControlStarting Control = "starting"
	ControlRunning  Control = "running"
	ControlStopping Control = "stopping"
)

const (
	ControlStartRequested ControlEvent = "start_requested"
	ControlStartSucceeded ControlEvent = "start_succeeded"
	ControlStartFailed    ControlEvent = "start_failed"
	ControlStopRequested  ControlEvent = "stop_requested"
	ControlStopSucceeded  ControlEvent = "stop_succeeded"
	ControlStopFailed     ControlEvent = "stop_failed"
	ControlPolledRunning  ControlEvent = "polled_running"
	ControlPolledStopped  ControlEvent = "polled_stopped"
)

// TransitionControl advances the start/stop controls.
//
// Polled status wins in the settled states and is ignored while a start or
// stop is in flight.
func TransitionControl(current Control, event ControlEvent) (Control, error) {
	switch current {
	case ControlStopped:
		switch event {
		case ControlStartRequested:
			return ControlStarting, nil
		case ControlPolledRunning:
			return ControlRunning, nil
		case ControlPolledStopped:
			return ControlStopped, nil
		default:
			return current, invalidControlTransition(current, event)
		}
	case ControlStarting:
		switch event {
		case ControlStartSucceeded:
			return ControlRunning, nil
		case ControlStartFailed:
			return ControlStopped, nil
		case ControlPolledRunning, ControlPolledStopped:
			return ControlStarting, nil
		default:
			return current, invalidControlTransition(current, event)
		}
	case ControlRunning:
		switch event {
		case ControlStopRequested:
			return ControlStopping, nil
		case ControlPolledStopped:
			return ControlStopped, nil
		case ControlPolledRunning:
			return ControlRunning, nil
		default:
			return current, invalidControlTransition(current, event)
		}
	case ControlStopping:
		switch event {
		case ControlStopSucceeded:
			return ControlStopped, nil
		case ControlStopFailed:
			return ControlRunning, nil
		case ControlPolledRunning, ControlPolledStopped:
			return ControlStopping, nil
		default:
			return current, invalidControlTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown control state %q", current)
	}
}

// StartEnabled reports whether the start control accepts input.
func (c Control) StartEnabled() bool {
	return c == ControlStopped
}

// StopEnabled reports whether the stop control accepts input.
func (c Control) StopEnabled() bool {
	return c == ControlRunning
}

func invalidControlTransition(state Control, event ControlEvent) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
