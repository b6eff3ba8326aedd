package panel

import (
	"log/slog"
	"sync"

	"github.com/rbright/yakutan/internal/fsm"
)

// Controls tracks which of start and stop currently accepts input.
type Controls struct {
	logger *slog.Logger

	mu    sync.Mutex
	state fsm.Control
}

func newControls(logger *slog.Logger) *Controls {
	return &Controls{logger: logger, state: fsm.ControlStopped}
}

// State returns the current control state.
func (c *Controls) State() fsm.Control {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controls) apply(event fsm.ControlEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.TransitionControl(c.state, event)
	if err != nil {
		return err
	}
	if next != c.state {
		c.logger.Debug("controls transition", "from", c.state, "event", event, "to", next)
	}
	c.state = next
	return nil
}

// Observe mirrors polled service status into the controls.
func (c *Controls) Observe(running bool) {
	event := fsm.ControlPolledStopped
	if running {
		event = fsm.ControlPolledRunning
	}
	_ = c.apply(event)
}
