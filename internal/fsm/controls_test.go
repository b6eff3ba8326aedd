package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlStartCycle(t *testing.T) {
	next, err := TransitionControl(ControlStopped, ControlStartRequested)
	require.NoError(t, err)
	require.Equal(t, ControlStarting, next)
	require.False(t, next.StartEnabled())
	require.False(t, next.StopEnabled())

	ok, err := TransitionControl(next, ControlStartSucceeded)
	require.NoError(t, err)
	require.Equal(t, ControlRunning, ok)
	require.True(t, ok.StopEnabled())

	failed, err := TransitionControl(next, ControlStartFailed)
	require.NoError(t, err)
	require.Equal(t, ControlStopped, failed)
	require.True(t, failed.StartEnabled())
}

func TestControlStopCycle(t *testing.T) {
	next, err := TransitionControl(ControlRunning, ControlStopRequested)
	require.NoError(t, err)
	require.Equal(t, ControlStopping, next)

	ok, err := TransitionControl(next, ControlStopSucceeded)
	require.NoError(t, err)
	require.Equal(t, ControlStopped, ok)

	failed, err := TransitionControl(next, ControlStopFailed)
	require.NoError(t, err)
	require.Equal(t, ControlRunning, failed)
}

func TestControlPollingMirrorsSettledStates(t *testing.T) {
	tests := []struct {
		state Control
		event ControlEvent
		want  Control
	}{
		{ControlStopped, ControlPolledRunning, ControlRunning},
		{ControlRunning, ControlPolledStopped, ControlStopped},
		{ControlStarting, ControlPolledStopped, ControlStarting},
		{ControlStopping, ControlPolledRunning, ControlStopping},
	}
	for _, tc := range tests {
		next, err := TransitionControl(tc.state, tc.event)
		require.NoError(t, err)
		require.Equal(t, tc.want, next)
	}
}

func TestControlInvalidTransitions(t *testing.T) {
	_, err := TransitionControl(ControlStopped, ControlStopRequested)
	require.ErrorContains(t, err, "invalid transition")

	_, err = TransitionControl(ControlRunning, ControlStartRequested)
	require.ErrorContains(t, err, "invalid transition")

	_, err = TransitionControl(Control("mystery"), ControlStartRequested)
	require.ErrorContains(t, err, "unknown control state")
}
