package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-ts/salobj-go/internal/salerr"
)

func TestApplyAllowedTransitions(t *testing.T) {
	cases := []struct {
		from State
		cmd  Command
		to   State
	}{
		{Offline, EnterControl, Standby},
		{Standby, ExitControl, Offline},
		{Standby, Start, Disabled},
		{Disabled, StandbyCmd, Standby},
		{Disabled, Enable, Enabled},
		{Enabled, Disable, Disabled},
		{Enabled, FaultCmd, Fault},
		{Fault, StandbyCmd, Standby},
	}
	for _, c := range cases {
		got, err := Apply(c.from, c.cmd)
		require.NoError(t, err)
		assert.Equal(t, c.to, got)
	}
}

func TestApplyRejectsDisallowedTransition(t *testing.T) {
	_, err := Apply(Offline, Enable)
	require.Error(t, err)
	assert.True(t, errors.Is(err, salerr.State))
}

func TestAcceptsDomainCommandsOnlyInEnabled(t *testing.T) {
	assert.True(t, Enabled.AcceptsDomainCommands())
	assert.False(t, Standby.AcceptsDomainCommands())
	assert.False(t, Disabled.AcceptsDomainCommands())
}

func TestRejectionMessageFormat(t *testing.T) {
	assert.Equal(t, "Command setScalars not allowed in Standby.", RejectionMessage("setScalars", Standby))
}

func TestInvalidTransitionMessageFormat(t *testing.T) {
	assert.Equal(t, "Invalid state transition Standby -> Enabled.", InvalidTransitionMessage(Standby, Enabled))
}

func TestWireValuesMatchSeedScenarios(t *testing.T) {
	assert.EqualValues(t, 5, Standby.WireValue())
	assert.EqualValues(t, 1, Disabled.WireValue())
	assert.EqualValues(t, 2, Enabled.WireValue())
	assert.EqualValues(t, 3, Fault.WireValue())
}
