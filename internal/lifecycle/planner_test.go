package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSameStateIsEmpty(t *testing.T) {
	cmds, err := Plan(Disabled, Disabled)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestPlanRejectsFaultOrInvalidTarget(t *testing.T) {
	_, err := Plan(Standby, Fault)
	assert.Error(t, err)

	_, err = Plan(Standby, Invalid)
	assert.Error(t, err)
}

func TestPlanAppliesCleanlyForEveryReachablePair(t *testing.T) {
	states := []State{Offline, Standby, Disabled, Enabled}
	for _, from := range states {
		for _, to := range states {
			cmds, err := Plan(from, to)
			require.NoErrorf(t, err, "Plan(%s, %s)", from, to)

			cur := from
			for _, cmd := range cmds {
				next, applyErr := Apply(cur, cmd)
				require.NoErrorf(t, applyErr, "applying %s from %s", cmd, cur)
				cur = next
			}
			assert.Equalf(t, to, cur, "Plan(%s, %s) = %v did not reach target", from, to, cmds)
		}
	}
}

func TestPlanFromFaultRoutesThroughStandby(t *testing.T) {
	cmds, err := Plan(Fault, Enabled)
	require.NoError(t, err)
	assert.Equal(t, []Command{StandbyCmd, Start, Enable}, cmds)
}

func TestPlanNeverIncludesFaultCommand(t *testing.T) {
	states := []State{Offline, Standby, Disabled, Enabled, Fault}
	for _, from := range states {
		for _, to := range states {
			if to == Fault || to == Invalid {
				continue
			}
			cmds, err := Plan(from, to)
			require.NoError(t, err)
			for _, cmd := range cmds {
				assert.NotEqual(t, FaultCmd, cmd)
			}
		}
	}
}
