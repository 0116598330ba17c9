package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMachine_ForwardWithSkips(t *testing.T) {
	m := NewMachine()
	var seen []string
	m.OnEnter(func(from, to Phase) { seen = append(seen, string(from)+">"+string(to)) })

	require.NoError(t, m.Enter(PhaseCheckingPrereqs))
	require.NoError(t, m.Enter(PhasePreparingEnv))
	require.NoError(t, m.Enter(PhaseLaunchingInfra))
	require.NoError(t, m.Enter(PhaseWaitingInfraReady))
	require.NoError(t, m.Enter(PhaseRunning))

	require.Error(t, m.Enter(PhasePreparingEnv))
	require.Error(t, m.Enter(PhaseRunning))
	require.Equal(t, PhaseRunning, m.Current())
	require.Equal(t, []Phase{PhaseCheckingPrereqs, PhasePreparingEnv, PhaseLaunchingInfra, PhaseWaitingInfraReady, PhaseRunning}, m.Path())
	require.Equal(t, "IDLE>CHECKING_PREREQS", seen[0])
}

func TestMachine_AppLoop(t *testing.T) {
	m := NewMachine()
	for _, p := range []Phase{PhaseCheckingPrereqs, PhaseLaunchingAppServices, PhaseWaitingAppReady, PhaseLaunchingAppServices, PhaseWaitingAppReady, PhaseRunning} {
		require.NoError(t, m.Enter(p), p)
	}
}

func TestMachine_ShutdownFromAnywhere(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Enter(PhaseCheckingPrereqs))
	require.Error(t, m.Enter(PhaseTerminated))
	require.NoError(t, m.Enter(PhaseShuttingDown))
	require.Error(t, m.Enter(PhaseShuttingDown))
	require.False(t, m.CanEnter(PhaseRunning))
	require.NoError(t, m.Enter(PhaseTerminated))
	require.False(t, m.CanEnter(PhaseShuttingDown))
	require.Len(t, m.History(), 3)
}
