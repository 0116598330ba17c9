package orchestrator

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Phase string

const (
	PhaseIdle                 Phase = "IDLE"
	PhaseCheckingPrereqs      Phase = "CHECKING_PREREQS"
	PhasePreparingEnv         Phase = "PREPARING_ENV"
	PhaseLaunchingInfra       Phase = "LAUNCHING_INFRA"
	PhaseWaitingInfraReady    Phase = "WAITING_INFRA_READY"
	PhaseApplyingMigrations   Phase = "APPLYING_MIGRATIONS"
	PhaseLaunchingAppServices Phase = "LAUNCHING_APP_SERVICES"
	PhaseWaitingAppReady      Phase = "WAITING_APP_READY"
	PhaseRunning              Phase = "RUNNING"
	PhaseShuttingDown         Phase = "SHUTTING_DOWN"
	PhaseTerminated           Phase = "TERMINATED"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:                 0,
	PhaseCheckingPrereqs:      1,
	PhasePreparingEnv:         2,
	PhaseLaunchingInfra:       3,
	PhaseWaitingInfraReady:    4,
	PhaseApplyingMigrations:   5,
	PhaseLaunchingAppServices: 6,
	PhaseWaitingAppReady:      7,
	PhaseRunning:              8,
	PhaseShuttingDown:         9,
	PhaseTerminated:           10,
}

type Transition struct {
	From Phase
	To   Phase
	At   time.Time
}

// Machine tracks workflow progress. Phases only move forward (skipping is
// allowed); app services loop WAITING_APP_READY -> LAUNCHING_APP_SERVICES one
// service at a time, and SHUTTING_DOWN can be entered from anywhere but the end.
type Machine struct {
	mu      sync.RWMutex
	current Phase
	history []Transition
	onEnter []func(from, to Phase)
}

func NewMachine() *Machine {
	return &Machine{current: PhaseIdle}
}

// OnEnter registers fn to run after every transition.
func (m *Machine) OnEnter(fn func(from, to Phase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnter = append(m.onEnter, fn)
}

func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) CanEnter(to Phase) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canTransition(m.current, to)
}

func canTransition(from, to Phase) bool {
	fromIdx, ok1 := phaseOrder[from]
	toIdx, ok2 := phaseOrder[to]
	switch {
	case !ok1 || !ok2:
		return false
	case from == PhaseTerminated:
		return false
	case to == PhaseShuttingDown:
		return from != PhaseShuttingDown
	case from == PhaseWaitingAppReady && to == PhaseLaunchingAppServices:
		return true
	case to == PhaseTerminated:
		return from == PhaseShuttingDown
	default:
		return toIdx > fromIdx
	}
}

func (m *Machine) Enter(to Phase) error {
	m.mu.Lock()
	from := m.current
	if !canTransition(from, to) {
		m.mu.Unlock()
		return errors.Errorf("invalid phase transition %s -> %s", from, to)
	}
	m.current = to
	m.history = append(m.history, Transition{From: from, To: to, At: time.Now()})
	hooks := append([]func(from, to Phase){}, m.onEnter...)
	m.mu.Unlock()

	log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase transition")
	for _, fn := range hooks {
		fn(from, to)
	}
	return nil
}

func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition{}, m.history...)
}

// Path returns the visited phases in order.
func (m *Machine) Path() []Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Phase, 0, len(m.history))
	for _, t := range m.history {
		out = append(out, t.To)
	}
	return out
}
