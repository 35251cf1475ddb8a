package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// ListenerFunc adapts a function to StateListener.
type ListenerFunc func(StateChange)

func (f ListenerFunc) OnStateChange(ev StateChange) { f(ev) }

// Machine tracks the turn state of one session.
type Machine struct {
	mu           sync.RWMutex
	currentState State
	enteredAt    time.Time
	listeners    []StateListener
}

func NewMachine() *Machine {
	return &Machine{currentState: StateIdle, enteredAt: time.Now()}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState
}

// Since returns how long the machine has been in its current state.
func (m *Machine) Since() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.enteredAt)
}

// Transition moves to a new state with validation. Listeners run after the
// lock is released, in registration order.
func (m *Machine) Transition(state State, reason string) error {
	m.mu.Lock()
	if !CanTransition(m.currentState, state) {
		from := m.currentState
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}
	event := StateChange{
		FromState: m.currentState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	m.currentState = state
	m.enteredAt = event.Timestamp
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// Abort moves a busy turn to ABORTED and then back to IDLE. It is a no-op
// when no turn is in flight.
func (m *Machine) Abort(reason string) {
	if err := m.Transition(StateAborted, reason); err != nil {
		return
	}
	_ = m.Transition(StateIdle, reason)
}

// AddListener registers a listener for state change events.
func (m *Machine) AddListener(listener StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
