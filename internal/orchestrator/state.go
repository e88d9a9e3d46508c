package orchestrator

import (
	"errors"
	"fmt"
	"slices"
)

// State is a run lifecycle state.
type State string

// Run states.
const (
	StateValidating State = "Validating"
	StateGenerating State = "Generating"
	StateGating     State = "Gating"
	StateRetrying   State = "Retrying"
	StateRecording  State = "Recording"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

// ErrIllegalTransition indicates a state change the lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal run state transition")

// transitions lists the legal successors of every non-terminal state.
// Every state may move to Recording so that a failure or cancellation at any
// point still produces a record.
var transitions = map[State][]State{
	StateValidating: {StateGenerating, StateRecording},
	StateGenerating: {StateGating, StateRetrying, StateRecording},
	StateGating:     {StateRetrying, StateRecording},
	StateRetrying:   {StateGenerating, StateRecording},
	StateRecording:  {StateDone, StateFailed},
}

// Terminal reports whether s ends the run.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// CanTransition reports whether the lifecycle allows from → to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// machine tracks one run's state and the path it took.
type machine struct {
	state State
	path  []State
}

func newMachine() *machine {
	return &machine{state: StateValidating, path: []State{StateValidating}}
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	m.path = append(m.path, next)
	return nil
}
