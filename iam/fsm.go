package iam

import "fmt"

// State is a step of role reconciliation.
type State string

const (
	StateCheckCache  State = "CheckCache"
	StateSkip        State = "Skip"
	StateResolve     State = "Resolve"
	StateCreate      State = "Create"
	StateFound       State = "Found"
	StateUpdateTrust State = "UpdateTrust"
	StateAuthorize   State = "Authorize"
	StateReconcile   State = "Reconcile"
	StateAwaitReady  State = "AwaitReady"
	StateDone        State = "Done"
)

// transitions lists every edge the reconciler may take. Skip and Done are
// terminal.
var transitions = map[State][]State{
	StateCheckCache:  {StateSkip, StateResolve},
	StateResolve:     {StateFound, StateCreate},
	StateCreate:      {StateResolve},
	StateFound:       {StateUpdateTrust, StateAuthorize},
	StateUpdateTrust: {StateAuthorize},
	StateAuthorize:   {StateReconcile},
	StateReconcile:   {StateAwaitReady, StateDone},
	StateAwaitReady:  {StateDone},
}

// CanTransition reports whether the transition table declares from -> to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a reconciliation.
func (s State) Terminal() bool {
	return s == StateSkip || s == StateDone
}

// TransitionError is returned when a handler names an undeclared next state.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("undeclared transition %s -> %s", e.From, e.To)
}
