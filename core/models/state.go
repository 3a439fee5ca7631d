package models

// RunState is a state of the repair controller
type RunState string

const (
	StateInit        RunState = "init"
	StateParsed      RunState = "parsed"
	StateInitialMesh RunState = "initial_mesh"
	StateValidating  RunState = "validating"
	StateRepairing   RunState = "repairing"
	StateRemeshing   RunState = "remeshing"
	StateSucceeded   RunState = "succeeded"
	StateFailed      RunState = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s RunState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether the controller may move from one state to
// another. Any non-terminal state may fail.
func CanTransition(from, to RunState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch from {
	case StateInit:
		return to == StateParsed
	case StateParsed:
		return to == StateInitialMesh
	case StateInitialMesh, StateRepairing, StateRemeshing:
		return to == StateValidating
	case StateValidating:
		return to == StateSucceeded || to == StateRepairing || to == StateRemeshing
	}
	return false
}
