package op

import "fmt"

// State is the lifecycle position of an operation.
type State string

const (
	StatePending   State = "pending"
	StateBatchHeld State = "batch-held"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateFailed:
		return true
	default:
		return false
	}
}

// IsLive reports whether an operation in this state can still be cancelled.
func (s State) IsLive() bool {
	switch s {
	case StatePending, StateBatchHeld, StateQueued, StateRunning:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateBatchHeld || to == StateQueued || to == StateAborted || to == StateFailed
	case StateBatchHeld:
		return to == StatePending || to == StateAborted
	case StateQueued:
		return to == StateRunning || to == StateAborted
	case StateRunning:
		return to == StateCompleted || to == StateAborted || to == StateFailed
	default:
		return false
	}
}

// TransitionError reports a disallowed lifecycle step. It indicates a
// scheduler bug, never a caller error.
type TransitionError struct {
	ID   OperationID
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("operation %d: disallowed transition %s -> %s", e.ID, e.From, e.To)
}
