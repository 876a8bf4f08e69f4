package op

// OutcomeKind tags how an operation ended.
type OutcomeKind uint8

const (
	// OutcomeUnknown is the zero value; it never appears on a resolved Future.
	OutcomeUnknown OutcomeKind = iota

	// OutcomeCompleted means the execute function returned without error.
	OutcomeCompleted

	// OutcomeAborted means the operation was cancelled, either before it
	// started or cooperatively while running.
	OutcomeAborted

	// OutcomeFailed means the execute function returned a non-cancellation
	// error or panicked.
	OutcomeFailed

	// OutcomeDeferred is returned by QueueOperationAsync in batch mode: the
	// future resolves at admission and carries no result.
	OutcomeDeferred
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one operation.
type Outcome struct {
	Kind OutcomeKind
	ID   OperationID

	// Result is the execute function's return value for OutcomeCompleted.
	Result any

	// Err is an *ExecutionError for OutcomeFailed and a *CancelledError for
	// OutcomeAborted.
	Err error
}

// State maps the outcome to its terminal lifecycle state.
func (o Outcome) State() State {
	switch o.Kind {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeAborted:
		return StateAborted
	case OutcomeFailed:
		return StateFailed
	default:
		return ""
	}
}
