package op

import "time"

// EventType names a lifecycle event. The string values are stable and are
// used as pub/sub topics and journal keys.
type EventType string

const (
	EventQueueActive   EventType = "operation-queue-active"
	EventQueueIdle     EventType = "operation-queue-idle"
	EventStart         EventType = "operation-start"
	EventComplete      EventType = "operation-complete"
	EventProgress      EventType = "operation-progress"
	EventObsoleted     EventType = "operation-obsoleted"
	EventCancelled     EventType = "operation-cancelled"
	EventBatchComplete EventType = "operation-batch-complete"
	EventError         EventType = "operation-error"
)

// EventTypes returns every event type in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventQueueActive,
		EventQueueIdle,
		EventStart,
		EventComplete,
		EventProgress,
		EventObsoleted,
		EventCancelled,
		EventBatchComplete,
		EventError,
	}
}

// Reasons carried by cancellation events.
const (
	ReasonManual    = "manual"
	ReasonCategory  = "category cancelled"
	ReasonCleared   = "queue cleared"
	ReasonShutdown  = "scheduler stopped"
	ReasonObsoleted = "obsoleted"
	ReasonCancelled = "cancelled"
)

// Event is one lifecycle notification. Only the fields relevant to Type
// are set; the rest keep their zero values.
type Event struct {
	Type EventType

	// Seq is the emission sequence number, strictly increasing per scheduler.
	Seq int64

	// Time is the wall-clock emission time.
	Time time.Time

	ID          OperationID
	Category    Category
	Description string

	// Duration is the time since the operation's progress record started.
	Duration time.Duration

	Progress float64
	Message  string
	Phase    string

	// Reason and ObsoletedBy describe obsoleted and cancelled events.
	Reason      string
	ObsoletedBy OperationID

	// OperationCount, Operations and BatchID describe a flushed batch.
	OperationCount int
	Operations     []OperationID
	BatchID        string

	// Err is set on operation-error.
	Err error

	SkipTriggers bool
}

// ErrorMessage returns Err's message or "".
func (e Event) ErrorMessage() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Observer receives lifecycle events in emission order. Observers run on
// the scheduler's delivery goroutine and must not block for long.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
