package op

import "time"

// ProgressRecord is the declared progress of one operation.
//
// Percent is caller-declared and is neither validated nor clamped.
type ProgressRecord struct {
	Percent    float64
	Message    string
	Phase      string
	StartTime  time.Time
	LastUpdate time.Time
}

// Stats is a snapshot of scheduler occupancy.
//
// The three counters are disjoint. An operation is counted in Pending
// while it sits in the micro-batch, in Size once flushed and waiting for a
// slot, and in Running while its execute function is in flight. Pending
// never includes running work, and batch-held operations appear in none.
type Stats struct {
	// Pending counts operations admitted but not yet flushed to the executor.
	Pending int

	// Size counts flushed jobs waiting in the executor, not yet started.
	Size int

	// Running counts execute functions currently in flight.
	Running int

	IsPaused bool
}
