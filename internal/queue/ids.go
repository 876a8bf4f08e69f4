package queue

import (
	"sync/atomic"

	"github.com/roach88/opqueue/internal/op"
)

// idClock issues operation ids. The first id is 1; ids are never reused.
type idClock struct {
	seq atomic.Int64
}

// Next returns the next id.
func (c *idClock) Next() op.OperationID {
	return op.OperationID(c.seq.Add(1))
}

// Current returns the last issued id, or 0 if none was issued.
func (c *idClock) Current() op.OperationID {
	return op.OperationID(c.seq.Load())
}
