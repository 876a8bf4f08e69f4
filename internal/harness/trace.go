package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/opqueue/internal/op"
)

// collector records delivered events and lets the runner block until a
// condition over them holds.
type collector struct {
	mu      sync.Mutex
	events  []op.Event
	changed chan struct{}
}

func newCollector() *collector {
	return &collector{changed: make(chan struct{})}
}

// OnEvent implements op.Observer.
func (c *collector) OnEvent(e op.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *collector) snapshot() []op.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]op.Event(nil), c.events...)
}

func (c *collector) waitFor(ctx context.Context, cond func([]op.Event) bool) error {
	for {
		c.mu.Lock()
		ok := cond(c.events)
		ch := c.changed
		c.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func defaultLabel(id op.OperationID) string {
	return "op" + strconv.FormatInt(int64(id), 10)
}

// FormatEvent renders e as a single trace line.
func FormatEvent(e op.Event, label func(op.OperationID) string) string {
	name := strings.TrimPrefix(string(e.Type), "operation-")

	switch e.Type {
	case op.EventQueueActive, op.EventQueueIdle:
		return name

	case op.EventBatchComplete:
		members := make([]string, len(e.Operations))
		for i, id := range e.Operations {
			members[i] = label(id)
		}
		return fmt.Sprintf("%s %s [%s]", name, e.BatchID, strings.Join(members, " "))

	case op.EventStart:
		return fmt.Sprintf("%s %s (%s)", name, label(e.ID), e.Category)

	case op.EventProgress:
		line := fmt.Sprintf("%s %s %g%%", name, label(e.ID), e.Progress)
		if e.Phase != "" {
			line += fmt.Sprintf(" phase=%q", e.Phase)
		}
		if e.Message != "" {
			line += fmt.Sprintf(" message=%q", e.Message)
		}
		return line

	case op.EventObsoleted:
		line := fmt.Sprintf("%s %s: %s", name, label(e.ID), e.Reason)
		if e.ObsoletedBy != 0 {
			line += " (by " + label(e.ObsoletedBy) + ")"
		}
		return line

	case op.EventCancelled:
		return fmt.Sprintf("%s %s: %s", name, label(e.ID), e.Reason)

	case op.EventError:
		msg := e.ErrorMessage()
		var execErr *op.ExecutionError
		if errors.As(e.Err, &execErr) && execErr.Err != nil {
			msg = execErr.Err.Error()
		}
		return fmt.Sprintf("%s %s: %s", name, label(e.ID), msg)
	}

	return fmt.Sprintf("%s %s", name, label(e.ID))
}
