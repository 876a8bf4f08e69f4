package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
)

func TestCollector_RecordsLifecycle(t *testing.T) {
	c := NewMetricsCollector()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	ticker := NewManualTicker()
	s, _ := startScheduler(t, DefaultConfig(), WithTicker(ticker), WithMetrics(c))

	s.QueueOperation(op.LayoutSet, succeed, op.Metadata{})
	s.QueueOperation(op.LayoutSet, succeed, op.Metadata{})
	s.QueueOperation(op.DataAdd, func(context.Context, *ExecContext) (any, error) {
		return nil, errors.New("boom")
	}, op.Metadata{})
	ticker.Tick()
	waitIdle(t, s)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(c.admittedTotal.WithLabelValues("layout-set")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.admittedTotal.WithLabelValues("data-add")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.obsoletedTotal.WithLabelValues("layout-set")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.finishedTotal.WithLabelValues("layout-set", "aborted")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.finishedTotal.WithLabelValues("layout-set", "completed")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.finishedTotal.WithLabelValues("data-add", "failed")))
	for _, state := range []string{"pending", "queued", "running"} {
		assert.Equal(t, 0.0, promtestutil.ToFloat64(c.operations.WithLabelValues(state)), state)
	}
	assert.Equal(t, 2, promtestutil.CollectAndCount(c, "opqueue_operation_duration_seconds"))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	c.admitted(op.DataAdd)
	c.finished(op.DataAdd, op.OutcomeCompleted)
	c.obsoleted(op.DataAdd)
	c.transition(op.StatePending, op.StateQueued)
	c.executed(op.DataAdd, 0)
}
